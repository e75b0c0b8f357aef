package domain

// ReconcileStats counts what a reconciliation wrote.
type ReconcileStats struct {
	DecisionsUpserted int
	ExpensesInserted  int
	ExpensesUpdated   int
	ExpensesUnchanged int
}

// Add accumulates o into s.
func (s *ReconcileStats) Add(o ReconcileStats) {
	s.DecisionsUpserted += o.DecisionsUpserted
	s.ExpensesInserted += o.ExpensesInserted
	s.ExpensesUpdated += o.ExpensesUpdated
	s.ExpensesUnchanged += o.ExpensesUnchanged
}
