package pipeline

import (
	"strings"

	"github.com/dvloznov/spending-tracker/internal/diavgeia"
	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// Normalizer turns registry decisions into expense lines.
// It holds no state beyond its configuration and never fails.
type Normalizer struct {
	// OrgTaxID is the tracked organization's own tax id.
	OrgTaxID string
	// DefaultCurrency applies when an amount carries no currency.
	DefaultCurrency string
}

// NewNormalizer creates a Normalizer for the given organization.
func NewNormalizer(orgTaxID string) *Normalizer {
	return &Normalizer{OrgTaxID: orgTaxID, DefaultCurrency: domain.DefaultCurrency}
}

// Normalize converts d into a storage batch: the decision row plus zero or
// more expenses derived from its payload.
func (n *Normalizer) Normalize(d diavgeia.Decision) domain.DecisionBatch {
	return domain.DecisionBatch{
		Decision: d.ToDomain(),
		Expenses: n.Expenses(d),
	}
}

// Expenses derives the expense lines of d. Unknown record types and payloads
// that did not decode yield none.
func (n *Normalizer) Expenses(d diavgeia.Decision) []domain.Expense {
	switch p := d.Payload().(type) {
	case diavgeia.AwardPayload:
		return n.fromAward(d, p)
	case diavgeia.PaymentPayload:
		return n.fromPayment(d, p)
	case diavgeia.ObligationPayload:
		return n.fromObligation(d, p)
	case diavgeia.UnrecognizedPayload, diavgeia.MalformedPayload:
		return nil
	default:
		return nil
	}
}

func (n *Normalizer) fromAward(d diavgeia.Decision, p diavgeia.AwardPayload) []domain.Expense {
	if p.AwardAmount == nil {
		return nil
	}
	amount, ok := positiveAmount(p.AwardAmount.Amount)
	if !ok {
		return nil
	}
	if n.isTender(d, p) {
		return nil
	}

	e := n.base(d, p.FinancialYear)
	e.Amount = amount
	e.Currency = n.currency(p.AwardAmount.Currency)
	e.AssignmentType = trimmed(p.AssignmentType)
	e.IsDirectAssignment = true
	for _, c := range p.CPV {
		if code := strings.TrimSpace(c.Code); code != "" {
			e.CPVCodes = append(e.CPVCodes, code)
		}
	}
	if len(p.Person) > 0 {
		e.BeneficiaryAFM = nonEmpty(p.Person[0].AFM)
		e.BeneficiaryName = nonEmpty(p.Person[0].Name)
	}
	return []domain.Expense{e}
}

// isTender: the organization lists itself as the counterparty on tender
// notices, and their subjects carry announcement wording.
func (n *Normalizer) isTender(d diavgeia.Decision, p diavgeia.AwardPayload) bool {
	if len(p.Person) > 0 && n.OrgTaxID != "" && strings.TrimSpace(p.Person[0].AFM) == n.OrgTaxID {
		return true
	}
	return IsTenderSubject(d.Subject)
}

func (n *Normalizer) fromPayment(d diavgeia.Decision, p diavgeia.PaymentPayload) []domain.Expense {
	direct := n.isDirect(d)
	var out []domain.Expense
	for _, s := range p.Sponsors {
		if s.ExpenseAmount == nil {
			continue
		}
		amount, ok := positiveAmount(s.ExpenseAmount.Amount)
		if !ok {
			continue
		}
		e := n.base(d, p.FinancialYear)
		e.Amount = amount
		e.Currency = n.currency(s.ExpenseAmount.Currency)
		e.KAE = nonEmpty(s.KAE)
		e.IsDirectAssignment = direct
		if s.SponsorAFMName != nil {
			e.BeneficiaryAFM = nonEmpty(s.SponsorAFMName.AFM)
			e.BeneficiaryName = nonEmpty(s.SponsorAFMName.Name)
		}
		out = append(out, e)
	}
	return out
}

func (n *Normalizer) fromObligation(d diavgeia.Decision, p diavgeia.ObligationPayload) []domain.Expense {
	if p.AmountWithVAT == nil {
		return nil
	}
	amount, ok := positiveAmount(p.AmountWithVAT.Amount)
	if !ok {
		return nil
	}
	e := n.base(d, p.FinancialYear)
	e.Amount = amount
	e.Currency = n.currency(p.AmountWithVAT.Currency)
	if len(p.AmountWithKAE) > 0 {
		e.KAE = nonEmpty(p.AmountWithKAE[0].KAE)
	}
	e.IsDirectAssignment = n.isDirect(d)
	return []domain.Expense{e}
}

func (n *Normalizer) isDirect(d diavgeia.Decision) bool {
	return d.DecisionTypeID == domain.TypeAward || IsDirectAssignmentSubject(d.Subject)
}

func (n *Normalizer) base(d diavgeia.Decision, fy diavgeia.FlexInt) domain.Expense {
	return domain.Expense{
		ADA:           d.ADA,
		DecisionType:  d.DecisionTypeID,
		IssueDate:     d.IssueDate.Time(),
		FinancialYear: fy.Ptr(),
		Description:   nonEmpty(d.Subject),
	}
}

func (n *Normalizer) currency(c string) string {
	if c = strings.TrimSpace(c); c != "" {
		return c
	}
	if n.DefaultCurrency != "" {
		return n.DefaultCurrency
	}
	return domain.DefaultCurrency
}

// positiveAmount rounds to cents and rejects anything not above zero.
func positiveAmount(a decimal.Decimal) (decimal.Decimal, bool) {
	a = a.Round(2)
	if !a.IsPositive() {
		return decimal.Decimal{}, false
	}
	return a, true
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	return nonEmpty(*s)
}
