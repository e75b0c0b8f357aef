package domain

import (
	"encoding/json"
	"time"
)

// DecisionType is the registry's record-type code for an administrative act.
type DecisionType string

const (
	// TypeAward covers award/assignment decisions for works, supplies and services.
	TypeAward DecisionType = "Δ.1"

	// TypePayment covers payment confirmations.
	TypePayment DecisionType = "Β.2.2"

	// TypeObligation covers budget obligation commitments.
	TypeObligation DecisionType = "Β.1.3"
)

// AllDecisionTypes lists the recognized record types in the order a sync run
// processes them.
var AllDecisionTypes = []DecisionType{TypeAward, TypePayment, TypeObligation}

var decisionTypeLabels = map[DecisionType]string{
	TypeAward:      "Ανάθεση Έργων/Προμηθειών/Υπηρεσιών",
	TypePayment:    "Οριστικοποίηση Πληρωμής",
	TypeObligation: "Ανάληψη Υποχρέωσης",
}

// Known reports whether t is one of the three recognized record types.
func (t DecisionType) Known() bool {
	_, ok := decisionTypeLabels[t]
	return ok
}

// Label returns the registry's Greek label for t, or the raw code when unknown.
func (t DecisionType) Label() string {
	if l, ok := decisionTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

// Decision is one published administrative act, shaped for storage.
// ADA is the registry's globally unique identifier and the natural key.
type Decision struct {
	ADA            string
	ProtocolNumber *string
	Subject        string
	Type           DecisionType
	IssueDate      time.Time
	PublishDate    *time.Time
	OrganizationID string
	Status         string
	URL            *string
	DocumentURL    *string

	SignerIDs           []string
	UnitIDs             []string
	ThematicCategoryIDs []string

	// ExtraFields is the type-specific payload exactly as published.
	ExtraFields json.RawMessage
}

// DecisionBatch pairs a decision with the expenses normalized from it.
// It is the unit the reconciler persists atomically.
type DecisionBatch struct {
	Decision Decision
	Expenses []Expense
}

var decisionTypeSlugs = map[DecisionType]string{
	TypeAward:      "award",
	TypePayment:    "payment",
	TypeObligation: "obligation",
}

// Slug is an ASCII name for t, safe for object keys and flags.
func (t DecisionType) Slug() string {
	if s, ok := decisionTypeSlugs[t]; ok {
		return s
	}
	return "unknown"
}

// ParseDecisionType accepts either a registry code or a slug.
func ParseDecisionType(s string) (DecisionType, bool) {
	for t, slug := range decisionTypeSlugs {
		if s == string(t) || s == slug {
			return t, true
		}
	}
	return "", false
}
