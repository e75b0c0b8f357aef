package diavgeia

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// Payload is the decoded extraFieldValues of a decision. It is a closed sum:
// exactly one variant per recognized record type, plus Unrecognized for
// unknown codes and Malformed for a known code whose payload would not decode.
type Payload interface {
	payloadType() domain.DecisionType
}

// AwardPayload is the Δ.1 shape.
type AwardPayload struct {
	AwardAmount    *Amount  `json:"awardAmount"`
	Person         []Person `json:"person"`
	AssignmentType *string  `json:"assignmentType"`
	CPV            []CPV    `json:"cpv"`
	FinancialYear  FlexInt  `json:"financialYear"`
}

// PaymentPayload is the Β.2.2 shape.
type PaymentPayload struct {
	Sponsors      []Sponsor `json:"sponsor"`
	FinancialYear FlexInt   `json:"financialYear"`
}

// ObligationPayload is the Β.1.3 shape.
type ObligationPayload struct {
	AmountWithVAT *Amount     `json:"amountWithVAT"`
	AmountWithKAE []KAEAmount `json:"amountWithKae"`
	FinancialYear FlexInt     `json:"financialYear"`
}

// UnrecognizedPayload stands in for any record type outside the three known codes.
type UnrecognizedPayload struct {
	Type domain.DecisionType
}

// MalformedPayload is a known record type whose payload did not decode.
type MalformedPayload struct {
	Type domain.DecisionType
	Err  error
}

func (AwardPayload) payloadType() domain.DecisionType { return domain.TypeAward }

func (PaymentPayload) payloadType() domain.DecisionType { return domain.TypePayment }

func (ObligationPayload) payloadType() domain.DecisionType { return domain.TypeObligation }

func (p UnrecognizedPayload) payloadType() domain.DecisionType { return p.Type }

func (p MalformedPayload) payloadType() domain.DecisionType { return p.Type }

// Amount is a monetary value with its currency.
type Amount struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Person is a counterparty identified by tax id (AFM).
type Person struct {
	AFM        string `json:"afm"`
	Name       string `json:"name"`
	AFMType    string `json:"afmType"`
	AFMCountry string `json:"afmCountry"`
}

// CPV is a common procurement vocabulary classification.
type CPV struct {
	Code        string `json:"cpvCode"`
	Description string `json:"cpvDescription"`
}

// Sponsor is one beneficiary line of a payment confirmation.
type Sponsor struct {
	ExpenseAmount  *Amount `json:"expenseAmount"`
	SponsorAFMName *Person `json:"sponsorAFMName"`
	KAE            string  `json:"kae"`
}

// KAEAmount is one budget-line split of an obligation.
type KAEAmount struct {
	KAE           string          `json:"kae"`
	AmountWithVAT decimal.Decimal `json:"amountWithVAT"`
}

// FlexInt is an optional integer published either as a number or a string.
// Unparseable values decode as unset instead of failing the payload.
type FlexInt struct {
	Value int
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = FlexInt{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = FlexInt{}
		return nil
	}
	*f = FlexInt{Value: int(v), Valid: true}
	return nil
}

// Ptr returns nil when unset.
func (f FlexInt) Ptr() *int {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// DecodePayload decodes raw according to the record-type code t.
func DecodePayload(t domain.DecisionType, raw json.RawMessage) Payload {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	switch t {
	case domain.TypeAward:
		var p AwardPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return MalformedPayload{Type: t, Err: err}
		}
		return p
	case domain.TypePayment:
		var p PaymentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return MalformedPayload{Type: t, Err: err}
		}
		return p
	case domain.TypeObligation:
		var p ObligationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return MalformedPayload{Type: t, Err: err}
		}
		return p
	default:
		return UnrecognizedPayload{Type: t}
	}
}
