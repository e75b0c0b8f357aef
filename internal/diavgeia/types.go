// Package diavgeia talks to the transparency registry's open-data search API.
package diavgeia

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/spending-tracker/internal/domain"
)

// SearchResponse is the envelope returned by search.json.
type SearchResponse struct {
	Info      SearchInfo `json:"info"`
	Decisions []Decision `json:"decisions"`
}

// SearchInfo carries the declared result count for the whole query.
type SearchInfo struct {
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	Size       int    `json:"size"`
	ActualSize int    `json:"actualSize"`
	Query      string `json:"query"`
}

// Decision is one decision object as published.
type Decision struct {
	ADA                 string              `json:"ada"`
	ProtocolNumber      string              `json:"protocolNumber,omitempty"`
	Subject             string              `json:"subject"`
	DecisionTypeID      domain.DecisionType `json:"decisionTypeId"`
	IssueDate           EpochMillis         `json:"issueDate"`
	PublishDate         *EpochMillis        `json:"publishDate,omitempty"`
	OrganizationID      string              `json:"organizationId"`
	Status              string              `json:"status"`
	URL                 string              `json:"url,omitempty"`
	DocumentURL         string              `json:"documentUrl,omitempty"`
	SignerIDs           []string            `json:"signerIds,omitempty"`
	UnitIDs             []string            `json:"unitIds,omitempty"`
	ThematicCategoryIDs []string            `json:"thematicCategoryIds,omitempty"`
	ExtraFieldValues    json.RawMessage     `json:"extraFieldValues,omitempty"`
}

// Payload decodes the type-specific extraFieldValues of d.
func (d Decision) Payload() Payload {
	return DecodePayload(d.DecisionTypeID, d.ExtraFieldValues)
}

// ToDomain maps the wire object onto the storage shape.
func (d Decision) ToDomain() domain.Decision {
	out := domain.Decision{
		ADA:                 d.ADA,
		ProtocolNumber:      optional(d.ProtocolNumber),
		Subject:             d.Subject,
		Type:                d.DecisionTypeID,
		IssueDate:           d.IssueDate.Time(),
		OrganizationID:      d.OrganizationID,
		Status:              d.Status,
		URL:                 optional(d.URL),
		DocumentURL:         optional(d.DocumentURL),
		SignerIDs:           d.SignerIDs,
		UnitIDs:             d.UnitIDs,
		ThematicCategoryIDs: d.ThematicCategoryIDs,
		ExtraFields:         d.ExtraFieldValues,
	}
	if d.PublishDate != nil && !d.PublishDate.Time().IsZero() {
		t := d.PublishDate.Time()
		out.PublishDate = &t
	}
	if len(bytes.TrimSpace(out.ExtraFields)) == 0 || bytes.Equal(bytes.TrimSpace(out.ExtraFields), []byte("null")) {
		out.ExtraFields = json.RawMessage("{}")
	}
	return out
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// EpochMillis is a timestamp published as milliseconds since the Unix epoch.
type EpochMillis int64

// UnmarshalJSON accepts a number, a numeric string or null.
func (e *EpochMillis) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*e = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*e = EpochMillis(int64(v))
	return nil
}

// Time converts to UTC; the zero value maps to the zero time.
func (e EpochMillis) Time() time.Time {
	if e == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(e)).UTC()
}
