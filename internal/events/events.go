// Package events defines the notifications emitted after a reconciliation
// run.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cloudspend/internal/reconcile"
)

var ErrInvalidMessage = errors.New("invalid event message")

// RunCompletedType names the RunCompleted event on every transport.
const RunCompletedType = "cloudspend.run.completed"

// RunCompleted is published once per finished run.
type RunCompleted struct {
	RunID            string          `json:"run_id"`
	PeriodStart      string          `json:"period_start,omitempty"`
	PeriodEnd        string          `json:"period_end,omitempty"`
	Status           string          `json:"status"`
	Records          int             `json:"records"`
	LedgerEntries    int             `json:"ledger_entries"`
	RecordTotal      decimal.Decimal `json:"record_total"`
	LedgerTotal      decimal.Decimal `json:"ledger_total"`
	MismatchedMonths []string        `json:"mismatched_months"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Publisher delivers run notifications.
type Publisher interface {
	Publish(ctx context.Context, msg RunCompleted) error
	Close() error
}

// NewRunCompleted summarizes rep.
func NewRunCompleted(rep *reconcile.Report) RunCompleted {
	msg := RunCompleted{
		RunID:            rep.RunID,
		PeriodStart:      day(rep.Start),
		PeriodEnd:        day(rep.End),
		Status:           rep.Status(),
		Records:          len(rep.Records),
		LedgerEntries:    len(rep.Ledger.Entries),
		RecordTotal:      rep.RecordTotal(),
		LedgerTotal:      rep.Ledger.Total(),
		MismatchedMonths: []string{},
		Timestamp:        rep.FinishedAt,
	}
	for _, c := range rep.Mismatches() {
		msg.MismatchedMonths = append(msg.MismatchedMonths, c.Month.String())
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg
}

// Encode converts the message to JSON bytes.
func Encode(msg RunCompleted) ([]byte, error) {
	if msg.RunID == "" {
		return nil, fmt.Errorf("%w: missing run_id", ErrInvalidMessage)
	}
	return json.Marshal(msg)
}

// Decode parses a message produced by Encode.
func Decode(data []byte) (RunCompleted, error) {
	var msg RunCompleted
	if err := json.Unmarshal(data, &msg); err != nil {
		return RunCompleted{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.RunID == "" {
		return RunCompleted{}, fmt.Errorf("%w: missing run_id", ErrInvalidMessage)
	}
	return msg, nil
}

// Nop discards every message.
type Nop struct{}

func (Nop) Publish(context.Context, RunCompleted) error { return nil }
func (Nop) Close() error                                { return nil }

func day(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
