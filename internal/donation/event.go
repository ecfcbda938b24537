// Package donation holds the donation event model and minor-unit arithmetic.
package donation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindTip     Kind = "tip"
	KindDeposit Kind = "deposit"
)

var ErrInvalidEvent = errors.New("invalid donation event")

// Event is one incoming donation. It is immutable once queued.
type Event struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"type"`
	Amount      decimal.Decimal `json:"xrp"`
	User        string          `json:"user,omitempty"`
	UserNetwork string          `json:"user_network,omitempty"`
	Network     string          `json:"network,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// wirePayload is the bus message. user_id arrives as a string or a number
// depending on the source network.
type wirePayload struct {
	Type        string          `json:"type"`
	XRP         decimal.Decimal `json:"xrp"`
	User        string          `json:"user"`
	UserNetwork string          `json:"user_network"`
	Network     string          `json:"network"`
	UserID      json.RawMessage `json:"user_id"`
}

// Decode parses a bus payload into a validated Event with a fresh ID.
// fallbackKind is used when the payload omits "type" (it is implied by the topic).
func Decode(b []byte, fallbackKind Kind, now time.Time) (Event, error) {
	var p wirePayload
	if err := json.Unmarshal(b, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	kind := Kind(strings.ToLower(strings.TrimSpace(p.Type)))
	if kind == "" {
		kind = fallbackKind
	}
	ev := Event{
		ID:          uuid.NewString(),
		Kind:        kind,
		Amount:      p.XRP,
		User:        strings.TrimSpace(p.User),
		UserNetwork: strings.TrimSpace(p.UserNetwork),
		Network:     strings.TrimSpace(p.Network),
		UserID:      rawID(p.UserID),
		ReceivedAt:  now,
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (e Event) Validate() error {
	switch e.Kind {
	case KindTip, KindDeposit:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Kind)
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be > 0, got %s", ErrInvalidEvent, e.Amount)
	}
	return nil
}
