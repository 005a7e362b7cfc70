package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Notice is one best-effort operator message.
type Notice struct {
	// Key dedupes the notice across redeliveries. Empty disables dedupe.
	Key     string
	Kind    string
	To      string
	Subject string
	Body    string

	Provider string
	EventID  string
}

// Alert is an out-of-band report of a failure that must not go back through
// the notice channel.
type Alert struct {
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
	Provider  string    `json:"provider,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	EventKind string    `json:"event_kind,omitempty"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// NoticeKey builds the dedupe key for a notice tied to one provider event.
func NoticeKey(provider, eventID, kind string) string {
	return strings.Join([]string{provider, eventID, kind}, ":")
}

// FormatAmount renders minor currency units as "12.34 USD".
func FormatAmount(cents int64, currency string) string {
	amount := decimal.New(cents, -2).StringFixed(2)
	if currency == "" {
		return amount
	}
	return fmt.Sprintf("%s %s", amount, strings.ToUpper(currency))
}
