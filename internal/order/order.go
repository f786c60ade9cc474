package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/goldenwok-pos/printd/internal/enum"
)

// ErrMalformedDocument is returned when a queued document cannot be decoded
// into an Order. Callers log and discard; a bad row must never crash the
// worker loop.
var ErrMalformedDocument = errors.New("malformed order document")

// Order is a snapshot of a customer order at the moment it was queued for
// printing.
type Order struct {
	ID           string     `json:"id"`
	OrderType    string     `json:"orderType"`
	IsPreorder   bool       `json:"isPreorder"`
	TableNumber  string     `json:"tableNumber"`
	Name         string     `json:"name"`
	PhoneNumber  string     `json:"phoneNumber"`
	Guests       int        `json:"guests"`
	StaffName    string     `json:"staffName"`
	CreatedAt    *Timestamp `json:"createdAt"`
	PreorderTime *Timestamp `json:"preorderTime"`
	ReadyTime    int        `json:"readyTime"` // estimate in minutes
	Paid         bool       `json:"paid"`
	Items        []Item     `json:"items"`

	// Total is the upstream-computed subtotal, when present.
	Total *decimal.Decimal `json:"total"`

	// TaxBreakdown, when present with a grand total, is authoritative over
	// locally recomputed tax.
	TaxBreakdown *TaxBreakdown `json:"taxBreakdown"`

	// PrintID is the durable queue entry's own identity, attached when the
	// job is dequeued from the feed. uuid.Nil means the order was submitted
	// outside the queue (e.g. a manual reprint) and no queue entry exists
	// to delete on completion.
	PrintID uuid.UUID `json:"-"`
}

// Item is one ordered product line.
type Item struct {
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"` // per unit
	KitchenType  string          `json:"kitchenType"`
	Appetizer    bool            `json:"appetizer"`
	Togo         bool            `json:"togo"`
	Options      []Option        `json:"options"`
	Extras       []Extra         `json:"extras"`
	Changes      []Change        `json:"changes"`
	Instructions string          `json:"instructions"`
}

// Option is a selectable variation on an item (side choice, substitution).
type Option struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"` // 0 means unset
	Price    decimal.Decimal `json:"price"`
}

// Extra is a priced addition to an item.
type Extra struct {
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// Change is a priced substitution, rendered "FROM -->> TO".
type Change struct {
	From  string          `json:"from"`
	To    string          `json:"to"`
	Price decimal.Decimal `json:"price"`
}

// TaxBreakdown is an upstream-precomputed totals block. Fields are pointers
// so a missing sub-field can fall back independently.
type TaxBreakdown struct {
	Total      *decimal.Decimal `json:"total"` // subtotal
	PST        *decimal.Decimal `json:"pst"`
	GST        *decimal.Decimal `json:"gst"`
	GrandTotal *decimal.Decimal `json:"grandTotal"`
}

// Decode parses a queued order document. It validates the fields the
// dispatcher cannot work without; anything else is passed through as-is.
func Decode(doc []byte) (*Order, error) {
	var o Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if o.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedDocument)
	}
	if !enum.ValidOrderType(o.OrderType) {
		return nil, fmt.Errorf("%w: unknown orderType %q", ErrMalformedDocument, o.OrderType)
	}
	for i := range o.Items {
		if o.Items[i].Quantity < 1 {
			o.Items[i].Quantity = 1
		}
		// An item routed to a station nobody knows would land in no ticket
		// section and silently vanish from the printout.
		if !enum.ValidKitchenType(o.Items[i].KitchenType) {
			return nil, fmt.Errorf("%w: item %q has unknown kitchenType %q",
				ErrMalformedDocument, o.Items[i].Name, o.Items[i].KitchenType)
		}
	}
	return &o, nil
}

// Timestamp accepts the two upstream timestamp representations: an RFC 3339
// string, or a {seconds, nanoseconds} pair (with or without underscore
// prefixes). Both normalize to a time.Time at the decode boundary so layout
// code only ever sees one form.
type Timestamp struct {
	time.Time
}

type secondsPair struct {
	Seconds      *int64 `json:"seconds"`
	Nanoseconds  int64  `json:"nanoseconds"`
	USeconds     *int64 `json:"_seconds"`
	UNanoseconds int64  `json:"_nanoseconds"`
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("timestamp string %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}

	var pair secondsPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	switch {
	case pair.Seconds != nil:
		t.Time = time.Unix(*pair.Seconds, pair.Nanoseconds)
	case pair.USeconds != nil:
		t.Time = time.Unix(*pair.USeconds, pair.UNanoseconds)
	default:
		return errors.New("timestamp: no recognized representation")
	}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339))
}
