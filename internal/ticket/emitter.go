package ticket

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/goldenwok-pos/printd/internal/config"
	"github.com/goldenwok-pos/printd/internal/enum"
	"github.com/goldenwok-pos/printd/internal/order"
	"github.com/goldenwok-pos/printd/internal/printer"
)

const separator = "------------------------------------------"

// Emitter drives a printable surface through the fixed ticket layout for
// one order and destination. It is stateless per call: a failed emission
// never commits, though text already flushed to the device stays on paper
// (the hardware has no transaction concept).
type Emitter struct {
	f *order.Formatter

	restaurantName    string
	restaurantAddress string
	restaurantPhone   string
}

// NewEmitter creates an Emitter rendering the configured restaurant header.
func NewEmitter(cfg *config.Config, f *order.Formatter) *Emitter {
	return &Emitter{
		f:                 f,
		restaurantName:    cfg.RestaurantName,
		restaurantAddress: cfg.RestaurantAddress,
		restaurantPhone:   cfg.RestaurantPhone,
	}
}

// Emit prints one physical ticket for o to the given destination tag.
// If the surface is disconnected it fails with printer.ErrNotConnected
// before producing any output; any mid-layout failure propagates
// unmodified.
func (e *Emitter) Emit(s printer.Surface, o *order.Order, dest string) error {
	if !s.Connected() {
		return printer.ErrNotConnected
	}

	t := &tape{s: s}
	e.header(t, o)
	e.typeHeader(t, o)
	e.preorderBlock(t, o)
	e.details(t, o)
	e.items(t, o)
	e.totals(t, o)
	e.footer(t, o, dest)

	if t.err != nil {
		return t.err
	}
	if err := s.Cut(); err != nil {
		return err
	}
	return s.Flush()
}

func (e *Emitter) header(t *tape, o *order.Order) {
	t.align(printer.AlignCenter)
	t.size(printer.SizeDouble)
	t.line(e.restaurantName)
	t.size(printer.SizeNormal)
	t.line(e.restaurantAddress)
	t.line(e.restaurantPhone)
	if o.Paid {
		t.bold(true)
		t.line("*** PAID ***")
		t.bold(false)
	}
	t.feed(1)
}

func (e *Emitter) typeHeader(t *tape, o *order.Order) {
	if o.OrderType == enum.OrderTypeTakeOut && !o.IsPreorder {
		t.align(printer.AlignCenter)
		t.size(printer.SizeQuad)
		t.line("TAKE OUT")
		t.size(printer.SizeNormal)
		return
	}
	t.align(printer.AlignCenter)
	t.size(printer.SizeDouble)
	t.line("Table " + o.TableNumber)
	t.size(printer.SizeNormal)
}

func (e *Emitter) preorderBlock(t *tape, o *order.Order) {
	if o.IsPreorder && o.PreorderTime != nil {
		t.align(printer.AlignCenter)
		t.size(printer.SizeDouble)
		t.line("PRE-ORDER")
		t.line(o.PreorderTime.Format("Monday Jan 2 @ 3:04 PM"))
		t.size(printer.SizeNormal)
		return
	}
	t.feed(2)
}

func (e *Emitter) details(t *tape, o *order.Order) {
	t.align(printer.AlignLeft)
	if o.StaffName != "" {
		t.line("Staff: " + o.StaffName)
	}
	if o.OrderType == enum.OrderTypeDineIn && o.Guests > 0 {
		t.line(fmt.Sprintf("Guests: %d", o.Guests))
	}
	if o.CreatedAt != nil {
		t.line(o.CreatedAt.Format("Jan 2, 2006 3:04 PM"))
	}
	if !o.IsPreorder && o.OrderType != enum.OrderTypeDineIn && o.ReadyTime > 0 {
		t.line(fmt.Sprintf("Ready in %d minutes", o.ReadyTime))
	}
	if o.OrderType == enum.OrderTypeTakeOut {
		t.line("Name: " + o.Name)
		if o.PhoneNumber != "" {
			t.line("Phone: " + FormatPhone(o.PhoneNumber))
		}
	}
	t.line(separator)
}

func (e *Emitter) items(t *tape, o *order.Order) {
	normalized := e.f.NormalizeItems(o.Items)
	sections := e.f.GroupByDestination(normalized, false)

	for _, sec := range sections {
		switch sec.Label {
		case order.SectionTogo:
			t.align(printer.AlignCenter)
			t.size(printer.SizeDouble)
			t.line("TO GO")
			t.size(printer.SizeNormal)
			t.align(printer.AlignLeft)
		case order.SectionAppetizers:
			t.align(printer.AlignLeft)
			t.bold(true)
			t.line("Appetizers")
			t.bold(false)
		default:
			t.align(printer.AlignLeft)
			t.bold(true)
			t.line(sec.Label)
			t.bold(false)
		}

		for _, it := range sec.Items {
			e.item(t, it)
		}

		if sec.Label == order.SectionAppetizers {
			t.line(separator)
		}
		if sec.Label == order.SectionTogo {
			t.leftRight("Togo Total:", "$"+e.f.SumTogoTotal(sec.Items).StringFixed(2))
		}
	}
	t.line(separator)
}

func (e *Emitter) item(t *tape, it order.NormalizedItem) {
	t.line(it.DisplayName)

	for _, opt := range it.Options {
		left := "- " + opt.Name
		qty := opt.Quantity
		if qty > 1 {
			left = fmt.Sprintf("- %dx %s", qty, opt.Name)
		} else {
			qty = 1
		}
		right := ""
		if opt.Price.IsPositive() {
			right = "$" + opt.Price.Mul(decimal.NewFromInt(int64(qty))).StringFixed(2)
		}
		t.leftRight(left, right)
	}
	for _, ex := range it.Extras {
		t.leftRight("- "+strings.ToUpper(ex.Description), "$"+ex.Price.StringFixed(2))
	}
	for _, ch := range it.Changes {
		t.leftRight("- "+strings.ToUpper(ch.From)+" -->> "+strings.ToUpper(ch.To), "$"+ch.Price.StringFixed(2))
	}
	if it.Instructions != "" {
		t.line(`"` + strings.ToUpper(it.Instructions) + `"`)
	}

	// Numeric comparison on purpose: the total is omitted only when the
	// extended price itself is zero, not when its formatted text is falsy.
	if total := it.LineTotal(); total.IsPositive() {
		t.leftRight("", "$"+total.StringFixed(2))
	}
}

func (e *Emitter) totals(t *tape, o *order.Order) {
	totals := e.f.ComputeTotals(o, nil)
	t.align(printer.AlignLeft)
	t.leftRight("Subtotal:", "$"+totals.Subtotal.StringFixed(2))
	t.leftRight("PST:", "$"+totals.PST.StringFixed(2))
	t.leftRight("GST:", "$"+totals.GST.StringFixed(2))
	t.bold(true)
	t.leftRight("Total:", "$"+totals.GrandTotal.StringFixed(2))
	t.bold(false)
	t.feed(1)
}

func (e *Emitter) footer(t *tape, o *order.Order, dest string) {
	t.align(printer.AlignCenter)
	t.line("Thank You!")
	t.line("Please Come Again")
	t.feed(1)

	if o.OrderType == enum.OrderTypeTakeOut || o.IsPreorder {
		banner := "TAKE OUT"
		if o.IsPreorder {
			banner = "PRE-ORDER"
		}
		if dest != "" {
			banner += " " + dest
		}
		t.size(printer.SizeQuad)
		t.line(banner)
		t.size(printer.SizeNormal)
		return
	}
	t.size(printer.SizeDouble)
	t.line("Table " + o.TableNumber)
	t.size(printer.SizeNormal)
}

// FormatPhone renders a bare 10-digit number as "AAA BBB-CCCC". Anything
// else comes back unchanged.
func FormatPhone(p string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, p)
	if len(digits) != 10 {
		return p
	}
	return digits[0:3] + " " + digits[3:6] + "-" + digits[6:10]
}

// tape wraps a Surface with a sticky error so layout code reads as a
// straight sequence of commands. After the first failure every call is a
// no-op and the error surfaces once at the end.
type tape struct {
	s   printer.Surface
	err error
}

func (t *tape) do(err error) {
	if t.err == nil {
		t.err = err
	}
}

func (t *tape) align(a printer.Alignment) { t.do(t.s.Align(a)) }
func (t *tape) bold(on bool)              { t.do(t.s.Bold(on)) }
func (t *tape) size(s printer.TextSize)   { t.do(t.s.Size(s)) }
func (t *tape) line(text string)          { t.do(t.s.Line(text)) }
func (t *tape) leftRight(l, r string)     { t.do(t.s.LeftRight(l, r)) }
func (t *tape) feed(n int)                { t.do(t.s.Feed(n)) }
