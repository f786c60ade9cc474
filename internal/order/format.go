package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/goldenwok-pos/printd/internal/config"
	"github.com/goldenwok-pos/printd/internal/enum"
)

// Section labels, in fixed emission order.
const (
	SectionAppetizers = "Appetizers"
	SectionKitchenA   = "Kitchen A"
	SectionKitchenZ   = "Kitchen Z"
	SectionKitchenB   = "Kitchen B"
	SectionKitchenC   = "Kitchen C"
	SectionTogo       = "Togo Items"
)

// Formatter turns raw order records into printable line items, destination
// sections and totals. It is pure: no I/O, no shared state beyond the
// configured labels and tax rates.
type Formatter struct {
	pstRate decimal.Decimal
	gstRate decimal.Decimal

	specialItem string
	eggRoll     string
	springRoll  string
	rice        string
	noodles     string
}

// NewFormatter creates a Formatter from the loaded configuration.
func NewFormatter(cfg *config.Config) *Formatter {
	return &Formatter{
		pstRate:     cfg.PSTRate,
		gstRate:     cfg.GSTRate,
		specialItem: cfg.SpecialItem,
		eggRoll:     cfg.EggRollLabel,
		springRoll:  cfg.SpringRollLabel,
		rice:        cfg.RiceLabel,
		noodles:     cfg.NoodleLabel,
	}
}

// NormalizedItem is an Item whose name has absorbed the consumed side
// options, plus the derived display name. The original item is never
// mutated.
type NormalizedItem struct {
	Item
	DisplayName string
}

// Section is a group of items routed to one part of the ticket.
type Section struct {
	Label string
	Items []NormalizedItem
}

// Totals is the computed or trusted tax breakdown for a ticket.
type Totals struct {
	Subtotal   decimal.Decimal
	PST        decimal.Decimal
	GST        decimal.Decimal
	GrandTotal decimal.Decimal
}

// NormalizeItem folds an item's well-known side options (main choice on
// special combos, egg/spring roll, rice/noodles) into its name. Each rule
// consumes at most one option, scanning the residual list left by earlier
// rules; removal order matters because a consumed option can never match a
// later rule. Remaining options stay on the item to render beneath the
// name. Priced content is never dropped: a consumed option is reflected in
// the rewritten name, everything else stays listed.
func (f *Formatter) NormalizeItem(it Item) NormalizedItem {
	if it.Quantity < 1 {
		it.Quantity = 1
	}

	name := it.Name
	opts := append([]Option(nil), it.Options...)

	if len(opts) > 0 {
		if name == f.specialItem {
			if i := indexOption(opts, func(o Option) bool {
				return !labelIs(o.Name, f.eggRoll) && !labelIs(o.Name, f.springRoll)
			}); i >= 0 {
				name += "/" + opts[i].Name
				opts = removeOption(opts, i)
			}
		}

		if i := indexOption(opts, func(o Option) bool {
			return (labelIs(o.Name, f.eggRoll) || labelIs(o.Name, f.springRoll)) && o.Quantity <= 1
		}); i >= 0 {
			if labelIs(opts[i].Name, f.eggRoll) {
				name += "/ER"
			} else {
				name += "/SP"
			}
			opts = removeOption(opts, i)
		}

		if i := indexOption(opts, func(o Option) bool {
			return labelIs(o.Name, f.rice) || labelIs(o.Name, f.noodles)
		}); i >= 0 {
			if labelIs(opts[i].Name, f.rice) {
				name += "/Rice"
			} else {
				name += "/ND"
			}
			opts = removeOption(opts, i)
		}
	}

	display := name
	if it.Quantity > 1 {
		display = fmt.Sprintf("%dx %s", it.Quantity, name)
	}

	it.Name = name
	it.Options = opts
	return NormalizedItem{Item: it, DisplayName: display}
}

// NormalizeItems maps NormalizeItem over items. A nil input yields an empty
// slice, never an error.
func (f *Formatter) NormalizeItems(items []Item) []NormalizedItem {
	out := make([]NormalizedItem, 0, len(items))
	for _, it := range items {
		out = append(out, f.NormalizeItem(it))
	}
	return out
}

// GroupByDestination partitions items into ticket sections in fixed order:
// Appetizers, Kitchen A, Kitchen Z, Kitchen B, Kitchen C, Togo. Membership
// is mutually exclusive: the appetizer flag wins over everything, then
// kitchen assignment for non-togo items, then togo. Empty sections are
// omitted. With excludeTogo the togo section is not produced at all.
func (f *Formatter) GroupByDestination(items []NormalizedItem, excludeTogo bool) []Section {
	appetizers := Section{Label: SectionAppetizers}
	kitchens := []Section{
		{Label: SectionKitchenA},
		{Label: SectionKitchenZ},
		{Label: SectionKitchenB},
		{Label: SectionKitchenC},
	}
	kitchenIdx := map[string]int{
		enum.KitchenTypeA: 0,
		enum.KitchenTypeZ: 1,
		enum.KitchenTypeB: 2,
		enum.KitchenTypeC: 3,
	}
	togo := Section{Label: SectionTogo}

	for _, it := range items {
		switch {
		case it.Appetizer:
			appetizers.Items = append(appetizers.Items, it)
		case !it.Togo:
			if i, ok := kitchenIdx[it.KitchenType]; ok {
				kitchens[i].Items = append(kitchens[i].Items, it)
			}
		case !excludeTogo:
			togo.Items = append(togo.Items, it)
		}
	}

	sections := make([]Section, 0, 6)
	if len(appetizers.Items) > 0 {
		sections = append(sections, appetizers)
	}
	for _, k := range kitchens {
		if len(k.Items) > 0 {
			sections = append(sections, k)
		}
	}
	if !excludeTogo && len(togo.Items) > 0 {
		sections = append(sections, togo)
	}
	return sections
}

// ComputeTotals returns the tax breakdown for a ticket. An upstream
// breakdown carrying a grand total is trusted verbatim, with missing
// sub-fields falling back to the caller-supplied subtotal or zero.
// Otherwise taxes are computed locally from the subtotal and the
// configured rates.
func (f *Formatter) ComputeTotals(o *Order, explicitSubtotal *decimal.Decimal) Totals {
	if o.TaxBreakdown != nil && o.TaxBreakdown.GrandTotal != nil {
		t := Totals{GrandTotal: *o.TaxBreakdown.GrandTotal}
		switch {
		case o.TaxBreakdown.Total != nil:
			t.Subtotal = *o.TaxBreakdown.Total
		case explicitSubtotal != nil:
			t.Subtotal = *explicitSubtotal
		}
		if o.TaxBreakdown.PST != nil {
			t.PST = *o.TaxBreakdown.PST
		}
		if o.TaxBreakdown.GST != nil {
			t.GST = *o.TaxBreakdown.GST
		}
		return t
	}

	subtotal := decimal.Zero
	switch {
	case explicitSubtotal != nil:
		subtotal = *explicitSubtotal
	case o.Total != nil:
		subtotal = *o.Total
	}

	pst := subtotal.Mul(f.pstRate)
	gst := subtotal.Mul(f.gstRate)
	return Totals{
		Subtotal:   subtotal,
		PST:        pst,
		GST:        gst,
		GrandTotal: subtotal.Add(pst).Add(gst),
	}
}

// Breakdown converts totals back into the upstream representation, so a
// trusted round trip reproduces itself exactly.
func (t Totals) Breakdown() *TaxBreakdown {
	return &TaxBreakdown{
		Total:      &t.Subtotal,
		PST:        &t.PST,
		GST:        &t.GST,
		GrandTotal: &t.GrandTotal,
	}
}

// SumTogoTotal sums the boxed-separately items: unit price times quantity,
// plus flat option prices (not multiplied by option quantity), plus extras
// and changes. A nil input yields zero.
func (f *Formatter) SumTogoTotal(items []NormalizedItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		for _, o := range it.Options {
			total = total.Add(o.Price)
		}
		for _, e := range it.Extras {
			total = total.Add(e.Price)
		}
		for _, c := range it.Changes {
			total = total.Add(c.Price)
		}
	}
	return total
}

// LineTotal is the per-line extended price: unit price times quantity.
func (it NormalizedItem) LineTotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

func labelIs(name, label string) bool {
	return strings.EqualFold(strings.TrimSpace(name), label)
}

func indexOption(opts []Option, match func(Option) bool) int {
	for i, o := range opts {
		if match(o) {
			return i
		}
	}
	return -1
}

func removeOption(opts []Option, i int) []Option {
	return append(opts[:i:i], opts[i+1:]...)
}
