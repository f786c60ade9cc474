package enum

// ── Order types (stored in the order document) ──

const (
	OrderTypeDineIn  = "DINE_IN"
	OrderTypeTakeOut = "TAKE_OUT"
)

// ── Kitchen types: physical preparation stations items route to ──

const (
	KitchenTypeA = "A"
	KitchenTypeB = "B"
	KitchenTypeC = "C"
	KitchenTypeZ = "Z"
)

// ── Destination tags: which physical ticket copy is being emitted ──
// Take-out orders print duplicate tickets, kitchen copy first then counter.

const (
	DestinationA       = "A"
	DestinationB       = "B"
	DestinationDefault = ""
)

// ── Job lifecycle events (broadcast over the websocket feed) ──

const (
	JobEventQueued   = "job.queued"
	JobEventPrinting = "job.printing"
	JobEventPrinted  = "job.printed"
	JobEventFailed   = "job.failed"
)

// ValidOrderType reports whether t is a recognized order type.
func ValidOrderType(t string) bool {
	return t == OrderTypeDineIn || t == OrderTypeTakeOut
}

// ValidKitchenType reports whether k names a known preparation station.
func ValidKitchenType(k string) bool {
	switch k {
	case KitchenTypeA, KitchenTypeB, KitchenTypeC, KitchenTypeZ:
		return true
	}
	return false
}
