package printer

import (
	"errors"
)

// ErrNotConnected is reported when the printable surface has no transport
// to the hardware. A ticket emission checks this before any formatting so a
// disconnected printer produces zero output.
var ErrNotConnected = errors.New("printer not connected")

// Alignment positions subsequent text on the paper.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

// TextSize selects the character cell size.
type TextSize int

const (
	SizeNormal TextSize = iota
	SizeDouble // 2x width and height
	SizeQuad   // banner size
)

// Surface is a sequential, append-only formatting target standing in for
// whatever transport reaches the receipt printer. Implementations buffer
// commands; nothing reaches paper until Flush. Cut finalizes the ticket.
//
// Shape follows the sink abstraction pattern: the emitter and the dispatch
// queue never see the wire protocol.
type Surface interface {
	Align(a Alignment) error
	Bold(on bool) error
	Underline(on bool) error
	Size(s TextSize) error
	Line(text string) error
	LeftRight(left, right string) error
	Feed(lines int) error
	Connected() bool
	Cut() error
	Flush() error
}
