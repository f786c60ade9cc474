package printer

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// Character columns on an 80mm thermal roll at normal size.
	lineWidth = 42

	dialTimeout = 5 * time.Second
)

// ESC/POS command prefixes.
var (
	cmdInit      = []byte{0x1b, 0x40}
	cmdAlign     = []byte{0x1b, 0x61}
	cmdBold      = []byte{0x1b, 0x45}
	cmdUnderline = []byte{0x1b, 0x2d}
	cmdSize      = []byte{0x1d, 0x21}
	cmdCutFeed   = []byte{0x1d, 0x56, 0x42, 0x03} // partial cut after 3-line feed
)

// ESCPOS drives a network receipt printer (raw 9100-style socket) with
// ESC/POS escape sequences. Commands accumulate in a write buffer; Flush
// pushes them to the device. Safe for use from one goroutine at a time;
// the dispatch queue already serializes all print calls.
type ESCPOS struct {
	addr    string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
	w    *bufio.Writer
	size TextSize
}

// NewESCPOS creates a driver for the printer at addr (host:port). timeout
// bounds every physical write, so a wedged device fails the job instead of
// hanging the worker forever. The connection is established lazily by
// Connect; a constructed driver starts disconnected.
func NewESCPOS(addr string, timeout time.Duration) *ESCPOS {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ESCPOS{addr: addr, timeout: timeout}
}

// Connect dials the printer and resets its formatting state. Calling it on
// an open driver reconnects.
func (p *ESCPOS) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.drop()

	conn, err := net.DialTimeout("tcp", p.addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("dial printer %s: %w", p.addr, err)
	}
	p.conn = conn
	p.w = bufio.NewWriter(conn)
	p.size = SizeNormal
	return p.writeLocked(cmdInit)
}

// Close tears down the connection. The driver can be reused after Connect.
func (p *ESCPOS) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	p.w = nil
	return err
}

// Addr returns the configured printer address.
func (p *ESCPOS) Addr() string { return p.addr }

// Connected reports whether the driver holds an open connection.
func (p *ESCPOS) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

// write appends b to the ticket buffer. The deadline is armed before every
// call because a full buffer writes straight through to the socket; any
// write failure drops the connection so Connected turns false and the
// reconnect watchdog takes over.
func (p *ESCPOS) write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLocked(b)
}

func (p *ESCPOS) writeLocked(b []byte) error {
	if p.w == nil {
		return ErrNotConnected
	}
	p.conn.SetWriteDeadline(time.Now().Add(p.timeout))
	if _, err := p.w.Write(b); err != nil {
		p.drop()
		return err
	}
	return nil
}

// drop tears the connection down. Callers hold mu.
func (p *ESCPOS) drop() {
	if p.conn != nil {
		p.conn.Close()
	}
	p.conn = nil
	p.w = nil
}

func (p *ESCPOS) Align(a Alignment) error {
	return p.write(append(append([]byte(nil), cmdAlign...), byte(a)))
}

func (p *ESCPOS) Bold(on bool) error {
	return p.write(append(append([]byte(nil), cmdBold...), flag(on)))
}

func (p *ESCPOS) Underline(on bool) error {
	return p.write(append(append([]byte(nil), cmdUnderline...), flag(on)))
}

func (p *ESCPOS) Size(s TextSize) error {
	var n byte
	switch s {
	case SizeDouble:
		n = 0x11 // 2x2
	case SizeQuad:
		n = 0x33 // 4x4
	default:
		n = 0x00
	}
	if err := p.write(append(append([]byte(nil), cmdSize...), n)); err != nil {
		return err
	}
	p.mu.Lock()
	p.size = s
	p.mu.Unlock()
	return nil
}

func (p *ESCPOS) Line(text string) error {
	return p.write(append([]byte(text), '\n'))
}

// LeftRight prints a two-column line, left text padded against right text
// across the full paper width at the current character size.
func (p *ESCPOS) LeftRight(left, right string) error {
	width := lineWidth
	p.mu.Lock()
	if p.size != SizeNormal {
		width = lineWidth / 2
	}
	p.mu.Unlock()

	pad := width - utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if pad < 1 {
		pad = 1
	}
	return p.Line(left + strings.Repeat(" ", pad) + right)
}

func (p *ESCPOS) Feed(lines int) error {
	return p.write([]byte(strings.Repeat("\n", lines)))
}

// Cut feeds past the tear bar and performs a partial cut.
func (p *ESCPOS) Cut() error {
	return p.write(cmdCutFeed)
}

// Flush pushes the buffered ticket to the device. A transport failure
// drops the connection so Connected turns false and the reconnect watchdog
// can re-establish it.
func (p *ESCPOS) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.w == nil {
		return ErrNotConnected
	}
	p.conn.SetWriteDeadline(time.Now().Add(p.timeout))
	if err := p.w.Flush(); err != nil {
		p.drop()
		return err
	}
	return nil
}

func flag(on bool) byte {
	if on {
		return 1
	}
	return 0
}
