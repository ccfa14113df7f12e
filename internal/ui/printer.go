package ui

import (
	"fmt"
	"io"
	"os"
)

// Printer writes rendered components to a writer. Commands print through
// it so tests can capture their output.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w, width: GetTerminalWidth()}
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// Header prints a command header followed by a blank line
func (p *Printer) Header(h *Header) {
	p.Println(h.SetWidth(p.width).Render())
	p.Newline()
}

// Result prints a result box
func (p *Printer) Result(r *Result) {
	p.Println(r.SetWidth(p.width).Render())
}
