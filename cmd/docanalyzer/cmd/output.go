package cmd

import (
	"fmt"
	"io"
)

// status is a minimal, colorless status line printer, sized to this
// CLI's handful of imperative subcommands rather than a full output
// package.
type status struct{ out io.Writer }

func newStatus(out io.Writer) status { return status{out: out} }

func (s status) line(msg string) {
	_, _ = fmt.Fprintln(s.out, msg)
}

func (s status) linef(format string, args ...any) {
	s.line(fmt.Sprintf(format, args...))
}

func (s status) ok(msg string) {
	_, _ = fmt.Fprintf(s.out, "ok: %s\n", msg)
}

func (s status) fail(msg string) {
	_, _ = fmt.Fprintf(s.out, "error: %s\n", msg)
}
