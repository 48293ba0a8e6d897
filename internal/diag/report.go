package diag

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Reporter renders structured errors with a source excerpt and a ^
// pointer, the way the parser's error output is specified to look.
// Color is auto-detected from the output stream and disabled by
// NO_COLOR, matching the spec's terminal-detection rule.
type Reporter struct {
	lines      []string
	file       string
	colorize   bool
	errColor   *color.Color
	caretColor *color.Color
}

// NewReporter builds a Reporter over the given source text. w is the
// stream errors will eventually be written to; it is only used to decide
// whether color is appropriate.
func NewReporter(file, source string, w *os.File) *Reporter {
	return &Reporter{
		lines:      strings.Split(source, "\n"),
		file:       file,
		colorize:   shouldColorize(w),
		errColor:   color.New(color.FgRed, color.Bold),
		caretColor: color.New(color.FgYellow, color.Bold),
	}
}

func shouldColorize(w *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if w == nil {
		return false
	}
	return isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd())
}

// Render produces the full diagnostic text for err: the summary line
// followed by a 5-line source excerpt centered on err.Pos with a ^
// pointer under the offending column. Codegen and loader errors are
// rendered as a terse one-liner with no excerpt, per the spec's policy
// that those are bugs, not user errors.
func (r *Reporter) Render(err *Error) string {
	if !err.Kind.UserFacing() {
		return fmt.Sprintf("%s: %s", err.Kind, err.Message)
	}

	var b strings.Builder
	header := fmt.Sprintf("%s: %s", err.Kind, err.Message)
	if r.colorize {
		header = r.errColor.Sprint(header)
	}
	fmt.Fprintf(&b, "%s\n  --> %s\n", header, err.Pos)

	const context = 2
	lineIdx := err.Pos.Line - 1
	start := lineIdx - context
	if start < 0 {
		start = 0
	}
	end := lineIdx + context + 1
	if end > len(r.lines) {
		end = len(r.lines)
	}
	gutterWidth := len(fmt.Sprintf("%d", end))
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%*d | %s\n", gutterWidth, i+1, r.lines[i])
		if i == lineIdx {
			pointer := strings.Repeat(" ", gutterWidth) + " | " + strings.Repeat(" ", max0(err.Pos.Column-1)) + "^"
			if r.colorize {
				pointer = r.caretColor.Sprint(pointer)
			}
			fmt.Fprintln(&b, pointer)
		}
	}
	err.Excerpt = b.String()
	return b.String()
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
