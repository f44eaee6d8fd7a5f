package hemlock

import (
	"fmt"
	"strings"
)

// RenderDiagnostic turns a ParseError or RuntimeError into the
// file:line one-line-cause report a user sees on a failed run. It
// falls back to err.Error() for any other error type: render what it
// recognizes, pass the rest through unchanged.
func RenderDiagnostic(err error, file string, src []byte) string {
	if err == nil {
		return ""
	}

	var sp Span
	var kind, message, token string
	switch e := err.(type) {
	case *RuntimeError:
		sp = e.Span
		kind = e.Kind.String()
		message = e.Message
		if e.File != "" {
			file = e.File
		}
	case RuntimeError:
		return RenderDiagnostic(&e, file, src)
	case *ParseError:
		sp = e.Span
		kind = "ParseError"
		message = e.Message
		token = e.Token
	case ParseError:
		return RenderDiagnostic(&e, file, src)
	default:
		return err.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", kind, message)
	if file != "" {
		fmt.Fprintf(&b, "  --> %s:%d:%d\n", file, sp.Start.Line, sp.Start.Column)
	}
	if len(src) > 0 {
		idx := NewLineIndex(src)
		line := idx.LineText(int(sp.Start.Cursor))
		prefix := fmt.Sprintf("  %d | ", sp.Start.Line)
		fmt.Fprintf(&b, "%s%s\n", prefix, line)
		b.WriteString(caretLine(len(prefix), int(sp.Start.Column), spanWidth(sp)))
	}
	if token != "" {
		fmt.Fprintf(&b, "\n  offending token: %q", token)
	}
	return b.String()
}

// RenderParseErrors renders every collected parse error, one block per
// error, so a caller that wants every syntax mistake at once — unlike
// the CLI, which only surfaces the first — can print them all.
func RenderParseErrors(errs []ParseError, file string, src []byte) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = RenderDiagnostic(e, file, src)
	}
	return strings.Join(parts, "\n\n")
}

func spanWidth(sp Span) int {
	if sp.Start.Line != sp.End.Line {
		return 1
	}
	w := int(sp.End.Column - sp.Start.Column)
	if w < 1 {
		w = 1
	}
	return w
}

func caretLine(prefixLen, column, width int) string {
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", prefixLen+column-1))
	b.WriteString(strings.Repeat("^", width))
	return b.String()
}
