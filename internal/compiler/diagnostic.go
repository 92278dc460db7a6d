package compiler

import (
	"regexp"
	"strconv"
	"strings"
)

// Diagnostic is a best-effort structured view of compiler error output. The
// compiler's diagnostic format is not formally specified, so line/column
// extraction is advisory; both stay nil when no token matches.
type Diagnostic struct {
	Message string
	Line    *int
	Column  *int
}

var (
	linePattern   = regexp.MustCompile(`(?i)\bline\s+(\d+)`)
	columnPattern = regexp.MustCompile(`(?i)\bcolumn\s+(\d+)`)
)

// ParseDiagnostic extracts line/column hints from raw compiler output. It
// never fails; unparseable text simply yields a message-only diagnostic.
func ParseDiagnostic(raw string) Diagnostic {
	d := Diagnostic{Message: strings.TrimSpace(raw)}

	if m := linePattern.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			d.Line = &n
		}
	}
	if m := columnPattern.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			d.Column = &n
		}
	}

	return d
}
