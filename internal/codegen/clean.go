package codegen

import "strings"

// CleanCode strips incidental markdown fencing from a generated artifact: a
// leading ```openscad or ``` opener and a trailing ``` fence. It is
// idempotent, so cleaning an already-clean artifact is a no-op.
func CleanCode(code string) string {
	out := strings.TrimSpace(code)

	for _, opener := range []string{"```openscad", "```scad", "```"} {
		if rest, ok := strings.CutPrefix(out, opener); ok {
			// Only treat it as a fence when it ends the line; "```foo" with an
			// unknown tag is left for the generic pass to skip.
			if rest == "" || rest[0] == '\n' || rest[0] == '\r' {
				out = strings.TrimLeft(rest, "\r\n")
				break
			}
		}
	}

	if rest, ok := strings.CutSuffix(strings.TrimRight(out, " \t\r\n"), "```"); ok {
		out = strings.TrimRight(rest, " \t\r\n")
	}

	return strings.TrimSpace(out)
}
