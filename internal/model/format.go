package model

import (
	"fmt"
	"strings"
)

// OutputFormat is a compiled-model output format accepted by the compiler.
type OutputFormat string

const (
	FormatSTL OutputFormat = "stl"
	FormatOFF OutputFormat = "off"
	FormatAMF OutputFormat = "amf"
	Format3MF OutputFormat = "3mf"

	// FormatPNG is the preview raster format. It is valid for retrieval but
	// not as a generation target.
	FormatPNG OutputFormat = "png"
)

var modelFormats = map[OutputFormat]bool{
	FormatSTL: true,
	FormatOFF: true,
	FormatAMF: true,
	Format3MF: true,
}

// ParseOutputFormat validates a user-supplied format tag for model generation.
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !modelFormats[f] {
		return "", fmt.Errorf("unsupported output format %q", s)
	}
	return f, nil
}

// ValidRetrievalFormat reports whether a format tag names a file type the
// retrieval endpoint may serve (model formats plus previews).
func ValidRetrievalFormat(s string) bool {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	return modelFormats[f] || f == FormatPNG
}

func (f OutputFormat) String() string { return string(f) }
