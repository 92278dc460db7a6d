// Package compiler adapts the OpenSCAD command-line compiler: source text in,
// preview image or model artifact out, with structured diagnostics on failure.
package compiler

import (
	"context"
	"errors"
	"fmt"

	"meshforge.app/studio/internal/model"
)

// ErrOutputNotFound is returned by Lookup when no file exists for the given
// id and format.
var ErrOutputNotFound = errors.New("output file not found")

// PreviewResult describes a successful preview compile. The file ID is a
// fresh UUID per saved source, never reused across retries.
type PreviewResult struct {
	FileID      string
	SourcePath  string
	PreviewPath string
	PreviewURL  string
}

// RenderResult describes a successful final-artifact render.
type RenderResult struct {
	FileID      string
	SourcePath  string
	OutputPath  string
	ArtifactURL string
}

// CompileError carries the compiler's raw diagnostic text.
type CompileError struct {
	Diagnostic string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile failed: %s", e.Diagnostic)
}

// Compiler produces previews and model artifacts from OpenSCAD source.
type Compiler interface {
	// Preview saves the source and renders a raster preview image.
	Preview(ctx context.Context, source string) (*PreviewResult, error)
	// Render saves the source and compiles the final model artifact in the
	// requested format.
	Render(ctx context.Context, source string, format model.OutputFormat) (*RenderResult, error)
	// Lookup resolves a previously produced file to its on-disk path.
	Lookup(fileID string, format string) (string, error)
}
