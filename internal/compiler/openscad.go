package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"meshforge.app/studio/common/logger"
	"meshforge.app/studio/internal/model"
)

type Config struct {
	Binary        string
	WorkDir       string
	PreviewSize   string // "WIDTHxHEIGHT"
	Timeout       time.Duration
	PublicBaseURL string
}

// OpenSCAD invokes the openscad binary as a subprocess.
type OpenSCAD struct {
	cfg    Config
	runner CommandRunner
}

func NewOpenSCAD(cfg Config, runner CommandRunner) (*OpenSCAD, error) {
	if cfg.Binary == "" {
		cfg.Binary = "openscad"
	}
	if cfg.PreviewSize == "" {
		cfg.PreviewSize = "800x600"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if runner == nil {
		runner = ExecCommandRunner{}
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	return &OpenSCAD{cfg: cfg, runner: runner}, nil
}

func (o *OpenSCAD) Preview(ctx context.Context, source string) (*PreviewResult, error) {
	fileID := uuid.NewString()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		FileID:    logger.Ptr(fileID),
		Component: "studio.compiler.openscad",
	})

	sourcePath, err := o.saveSource(fileID, source)
	if err != nil {
		return nil, err
	}

	previewPath := o.outputPath(fileID, string(model.FormatPNG))
	args := []string{
		"-o", previewPath,
		"--imgsize", imgsizeArg(o.cfg.PreviewSize),
		"--autocenter",
		"--viewall",
		sourcePath,
	}

	if err := o.invoke(ctx, args, previewPath); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "preview rendered", "preview_path", previewPath)

	return &PreviewResult{
		FileID:      fileID,
		SourcePath:  sourcePath,
		PreviewPath: previewPath,
		PreviewURL:  o.publicURL(fileID, string(model.FormatPNG)),
	}, nil
}

func (o *OpenSCAD) Render(ctx context.Context, source string, format model.OutputFormat) (*RenderResult, error) {
	fileID := uuid.NewString()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		FileID:    logger.Ptr(fileID),
		Component: "studio.compiler.openscad",
	})

	sourcePath, err := o.saveSource(fileID, source)
	if err != nil {
		return nil, err
	}

	outputPath := o.outputPath(fileID, string(format))
	args := []string{"-o", outputPath, sourcePath}

	if err := o.invoke(ctx, args, outputPath); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "artifact rendered", "output_path", outputPath, "render_format", string(format))

	return &RenderResult{
		FileID:      fileID,
		SourcePath:  sourcePath,
		OutputPath:  outputPath,
		ArtifactURL: o.publicURL(fileID, string(format)),
	}, nil
}

func (o *OpenSCAD) Lookup(fileID string, format string) (string, error) {
	// File IDs are always UUIDs we minted; anything else is rejected before
	// it can touch the filesystem.
	if _, err := uuid.Parse(fileID); err != nil {
		return "", ErrOutputNotFound
	}
	if !model.ValidRetrievalFormat(format) {
		return "", ErrOutputNotFound
	}

	path := o.outputPath(fileID, format)
	if _, err := os.Stat(path); err != nil {
		return "", ErrOutputNotFound
	}
	return path, nil
}

func (o *OpenSCAD) invoke(ctx context.Context, args []string, wantFile string) error {
	sc := logger.StartSpan(ctx, "compiler.invoke")
	defer sc.End()
	ctx, cancel := context.WithTimeout(sc.Context(), o.cfg.Timeout)
	defer cancel()

	start := time.Now()
	output, err := o.runner.Run(ctx, Command{Name: o.cfg.Binary, Args: args})
	if err != nil {
		sc.RecordError(err)
		slog.WarnContext(ctx, "compiler invocation failed",
			"duration_ms", time.Since(start).Milliseconds(),
			"output", logger.Truncate(string(output), 500))
		return &CompileError{Diagnostic: diagnosticText(output, err)}
	}

	if _, statErr := os.Stat(wantFile); statErr != nil {
		// Exit 0 but no output file; treat the tool output as the diagnostic.
		return &CompileError{Diagnostic: diagnosticText(output, statErr)}
	}

	slog.DebugContext(ctx, "compiler invocation succeeded",
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (o *OpenSCAD) saveSource(fileID, source string) (string, error) {
	path := o.outputPath(fileID, "scad")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return "", fmt.Errorf("saving source: %w", err)
	}
	return path, nil
}

func (o *OpenSCAD) outputPath(fileID, ext string) string {
	return filepath.Join(o.cfg.WorkDir, fileID+"."+ext)
}

func (o *OpenSCAD) publicURL(fileID, format string) string {
	return fmt.Sprintf("%s/api/models/%s?format=%s", o.cfg.PublicBaseURL, fileID, format)
}

func diagnosticText(output []byte, err error) string {
	if len(output) > 0 {
		return string(output)
	}
	return err.Error()
}

// imgsizeArg converts "800x600" to the "800,600" form openscad expects.
func imgsizeArg(size string) string {
	for i := 0; i < len(size); i++ {
		if size[i] == 'x' {
			return size[:i] + "," + size[i+1:]
		}
	}
	return size
}
