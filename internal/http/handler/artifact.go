package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"meshforge.app/studio/internal/model"
)

// ArtifactLocator resolves a compiled file reference to a path on disk.
type ArtifactLocator interface {
	Lookup(fileID string, format string) (string, error)
}

var artifactContentTypes = map[string]string{
	string(model.FormatSTL): "model/stl",
	string(model.FormatOFF): "application/octet-stream",
	string(model.FormatAMF): "application/x-amf",
	string(model.Format3MF): "model/3mf",
	string(model.FormatPNG): "image/png",
}

type ArtifactHandler struct {
	locator ArtifactLocator
}

func NewArtifactHandler(locator ArtifactLocator) *ArtifactHandler {
	return &ArtifactHandler{locator: locator}
}

// Get serves a compiled model or preview image. The locator validates both
// the file id and the format tag, so any lookup failure maps to 404.
func (h *ArtifactHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	fileID := c.Param("file_id")
	format := strings.ToLower(strings.TrimSpace(c.Query("format")))
	if format == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format query parameter is required"})
		return
	}

	path, err := h.locator.Lookup(fileID, format)
	if err != nil {
		slog.InfoContext(ctx, "artifact lookup failed", "file_id", fileID, "format", format, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	if contentType, ok := artifactContentTypes[format]; ok {
		c.Header("Content-Type", contentType)
	}
	c.File(path)
}
