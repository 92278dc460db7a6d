package router

import (
	"github.com/gin-gonic/gin"

	"meshforge.app/studio/internal/http/handler"
)

func ArtifactRouter(rg *gin.RouterGroup, h *handler.ArtifactHandler) {
	rg.GET("/:file_id", h.Get)
}
