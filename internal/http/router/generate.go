package router

import (
	"github.com/gin-gonic/gin"

	"meshforge.app/studio/internal/http/handler"
)

func GenerateRouter(rg *gin.RouterGroup, h *handler.GenerateHandler) {
	rg.POST("/generate", h.Stream)
}
