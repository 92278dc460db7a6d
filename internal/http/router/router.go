package router

import (
	"github.com/gin-gonic/gin"

	"meshforge.app/studio/internal/http/handler"
)

// Handlers carries the constructed handlers the route table wires up.
type Handlers struct {
	Generate      *handler.GenerateHandler
	Conversations *handler.ConversationHandler
	Artifacts     *handler.ArtifactHandler
}

func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		GenerateRouter(api, h.Generate)
		ConversationRouter(api.Group("/conversations"), h.Conversations)
		ArtifactRouter(api.Group("/models"), h.Artifacts)
	}
}
