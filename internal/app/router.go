// internal/app/router.go
package app

import (
	commandHandler "backoffice-service/internal/handlers/command"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	CommandHandler *commandHandler.CommandHandler
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Conversational Commands ====================
	command := api.Group("/command")
	{
		command.POST("", h.CommandHandler.HandleCommand)
		command.POST("/confirm", h.CommandHandler.Confirm)
		command.GET("/health", h.CommandHandler.Health)
	}
}
