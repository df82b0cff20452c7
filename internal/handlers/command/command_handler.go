// internal/handlers/command/command_handler.go
package command

import (
	"net/http"

	"backoffice-service/internal/domain/conversation"
	xerrors "backoffice-service/internal/pkg/errors"
	"backoffice-service/internal/pkg/response"
	service "backoffice-service/internal/service/command"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CommandHandler struct {
	engine *service.Engine
	logger *zap.Logger
}

func NewCommandHandler(engine *service.Engine, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{
		engine: engine,
		logger: logger,
	}
}

// HandleCommand processes a free-text operator command.
func (h *CommandHandler) HandleCommand(c *gin.Context) {
	var req conversation.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	conversationID := ""
	if req.ConversationID != nil {
		conversationID = *req.ConversationID
	}

	result, err := h.engine.HandleCommand(c.Request.Context(), req.Text, conversationID)
	if err != nil {
		h.logger.Error("command failed",
			zap.Error(err),
			zap.String("conversation_id", conversationID),
		)
		// Generic safe message; the cause stays in the server log.
		response.Error(c, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	response.Success(c, http.StatusOK, "command processed", result)
}

// Confirm resolves a pending confirmation and performs the gated mutation.
func (h *CommandHandler) Confirm(c *gin.Context) {
	var req conversation.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.engine.ConfirmCommand(c.Request.Context(), &req)
	if err != nil {
		switch {
		case xerrors.Is(err, xerrors.ErrSessionExpired):
			response.Error(c, http.StatusBadRequest, "conversation expired or not found", err)
		case xerrors.Is(err, xerrors.ErrInvalidInput):
			response.ValidationError(c, "invalid confirmation", err)
		default:
			h.logger.Error("confirm failed",
				zap.Error(err),
				zap.String("conversation_id", req.ConversationID),
			)
			response.Error(c, http.StatusInternalServerError, "internal server error", nil)
		}
		return
	}

	response.Success(c, http.StatusOK, "command confirmed", result)
}

// Health lists the live conversations (diagnostic).
func (h *CommandHandler) Health(c *gin.Context) {
	result, err := h.engine.Health(c.Request.Context())
	if err != nil {
		h.logger.Error("command health check failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	c.JSON(http.StatusOK, result)
}
