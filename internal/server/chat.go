package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthtwin-labs/healthtwin/internal/agent/core"
	"github.com/healthtwin-labs/healthtwin/internal/memory"
)

// TurnProcessor is the slice of the orchestrator the chat endpoints need.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, req core.TurnRequest) (*core.TurnResult, error)
	EndSession(ctx context.Context, sessionID string) error
}

type ChatHandler struct {
	Pipeline TurnProcessor
	Sessions *memory.Store
	Logger   *log.Logger
}

func (h *ChatHandler) Register(g *echo.Group, secret []byte) {
	g.Use(AuthMiddleware(secret))
	g.POST("", h.chat)
	g.GET("/:session_id/history", h.history)
	g.POST("/:session_id/end", h.end)
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Message) == "" && req.Image == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message or image required")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	userID, _ := c.Get("user_id").(string)

	res, err := h.Pipeline.ProcessTurn(c.Request().Context(), core.TurnRequest{
		SessionID: req.SessionID,
		UserID:    userID,
		Message:   req.Message,
		ImageB64:  req.Image,
	})
	if err != nil {
		// Stage failures still carry an apologetic reply; the client gets a
		// normal response and the error stays server-side.
		var se *core.StageError
		if !errors.As(err, &se) || res == nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		h.Logger.Printf("turn degraded: %v", err)
	}

	return c.JSON(http.StatusOK, toChatResponse(req.SessionID, res))
}

func (h *ChatHandler) history(c echo.Context) error {
	sessionID := c.Param("session_id")
	s := h.Sessions.Get(c.Request().Context(), sessionID)

	resp := HistoryResponse{SessionID: sessionID}
	for _, m := range s.Messages {
		resp.Messages = append(resp.Messages, HistoryMessage{
			Role: m.Role, Content: m.Content, Agent: m.Agent, CreatedAt: m.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) end(c echo.Context) error {
	if err := h.Pipeline.EndSession(c.Request().Context(), c.Param("session_id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func toChatResponse(sessionID string, res *core.TurnResult) ChatResponse {
	out := ChatResponse{
		TurnID:     res.TurnID,
		SessionID:  sessionID,
		Route:      string(res.Route),
		Reply:      res.Reply,
		Tone:       res.Tone,
		Feedback:   res.Feedback,
		Assessment: res.Assessment,
		Plan:       res.Plan,
		Validation: res.Validation,
		TotalMs:    res.TotalTime.Milliseconds(),
	}
	for _, t := range res.Timings {
		out.Timings = append(out.Timings, StageTimingResponse{
			Stage: string(t.Stage), DurationMs: t.Duration.Milliseconds(),
		})
	}
	return out
}
