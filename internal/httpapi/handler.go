// Package httpapi exposes the session service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Tiliavir/study-timer/internal/bridge"
	"github.com/Tiliavir/study-timer/internal/model"
	"github.com/Tiliavir/study-timer/internal/schema"
	"github.com/Tiliavir/study-timer/internal/timecalc"
	"github.com/Tiliavir/study-timer/internal/tracker"
)

// Service is what the handlers need from tracker.Service.
type Service interface {
	Start(ctx context.Context, subject string) (tracker.StartResult, error)
	Stop(ctx context.Context, raw any) (tracker.StopResult, error)
	ListRecent(ctx context.Context, limit int) ([]model.Session, error)
	CheckSync(ctx context.Context) (schema.Map, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func NewHandler(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(svc Service, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	NewHandler(svc, logger).RegisterRoutes(router)
	return router
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.health)
	r.POST("/start", h.start)
	r.POST("/stop", h.stop)
	r.GET("/sessions", h.sessions)
	r.GET("/sync/check", h.syncCheck)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func fail(c *gin.Context, status int, code string) {
	c.JSON(status, gin.H{"ok": false, "code": code})
}

// decodeBody parses an optional JSON body. An empty body decodes to nil.
func decodeBody(c *gin.Context) (any, error) {
	data, err := c.GetRawData()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (h *Handler) start(c *gin.Context) {
	body, err := decodeBody(c)
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_BODY")
		return
	}
	subject := ""
	if m, ok := body.(map[string]any); ok {
		if s, ok := m["subject"].(string); ok {
			subject = s
		}
	}

	res, err := h.svc.Start(c.Request.Context(), subject)
	if err != nil {
		fail(c, http.StatusInternalServerError, tracker.CodeStartFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": res.ID, "startedAt": res.StartedAt})
}

// stopIdentifier extracts the session reference from a stop body. Objects
// carry it under "id" or "pageId"; any other JSON value is the reference.
func stopIdentifier(body any) any {
	m, ok := body.(map[string]any)
	if !ok {
		return body
	}
	if id, ok := m["id"]; ok && id != nil {
		return id
	}
	return m["pageId"]
}

func (h *Handler) stop(c *gin.Context) {
	body, err := decodeBody(c)
	if err != nil {
		// An unreadable body is treated as a stop without identifier.
		h.logger.Debug("ignoring malformed stop body", "err", err)
		body = nil
	}

	res, err := h.svc.Stop(c.Request.Context(), stopIdentifier(body))
	if err != nil {
		switch tracker.Code(err) {
		case tracker.CodeNotFound:
			fail(c, http.StatusNotFound, tracker.CodeNotFound)
		default:
			fail(c, http.StatusInternalServerError, tracker.CodeStopFailed)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"id":            res.ID,
		"endedAt":       res.EndedAt,
		"duration":      res.DurationMinutes,
		"alreadyClosed": res.AlreadyClosed,
		"sync":          res.Sync,
	})
}

type sessionView struct {
	ID        string     `json:"id"`
	Subject   string     `json:"subject"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt"`
	Duration  *float64   `json:"duration"`
}

func viewOf(s model.Session) sessionView {
	v := sessionView{ID: s.ID, Subject: s.Subject, StartedAt: s.StartedAt, EndedAt: s.EndedAt}
	if s.EndedAt != nil {
		d := timecalc.Round(max(timecalc.Minutes(s.StartedAt, *s.EndedAt), 0), 2)
		v.Duration = &d
	}
	return v
}

func (h *Handler) sessions(c *gin.Context) {
	limit := 0
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, "INVALID_LIMIT")
			return
		}
		limit = n
	}

	list, err := h.svc.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("listing sessions failed", "err", err)
		fail(c, http.StatusInternalServerError, "LIST_FAILED")
		return
	}
	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		out = append(out, viewOf(s))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) syncCheck(c *gin.Context) {
	m, err := h.svc.CheckSync(c.Request.Context())
	var cfgErr *schema.ConfigError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"ok": true, "mapping": m})
	case errors.Is(err, bridge.ErrNotConfigured):
		fail(c, http.StatusServiceUnavailable, "NOT_CONFIGURED")
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"ok":         false,
			"code":       "SCHEMA_INCOMPLETE",
			"error":      cfgErr.Error(),
			"missing":    cfgErr.Missing,
			"properties": cfgErr.Properties,
		})
	default:
		h.logger.Warn("sync check failed", "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "code": "SYNC_CHECK_FAILED", "error": err.Error()})
	}
}
