package bridge

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/docbrown/xbdm/internal/auth"
	"github.com/docbrown/xbdm/internal/console"
	"github.com/docbrown/xbdm/internal/observability"
	"github.com/docbrown/xbdm/internal/protocol"
)

// Server is the HTTP face of the bridge.
type Server struct {
	name     string
	svc      *Service
	router   *gin.Engine
	gate     auth.Validator // nil leaves the command route open
	appeared time.Time
}

// NewServer builds the router with the standard middleware stack and
// registers all routes.
func NewServer(name string, corsOrigins []string, svc *Service) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		name:     name,
		svc:      svc,
		router:   r,
		appeared: time.Now(),
	}
	if token := strings.TrimSpace(svc.cfg.AuthToken); token != "" {
		s.gate = auth.SharedToken{Token: token}
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": s.name,
			"version": "0.0.1",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		status := s.svc.Status()
		code := http.StatusOK
		if !status.Connected {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   status.Connected,
			"uptime":  time.Since(s.appeared).String(),
			"service": s.name,
			"version": "0.0.1",
		})
	})

	s.router.GET("/console", func(c *gin.Context) {
		status := s.svc.Status()
		c.JSON(http.StatusOK, gin.H{
			"target":        status.Target,
			"addr":          status.Addr,
			"connected":     status.Connected,
			"state":         status.State,
			"greeting":      status.Greeting,
			"connected_for": status.ConnectedFor.String(),
			"notifications": status.Notifications,
		})
	})

	s.router.POST("/command", s.requireAuth, s.handleCommand)

	s.router.GET("/notifications", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
		c.JSON(http.StatusOK, gin.H{
			"notifications": s.svc.Notifications(limit),
			"total":         s.svc.NotificationTotal(),
		})
	})
}

// commandRequest is one monitor command as posted by an HTTP client.
// Payload rides as base64 per encoding/json convention.
type commandRequest struct {
	Line       string `json:"line"`
	BinarySize int64  `json:"binary_size,omitempty"`
	Payload    []byte `json:"payload,omitempty"`
}

// commandResponse is the full command outcome. Success mirrors the
// status class: an error-class monitor status is still HTTP 200,
// because the console answered.
type commandResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Success bool     `json:"success"`
	Lines   []string `json:"lines,omitempty"`
	Data    []byte   `json:"data,omitempty"`
}

// requireAuth guards the command route when a token is configured.
// Read-only routes stay open; executing commands mutates the console.
func (s *Server) requireAuth(c *gin.Context) {
	if s.gate == nil {
		return
	}
	token, _ := auth.Bearer(c.GetHeader("Authorization"))
	if err := s.gate.Validate(token); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

func (s *Server) handleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := s.svc.Session()
	if sess == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "console not connected"})
		return
	}

	resp, err := sess.Execute(c.Request.Context(), protocol.Command{
		Line:       req.Line,
		BinarySize: req.BinarySize,
		Payload:    req.Payload,
	})
	if err != nil {
		c.JSON(commandErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, commandResponse{
		Code:    int(resp.Status.Code),
		Message: resp.Status.Message,
		Success: resp.Status.Code.IsSuccess(),
		Lines:   resp.Lines,
		Data:    resp.Data,
	})
}

// commandErrorStatus maps session failures onto HTTP statuses: caller
// mistakes are 400, a busy engine is 409, a lost console is 503 so
// clients retry after the reconnect, and anything else that died on
// the wire is a 502.
func commandErrorStatus(err error) int {
	switch {
	case errors.Is(err, protocol.ErrEmptyCommand),
		errors.Is(err, protocol.ErrCommandTooLong),
		errors.Is(err, protocol.ErrIllegalByte):
		return http.StatusBadRequest
	case errors.Is(err, console.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, console.ErrSessionBroken),
		errors.Is(err, console.ErrSessionClosed),
		errors.Is(err, console.ErrTransportClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
