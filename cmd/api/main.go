package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schoolattend/internal/auth"
	"schoolattend/internal/broadcast"
	"schoolattend/internal/config"
	"schoolattend/internal/httpmiddleware"
	"schoolattend/internal/ledger"
	"schoolattend/internal/metrics"
	"schoolattend/internal/reconcile"
	"schoolattend/internal/report"
	"schoolattend/internal/school"
	"schoolattend/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	metrics.Register()
	loc := cfg.Location()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
		db = nil
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()
	if db != nil {
		if err := db.EnsureSchema(context.Background()); err != nil {
			return err
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	// The bus is an explicit instance handed to everything that publishes
	// or subscribes; there is deliberately no package-level broadcaster.
	hub := broadcast.NewHub(cfg.SubscriberBuffer, metrics.EventsDropped.Inc)
	var bus broadcast.Bus = hub
	if cfg.BroadcastBackend == "redis" {
		bus = broadcast.NewRedisBus(redisClient.Client, cfg.BroadcastChannel, hub)
	}

	var dir school.Directory
	switch {
	case cfg.DirectoryBackend == "http":
		dir = school.NewHTTPDirectory(cfg.DirectoryURL)
	case db != nil:
		dir = school.NewPostgresDirectory(db.Client)
	default:
		log.Println("warning: no db and no remote directory, using empty in-memory directory")
		dir = school.NewInMemory()
	}

	var markStore ledger.Store
	if db != nil {
		markStore = ledger.NewRepository(db.Client)
	} else {
		log.Println("warning: marks held in memory only")
		markStore = ledger.NewMemStore()
	}

	ledgerSvc := ledger.NewService(markStore, dir, loc)
	engine := reconcile.NewEngine(ledgerSvc, dir, bus)
	aggregator := report.NewAggregator(ledgerSvc, dir, loc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin).Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil && db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Token issue for portal sessions. Real credential checks belong to
	// the user-management subsystem; this endpoint trusts the bootstrap
	// key the portal frontend holds.
	r.POST("/v1/auth/token", func(c *gin.Context) {
		if c.GetHeader("X-Bootstrap-Key") != cfg.BootstrapKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "bad bootstrap key"})
			return
		}
		var req struct {
			UserID string `json:"user_id" binding:"required"`
			Role   string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tokens, err := auth.Issue(req.UserID, req.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	writeGroup := authGroup.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleTeacher))

	writeGroup.POST("/classes/:classId/attendance", func(c *gin.Context) {
		var req struct {
			SubjectID string            `json:"subject_id" binding:"required"`
			Date      string            `json:"date" binding:"required"`
			Marks     []reconcile.Entry `json:"marks" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		date, err := parseDate(req.Date, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad date, want RFC3339 or YYYY-MM-DD"})
			return
		}
		result, err := engine.MarkClass(c.Request.Context(), auth.ActorFrom(c), c.Param("classId"), req.SubjectID, date, req.Marks)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	writeGroup.PUT("/students/:studentId/attendance", func(c *gin.Context) {
		var req struct {
			ClassID   string        `json:"class_id" binding:"required"`
			SubjectID string        `json:"subject_id" binding:"required"`
			Date      string        `json:"date" binding:"required"`
			Status    ledger.Status `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		date, err := parseDate(req.Date, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad date, want RFC3339 or YYYY-MM-DD"})
			return
		}
		mark, err := engine.MarkOne(c.Request.Context(), auth.ActorFrom(c), c.Param("studentId"), req.ClassID, req.SubjectID, date, req.Status)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, mark)
	})

	authGroup.GET("/classes/:classId/report", func(c *gin.Context) {
		rep, err := buildReportFromQuery(c, aggregator, loc)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		actor := auth.ActorFrom(c)
		if actor.Role == auth.RoleStudent {
			// Students read their own row only.
			var own []report.Row
			for _, row := range rep.Rows {
				if row.StudentID == actor.UserID {
					own = append(own, row)
				}
			}
			rep.Rows = own
			rep.Summary = report.Summarize(rep)
		}
		c.JSON(http.StatusOK, rep)
	})

	authGroup.GET("/classes/:classId/report/export", auth.RequireRole(auth.RoleAdmin, auth.RoleTeacher), func(c *gin.Context) {
		rep, err := buildReportFromQuery(c, aggregator, loc)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="attendance.csv"`)
		c.Status(http.StatusOK)
		if err := report.WriteCSV(c.Writer, rep); err != nil {
			log.Printf("csv export failed: %v", err)
		}
	})

	authGroup.GET("/attendance/stream", streamHandler(bus))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamHandler bridges one websocket connection to a bus subscription.
// Write timeouts count as a slow consumer: the connection is dropped and
// the client falls back to polling until it reconnects.
func streamHandler(bus broadcast.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		sub := bus.Subscribe()
		defer bus.Unsubscribe(sub)
		defer conn.Close()

		done := make(chan struct{})
		go func() {
			// Detect client close; incoming frames are ignored.
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case evt, ok := <-sub.C:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(evt); err != nil {
					return
				}
			case <-done:
				return
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

func buildReportFromQuery(c *gin.Context, aggregator *report.Aggregator, loc *time.Location) (*report.Report, error) {
	filter := report.FilterType(c.DefaultQuery("filter", string(report.FilterWeek)))

	var subjectID *string
	if v := c.Query("subject_id"); v != "" {
		subjectID = &v
	}

	var start, end *time.Time
	if v := c.Query("start"); v != "" {
		t, err := parseDate(v, loc)
		if err != nil {
			return nil, ledger.ErrValidation
		}
		start = &t
	}
	if v := c.Query("end"); v != "" {
		t, err := parseDate(v, loc)
		if err != nil {
			return nil, ledger.ErrValidation
		}
		end = &t
	}

	return aggregator.BuildReport(c.Request.Context(), c.Param("classId"), subjectID, filter, start, end)
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Bootstrap-Key")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
