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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"liveclass/internal/attendance"
	"liveclass/internal/auth"
	"liveclass/internal/config"
	"liveclass/internal/httpmiddleware"
	"liveclass/internal/live"
	"liveclass/internal/memstore"
	"liveclass/internal/queue"
	"liveclass/internal/store"
	"liveclass/internal/student"
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
	var (
		liveStore    live.Store
		studentStore student.Store
		recordStore  attendance.Store
		db           *store.DB
	)
	if cfg.StoreBackend == "memory" {
		mem := memstore.New()
		liveStore, studentStore, recordStore = mem.Lives(), mem.Students(), mem.Records()
		log.Println("using in-memory store")
	} else {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL, cfg.DBMaxConns)
		if db == nil {
			return err
		}
		if err != nil {
			log.Printf("warning: db not reachable: %v", err)
		}
		liveStore = live.NewRepository(db.Client, attendance.CascadeForLive)
		studentStore = student.NewRepository(db.Client, attendance.CascadeForStudent)
		recordStore = attendance.NewRepository(db.Client)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	ledger := attendance.NewLedger(recordStore, liveStore, studentStore)
	reports := attendance.NewReports(recordStore, studentStore, liveStore, cfg.OnlineWindow)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil || cfg.StoreBackend == "memory"
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/student-login", func(c *gin.Context) {
		var req struct {
			Email string `json:"email" binding:"required,email"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, err := studentStore.GetByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown student"})
			return
		}
		token, err := auth.Issue(s.ID, auth.RoleStudent, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		noStore(c)
		c.JSON(http.StatusOK, gin.H{
			"access_token": token.Value,
			"expires_at":   token.ExpiresAt.Unix(),
			"student":      s,
		})
	})

	r.POST("/v1/auth/admin-login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Username != cfg.AdminUser || !auth.CheckAdminPassword(cfg.AdminPasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		token, err := auth.Issue(req.Username, auth.RoleAdmin, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		noStore(c)
		c.JSON(http.StatusOK, gin.H{
			"access_token": token.Value,
			"expires_at":   token.ExpiresAt.Unix(),
		})
	})

	// Student surface: the dashboard feed and the three ledger operations.
	// The student id always comes from the token, never from the body.
	studentGroup := r.Group("/v1", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleStudent))

	studentGroup.GET("/lives", func(c *gin.Context) {
		lives, err := liveStore.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		now := time.Now().UTC()
		views := make([]liveView, 0, len(lives))
		for _, lc := range lives {
			views = append(views, newLiveView(lc.Live, now, cfg.GracePeriod))
		}
		noStore(c)
		c.JSON(http.StatusOK, gin.H{"lives": views})
	})

	studentGroup.GET("/lives/:slug", func(c *gin.Context) {
		lv, err := liveStore.GetBySlug(c.Request.Context(), c.Param("slug"))
		if err != nil {
			writeError(c, err)
			return
		}
		noStore(c)
		c.JSON(http.StatusOK, newLiveView(lv, time.Now().UTC(), cfg.GracePeriod))
	})

	studentGroup.POST("/attendance/confirm", func(c *gin.Context) {
		var req struct {
			LiveID string `json:"live_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := ledger.ConfirmPresence(c.Request.Context(), auth.Subject(c), req.LiveID)
		if err != nil {
			writeError(c, err)
			return
		}
		if err := q.Publish(c.Request.Context(), queue.Message{
			Type: queue.TypePresenceConfirmed, RecordID: rec.ID, StudentID: rec.StudentID, LiveID: rec.LiveID,
		}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		noStore(c)
		c.JSON(http.StatusOK, gin.H{"record": rec})
	})

	studentGroup.POST("/attendance/heartbeat", func(c *gin.Context) {
		var req struct {
			LiveID       string `json:"live_id" binding:"required"`
			DeltaSeconds *int64 `json:"delta_seconds" binding:"required"`
			Seq          int64  `json:"seq"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := ledger.RecordHeartbeat(c.Request.Context(), auth.Subject(c), req.LiveID, *req.DeltaSeconds, req.Seq)
		if err != nil {
			writeError(c, err)
			return
		}
		noStore(c)
		c.JSON(http.StatusOK, gin.H{"record": rec})
	})

	studentGroup.POST("/attendance/mark-full", func(c *gin.Context) {
		var req struct {
			LiveID string `json:"live_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := ledger.MarkFullyWatched(c.Request.Context(), auth.Subject(c), req.LiveID)
		if err != nil {
			writeError(c, err)
			return
		}
		if err := q.Publish(c.Request.Context(), queue.Message{
			Type: queue.TypeFullyWatched, RecordID: rec.ID, StudentID: rec.StudentID, LiveID: rec.LiveID,
		}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		noStore(c)
		c.JSON(http.StatusOK, gin.H{"record": rec})
	})

	admin := r.Group("/v1/admin", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleAdmin))

	admin.POST("/lives", func(c *gin.Context) {
		req, ok := bindLiveRequest(c)
		if !ok {
			return
		}
		created, err := liveStore.Create(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		noStore(c)
		c.JSON(http.StatusCreated, created)
	})

	admin.GET("/lives", func(c *gin.Context) {
		lives, err := liveStore.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		noStore(c)
		c.JSON(http.StatusOK, gin.H{"lives": lives})
	})

	admin.PUT("/lives/:id", func(c *gin.Context) {
		req, ok := bindLiveRequest(c)
		if !ok {
			return
		}
		req.ID = c.Param("id")
		updated, err := liveStore.Update(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		noStore(c)
		c.JSON(http.StatusOK, updated)
	})

	admin.DELETE("/lives/:id", func(c *gin.Context) {
		if err := liveStore.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		noStore(c)
		c.JSON(http.StatusOK, gin.H{"message": "live deleted"})
	})

	admin.GET("/lives/:id/attendance", func(c *gin.Context) {
		recs, err := reports.ListForLive(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		noStore(c)
		c.JSON(http.StatusOK, gin.H{"attendance": recs})
	})

	admin.GET("/lives/:id/attendance-summary", func(c *gin.Context) {
		summary, err := reports.Summary(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		noStore(c)
		c.JSON(http.StatusOK, summary)
	})

	admin.GET("/reports/attendance-detailed", func(c *gin.Context) {
		report, err := reports.Detailed(c.Request.Context(), c.Query("live_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		noStore(c)
		c.JSON(http.StatusOK, report)
	})

	admin.POST("/attendance", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
			LiveID    string `json:"live_id" binding:"required"`
			Present   *bool  `json:"present" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := ledger.SetPresence(c.Request.Context(), req.StudentID, req.LiveID, *req.Present); err != nil {
			writeError(c, err)
			return
		}
		msg := "student marked absent"
		if *req.Present {
			msg = "student marked present"
		}
		noStore(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": msg})
	})

	admin.POST("/students", func(c *gin.Context) {
		var req struct {
			Name             string  `json:"name" binding:"required"`
			Email            string  `json:"email" binding:"required,email"`
			Phone            string  `json:"phone" binding:"required"`
			Sex              *string `json:"sex"`
			BirthDate        *string `json:"birth_date"`
			City             *string `json:"city"`
			FullAddress      *string `json:"full_address"`
			HowFoundUs       *string `json:"how_found_us"`
			StudyStyle       *string `json:"study_style"`
			AddressCompleted bool    `json:"address_completed"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, err := studentStore.Upsert(c.Request.Context(), student.Student{
			Name: req.Name, Email: req.Email, Phone: req.Phone,
			Sex: req.Sex, BirthDate: req.BirthDate, City: req.City,
			FullAddress: req.FullAddress, HowFoundUs: req.HowFoundUs, StudyStyle: req.StudyStyle,
			AddressCompleted: req.AddressCompleted,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		noStore(c)
		c.JSON(http.StatusOK, s)
	})

	admin.GET("/students", func(c *gin.Context) {
		students, err := studentStore.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		noStore(c)
		c.JSON(http.StatusOK, gin.H{"students": students})
	})

	admin.DELETE("/students/:id", func(c *gin.Context) {
		if err := studentStore.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		noStore(c)
		c.JSON(http.StatusOK, gin.H{"message": "student deleted"})
	})

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

// liveView is a live event as served to students, with the server-computed
// window status and the client-side grace countdown deadline.
type liveView struct {
	live.Live
	Status        live.Status `json:"status"`
	GraceDeadline time.Time   `json:"grace_deadline"`
}

func newLiveView(lv live.Live, now time.Time, grace time.Duration) liveView {
	return liveView{
		Live:          lv,
		Status:        lv.Window(now),
		GraceDeadline: live.GraceDeadline(lv.StartsAt, grace),
	}
}

// bindLiveRequest validates the admin live payload. ends_at is never taken
// from the client; it is derived from duration.
func bindLiveRequest(c *gin.Context) (live.Live, bool) {
	var req struct {
		Title       string    `json:"title" binding:"required"`
		Slug        string    `json:"slug" binding:"required"`
		VideoID     string    `json:"video_id" binding:"required"`
		StartsAt    time.Time `json:"starts_at" binding:"required"`
		DurationMin int       `json:"duration_min" binding:"required,min=1"`
		IsActive    *bool     `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return live.Live{}, false
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	return live.Live{
		Title:       req.Title,
		Slug:        req.Slug,
		VideoID:     req.VideoID,
		StartsAt:    req.StartsAt,
		DurationMin: req.DurationMin,
		IsActive:    isActive,
	}, true
}

// writeError maps domain errors to HTTP statuses. Conflicts on the record
// uniqueness constraint never reach here: the ledger absorbs them.
func writeError(c *gin.Context, err error) {
	noStore(c)
	switch {
	case errors.Is(err, attendance.ErrWindowClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "live session is not available"})
	case errors.Is(err, attendance.ErrInvalidDelta):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid watch delta"})
	case errors.Is(err, live.ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "slug already in use"})
	case errors.Is(err, attendance.ErrNotFound),
		errors.Is(err, live.ErrNotFound),
		errors.Is(err, student.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// noStore marks a response non-cacheable; every mutation and report reflects
// current ledger state.
func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
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
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
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
