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

	"smartattend/internal/auth"
	"smartattend/internal/config"
	"smartattend/internal/httpmiddleware"
	"smartattend/internal/identity"
	"smartattend/internal/ledger"
	"smartattend/internal/qrimage"
	"smartattend/internal/qrsession"
	"smartattend/internal/queue"
	"smartattend/internal/redemption"
	"smartattend/internal/store"
	"smartattend/internal/subject"
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
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Init(context.Background(), cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "smartattend:checkins")
	}

	idSvc := identity.NewService(identity.NewRepository(db.Client))
	subjects := subject.NewRegistry(subject.NewRepository(db.Client))
	sessions := qrsession.NewManager(qrsession.NewRepository(db.Client), subjects, cfg.TokenWindow)
	attendance := ledger.NewService(ledger.NewRepository(db.Client), idSvc)
	redeemer := redemption.NewProtocol(sessions, attendance, q)

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
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p, err := idSvc.Authenticate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		token, exp, err := auth.Issue(p.Username, string(p.Role), cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token": token,
			"role":         p.Role,
			"expires_at":   exp.Unix(),
		})
	})

	// Redemption is public: the scanner carries only the token and the
	// student's claimed id. The subject is bound to the token server-side.
	redeem := func(c *gin.Context, token, studentID string) {
		if token == "" || studentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token and student_id required"})
			return
		}
		res, err := redeemer.Redeem(c.Request.Context(), token, studentID)
		if err != nil {
			log.Printf("redeem failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		body := gin.H{"outcome": res.Outcome, "message": res.Outcome.Message()}
		switch res.Outcome {
		case redemption.Accepted:
			body["record"] = res.Record
			c.JSON(http.StatusAccepted, body)
		case redemption.TokenExpired:
			c.JSON(http.StatusGone, body)
		case redemption.DuplicateAttendance:
			c.JSON(http.StatusConflict, body)
		default: // InvalidToken, UnknownStudent
			c.JSON(http.StatusNotFound, body)
		}
	}

	r.POST("/v1/redeem", func(c *gin.Context) {
		var req struct {
			Token     string `json:"token" binding:"required"`
			StudentID string `json:"student_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		redeem(c, req.Token, req.StudentID)
	})

	// Scanned-link form of the same entry point.
	r.GET("/v1/redeem", func(c *gin.Context) {
		redeem(c, c.Query("token"), c.Query("student_id"))
	})

	staff := r.Group("/v1", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer,
		string(identity.RoleAdmin), string(identity.RoleTeacher)))

	staff.POST("/students", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
			Name      string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		st, err := idSvc.AddStudent(c.Request.Context(), req.StudentID, req.Name)
		if err != nil {
			if errors.Is(err, identity.ErrDuplicateKey) {
				c.JSON(http.StatusConflict, gin.H{"error": "student id already exists"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, st)
	})

	staff.GET("/students", func(c *gin.Context) {
		students, err := idSvc.Students(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": students})
	})

	staff.POST("/subjects", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := subjects.Add(c.Request.Context(), req.Name); err != nil {
			if errors.Is(err, subject.ErrDuplicateKey) {
				c.JSON(http.StatusConflict, gin.H{"error": "subject already exists"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"name": req.Name})
	})

	staff.GET("/subjects", func(c *gin.Context) {
		names, err := subjects.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"subjects": names})
	})

	staff.POST("/sessions", func(c *gin.Context) {
		var req struct {
			Subject string `json:"subject" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, err := sessions.Mint(c.Request.Context(), req.Subject)
		if err != nil {
			if errors.Is(err, qrsession.ErrUnknownSubject) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown subject"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		token := qrsession.TokenFor(s.ID)
		c.JSON(http.StatusCreated, gin.H{
			"session_id": s.ID,
			"subject":    s.Subject,
			"token":      token,
			"created_at": s.CreatedAt,
			"expires_at": sessions.ExpiresAt(s),
			"qr_url":     cfg.PublicBaseURL + "/v1/sessions/" + token + "/qr",
		})
	})

	staff.GET("/sessions/:token/qr", func(c *gin.Context) {
		id, err := qrsession.ParseToken(c.Param("token"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		s, err := sessions.Lookup(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, qrsession.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		payload := qrimage.Payload(cfg.PublicBaseURL, qrsession.TokenFor(s.ID), s.Subject, s.CreatedAt)
		png, err := qrimage.EncodePNG(payload)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "qr encode failed"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	// Manual entry path: staff marks a student directly, no token involved.
	staff.POST("/attendance", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
			Subject   string `json:"subject" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		res, rec, err := attendance.Record(c.Request.Context(), req.StudentID, req.Subject, time.Now())
		if err != nil {
			if errors.Is(err, identity.ErrStudentNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "student is not registered"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if res == ledger.AlreadyRecorded {
			c.JSON(http.StatusConflict, gin.H{"error": "attendance already marked for today"})
			return
		}
		c.JSON(http.StatusCreated, rec)
	})

	staff.GET("/reports/attendance", func(c *gin.Context) {
		date, ok := parseDate(c, c.Query("date"))
		if !ok {
			return
		}
		rows, err := attendance.Report(c.Request.Context(), c.Query("subject"), date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": rows})
	})

	staff.GET("/reports/presence", func(c *gin.Context) {
		subj := c.Query("subject")
		if subj == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "subject required"})
			return
		}
		date, ok := parseDate(c, c.Query("date"))
		if !ok {
			return
		}
		if date.IsZero() {
			date = time.Now().UTC()
		}
		entries, err := attendance.Presence(c.Request.Context(), subj, date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"subject": subj, "date": ledger.DateOf(date).Format("2006-01-02"), "entries": entries})
	})

	admin := r.Group("/v1", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, string(identity.RoleAdmin)))

	admin.POST("/principals", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
			Role     string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p, err := idSvc.AddPrincipal(c.Request.Context(), req.Username, req.Password, identity.Role(req.Role))
		if err != nil {
			if errors.Is(err, identity.ErrDuplicateKey) {
				c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, p)
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

// parseDate reads an optional YYYY-MM-DD query value; a zero time means the
// filter was not supplied.
func parseDate(c *gin.Context, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return d, true
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
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
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
