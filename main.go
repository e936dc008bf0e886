package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"posture-service/analysis"
	"posture-service/config"
	"posture-service/database"
	"posture-service/handlers"
	"posture-service/metrics"
	"posture-service/middleware"
	"posture-service/sessions"
	"posture-service/utils/email"
	"posture-service/version"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "posture-service"

func main() {
	// .env is optional, real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Info("Initializing database schema and running migrations...")
	if err := database.InitializeSchema(db); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	metrics.Register()

	thresholds := analysis.ThresholdsFromConfig(cfg)
	records := database.NewRecordService(db, thresholds)
	users := database.NewUserService(db, cfg.JWTSecret, time.Duration(cfg.TokenExpiryMinutes)*time.Minute)

	registry := sessions.NewRegistry()
	sweeperStop := make(chan struct{})
	defer close(sweeperStop)
	go registry.RunSweeper(time.Minute, sweeperStop)

	var mailer *email.Sender
	if cfg.SendGridAPIKey != "" {
		mailer = email.NewSender(cfg.SendGridAPIKey, cfg.EmailFromName, cfg.EmailFrom)
	} else {
		log.Warn("SENDGRID_API_KEY not set, password reset emails will be logged only")
	}

	router := setupRouter(cfg, db, records, users, registry, mailer, thresholds)

	log.Infof("Posture service starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func setupDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

func setupRouter(
	cfg *config.Config,
	db *sql.DB,
	records *database.RecordService,
	users *database.UserService,
	registry *sessions.Registry,
	mailer *email.Sender,
	thresholds analysis.Thresholds,
) *gin.Engine {
	router := gin.Default()

	router.SetTrustedProxies(cfg.TrustedProxies)

	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeaders())

	posture := handlers.NewPostureHandler(records, registry, thresholds)
	auth := handlers.NewAuthHandler(users, mailer, cfg.ResetURLBase, cfg.TokenExpiryMinutes*60)

	router.GET("/health", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Get(serviceName))
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := router.Group("/api/v1")
	{
		public.POST("/posture/analyze", posture.Analyze)
		public.GET("/posture/medical-standards", posture.MedicalStandards)

		public.POST("/users/register", auth.Register)
		public.POST("/users/login", auth.Login)
		public.POST("/users/password-reset/request", auth.RequestPasswordReset)
		public.POST("/users/password-reset/confirm", auth.ConfirmPasswordReset)
	}

	protected := router.Group("/api/v1")
	protected.Use(middleware.AuthMiddleware(users))
	{
		protected.POST("/posture/record", posture.CreateRecord)
		protected.GET("/posture/records", posture.GetRecords)
		protected.GET("/posture/stats", posture.GetStats)
		protected.GET("/posture/trends", posture.GetTrends)

		protected.POST("/posture/sessions/start", posture.StartSession)
		protected.POST("/posture/sessions/stop", posture.StopSession)
		protected.GET("/posture/sessions/active", posture.ListActiveSessions)

		protected.GET("/users/me", auth.GetMe)
		protected.PUT("/users/me", auth.UpdateMe)
		protected.DELETE("/users/me", auth.DeleteMe)
	}

	return router
}
