package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Database
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	// Security
	JWTSecret          string
	TokenExpiryMinutes int

	// Server
	Port           string
	TrustedProxies []string

	// Password reset email
	SendGridAPIKey string
	EmailFromName  string
	EmailFrom      string
	ResetURLBase   string

	// Medical thresholds (degrees / millimeters)
	NeckAngleMin   float64
	NeckAngleMax   float64
	ForwardHeadMax float64
	HeadTiltMin    float64
	HeadTiltMax    float64
}

func Load() *Config {
	cfg := &Config{
		DBUser:             getEnv("DB_USER", "server"),
		DBPassword:         getEnv("DB_PASSWORD", "secret_app"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "3306"),
		DBName:             getEnv("DB_NAME", "posture"),
		JWTSecret:          getEnv("JWT_SECRET", "your-secret-key-here"),
		TokenExpiryMinutes: getEnvInt("TOKEN_EXPIRY_MINUTES", 60),
		Port:               getEnv("PORT", "8080"),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		EmailFromName:      getEnv("EMAIL_FROM_NAME", "Posture Check"),
		EmailFrom:          getEnv("EMAIL_FROM", "noreply@posturecheck.app"),
		ResetURLBase:       getEnv("RESET_URL_BASE", "http://localhost:3000/reset-password"),
		NeckAngleMin:       getEnvFloat("NECK_ANGLE_NORMAL_MIN", -30.0),
		NeckAngleMax:       getEnvFloat("NECK_ANGLE_NORMAL_MAX", 30.0),
		ForwardHeadMax:     getEnvFloat("FORWARD_HEAD_DISTANCE_MAX", 100.0),
		HeadTiltMin:        getEnvFloat("HEAD_TILT_NORMAL_MIN", -15.0),
		HeadTiltMax:        getEnvFloat("HEAD_TILT_NORMAL_MAX", 15.0),
	}

	// Handle trusted proxies
	trustedProxies := os.Getenv("TRUSTED_PROXIES")
	if trustedProxies != "" {
		cfg.TrustedProxies = strings.Split(trustedProxies, ",")
		for i, proxy := range cfg.TrustedProxies {
			cfg.TrustedProxies[i] = strings.TrimSpace(proxy)
		}
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
