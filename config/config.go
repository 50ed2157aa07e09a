// pkuhole/config/config.go
package config

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"pkuhole/utils"
)

const (
	AppVersion = "0.9.2"

	// Remote service
	Host      = "www.pkuhelper.com"
	LoginPath = "/services/login/login.php"
	APIPath   = "/services/pkuhole/api.php"
	PicPath   = "/services/pkuhole/images/"
	UserAgent = "okhttp/3.4.1"
	Platform  = "PC"

	// Client Defaults
	DefaultBaseURL = "http://" + Host
	DefaultTimeout = "30s"

	// Rate Limiting Defaults (outbound)
	DefaultRateLimitEvery = "500ms"
	DefaultRateLimitBurst = 4

	// Local Storage
	DefaultDBPath   = "./pkuhole.db?_journal_mode=WAL&_foreign_keys=on"
	DefaultMediaDir = "./media"

	// Image Limits
	MaxUploadSize   = 5 * 1024 * 1024 // 5MB before re-encoding
	MaxWidth        = 1920
	MaxHeight       = 1920
	ThumbnailWidth  = 250
	ThumbnailHeight = 250
	UploadQuality   = 85
)

// Config is the resolved runtime configuration of the client.
type Config struct {
	BaseURL    string
	Host       string
	Timeout    time.Duration
	RateEvery  time.Duration
	RateBurst  int
	DBPath     string
	SessionKey string
	Password   string
	MediaDir   string
	LogLevel   slog.Level

	S3Enabled   bool
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3PublicURL string
	S3UseSSL    bool
	S3Prefix    string
}

// Load reads PKUHOLE_* environment variables on top of the defaults. Invalid
// values are reported through logger and replaced by their default.
func Load(logger *slog.Logger) Config {
	cfg := Config{
		BaseURL:    strings.TrimSuffix(utils.GetEnv("PKUHOLE_BASE_URL", DefaultBaseURL), "/"),
		Host:       utils.GetEnv("PKUHOLE_HOST", ""),
		DBPath:     utils.GetEnv("PKUHOLE_DB_PATH", DefaultDBPath),
		SessionKey: utils.GetEnv("PKUHOLE_SESSION_KEY", ""),
		Password:   utils.GetEnv("PKUHOLE_PASSWORD", ""),
		MediaDir:   utils.GetEnv("PKUHOLE_MEDIA_DIR", DefaultMediaDir),

		S3Enabled:   utils.GetEnv("PKUHOLE_S3_ENABLED", "false") == "true",
		S3Endpoint:  utils.GetEnv("PKUHOLE_S3_ENDPOINT", ""),
		S3AccessKey: utils.GetEnv("PKUHOLE_S3_ACCESS_KEY", ""),
		S3SecretKey: utils.GetEnv("PKUHOLE_S3_SECRET_KEY", ""),
		S3Bucket:    utils.GetEnv("PKUHOLE_S3_BUCKET", ""),
		S3Region:    utils.GetEnv("PKUHOLE_S3_REGION", "us-east-1"),
		S3PublicURL: utils.GetEnv("PKUHOLE_S3_PUBLIC_URL", ""),
		S3UseSSL:    utils.GetEnv("PKUHOLE_S3_USE_SSL", "true") == "true",
		S3Prefix:    utils.GetEnv("PKUHOLE_S3_PREFIX", "pkuhole"),
	}

	var err error
	cfg.Timeout, err = time.ParseDuration(utils.GetEnv("PKUHOLE_TIMEOUT", DefaultTimeout))
	if err != nil {
		logger.Warn("Invalid PKUHOLE_TIMEOUT duration, using default", "value", utils.GetEnv("PKUHOLE_TIMEOUT", ""), "default", DefaultTimeout)
		cfg.Timeout, _ = time.ParseDuration(DefaultTimeout)
	}
	cfg.RateEvery, err = time.ParseDuration(utils.GetEnv("PKUHOLE_RATE_EVERY", DefaultRateLimitEvery))
	if err != nil {
		logger.Warn("Invalid PKUHOLE_RATE_EVERY duration, using default", "value", utils.GetEnv("PKUHOLE_RATE_EVERY", ""), "default", DefaultRateLimitEvery)
		cfg.RateEvery, _ = time.ParseDuration(DefaultRateLimitEvery)
	}
	cfg.RateBurst, err = strconv.Atoi(utils.GetEnv("PKUHOLE_RATE_BURST", strconv.Itoa(DefaultRateLimitBurst)))
	if err != nil || cfg.RateBurst < 1 {
		logger.Warn("Invalid PKUHOLE_RATE_BURST integer, using default", "value", utils.GetEnv("PKUHOLE_RATE_BURST", ""), "default", DefaultRateLimitBurst)
		cfg.RateBurst = DefaultRateLimitBurst
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(utils.GetEnv("PKUHOLE_LOG_LEVEL", "INFO"))); err != nil {
		logger.Warn("Invalid PKUHOLE_LOG_LEVEL, using INFO", "value", utils.GetEnv("PKUHOLE_LOG_LEVEL", ""))
		cfg.LogLevel = slog.LevelInfo
	}
	return cfg
}
