// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	configPath     = pflag.String("config", ".", "Directory containing config.toml")
	validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}
	validEnvs      = []string{"development", "production"}
)

// Config is an immutable snapshot of the settings, built once at startup and
// handed to every component that needs it
type Config struct {
	LogLevel   string
	Production bool

	Port       int
	CORS       []string
	SSL        bool
	CertPath   string
	CertKey    string
	StaticDir  string
	RateLimit  int
	TokenTTL   time.Duration
	Secret     string
	SecretFile string
	AdminUsers []string

	DataDir       string
	DefaultQuota  int64
	MaxUploadSize int64

	FetchMaxBytes     int64
	FetchMaxRedirects int
	FetchTimeout      time.Duration

	ThumbsEnabled bool
	ThumbWidth    int
	FFmpegPath    string
	FFmpegWorkers int

	Mirror MirrorConfig
}

type MirrorConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(*configPath)

	bindEnvs()
	setDefaults()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file, %w", err)
		}

		zap.L().Warn("No config.toml found, using defaults and environment variables")
	}

	return validate()
}

func bindEnvs() {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("app.log_level", "APP_LOG_LEVEL")
	v.BindEnv("app.env", "APP_ENV")

	v.BindEnv("host.port", "HOST_PORT")
	v.BindEnv("host.cors", "HOST_CORS")
	v.BindEnv("host.ssl.enabled", "HOST_SSL_ENABLED")
	v.BindEnv("host.ssl.certificate_path", "HOST_SSL_CERTIFICATE_PATH")
	v.BindEnv("host.ssl.certificate_key_path", "HOST_SSL_CERTIFICATE_KEY_PATH")

	v.BindEnv("security.secret", "SECURITY_SECRET", "BANANA_SECRET")
	v.BindEnv("security.secret_file", "SECURITY_SECRET_FILE")
	v.BindEnv("security.rate_limit", "SECURITY_RATE_LIMIT")
	v.BindEnv("security.token_ttl", "SECURITY_TOKEN_TTL")

	v.BindEnv("auth.admin_users", "AUTH_ADMIN_USERS")

	v.BindEnv("storage.data_dir", "STORAGE_DATA_DIR")
	v.BindEnv("quota.default_bytes", "QUOTA_DEFAULT_BYTES")
	v.BindEnv("upload.max_size", "UPLOAD_MAX_SIZE")

	v.BindEnv("fetch.max_bytes", "FETCH_MAX_BYTES")
	v.BindEnv("fetch.max_redirects", "FETCH_MAX_REDIRECTS")
	v.BindEnv("fetch.timeout", "FETCH_TIMEOUT")

	v.BindEnv("thumbs.enabled", "THUMBS_ENABLED")
	v.BindEnv("thumbs.width", "THUMBS_WIDTH")
	v.BindEnv("ffmpeg.path", "FFMPEG_PATH")
	v.BindEnv("ffmpeg.workers", "FFMPEG_WORKERS")

	v.BindEnv("mirror.enabled", "MIRROR_ENABLED")
	v.BindEnv("mirror.bucket", "MIRROR_BUCKET")
	v.BindEnv("mirror.region", "MIRROR_REGION")
	v.BindEnv("mirror.endpoint", "MIRROR_ENDPOINT")
	v.BindEnv("mirror.access_key_id", "MIRROR_ACCESS_KEY_ID")
	v.BindEnv("mirror.secret_access_key", "MIRROR_SECRET_ACCESS_KEY")

	v.BindEnv("static.dir", "STATIC_DIR")
}

func setDefaults() {
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.env", "development")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.cors", []string{"http://localhost:5173"})
	v.SetDefault("host.ssl.enabled", false)

	v.SetDefault("security.rate_limit", 20)
	v.SetDefault("security.token_ttl", "168h")

	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("quota.default_bytes", int64(500<<20))
	v.SetDefault("upload.max_size", 25)

	v.SetDefault("fetch.max_bytes", int64(20<<20))
	v.SetDefault("fetch.max_redirects", 3)
	v.SetDefault("fetch.timeout", "30s")

	v.SetDefault("thumbs.enabled", false)
	v.SetDefault("thumbs.width", 320)
	v.SetDefault("ffmpeg.path", "ffmpeg")
	v.SetDefault("ffmpeg.workers", 2)

	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.region", "auto")

	v.SetDefault("static.dir", "./public")
}

func validate() error {
	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if !slices.Contains(validEnvs, v.GetString("app.env")) {
		return errors.New("app.env must be development or production")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if v.GetBool("host.ssl.enabled") {
		if v.GetString("host.ssl.certificate_path") == "" {
			return errors.New("no ssl certificate path provided")
		}

		if v.GetString("host.ssl.certificate_key_path") == "" {
			return errors.New("no ssl certificate key path provided")
		}
	}

	if v.GetString("storage.data_dir") == "" {
		return errors.New("storage.data_dir can't be empty")
	}

	if v.GetInt64("quota.default_bytes") <= 0 {
		return errors.New("quota.default_bytes must be bigger than 0")
	}

	if v.GetInt("upload.max_size") <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	if v.GetInt64("fetch.max_bytes") <= 0 {
		return errors.New("fetch.max_bytes must be bigger than 0")
	}

	if v.GetInt("fetch.max_redirects") < 0 {
		return errors.New("fetch.max_redirects can't be negative")
	}

	if v.GetDuration("security.token_ttl") <= 0 {
		return errors.New("security.token_ttl must be a positive duration")
	}

	if v.GetBool("thumbs.enabled") && v.GetInt("ffmpeg.workers") <= 0 {
		return errors.New("ffmpeg.workers must be bigger than 0 when thumbnails are enabled")
	}

	if v.GetBool("mirror.enabled") && v.GetString("mirror.bucket") == "" {
		return errors.New("mirror.bucket can't be empty when the mirror is enabled")
	}

	if v.GetString("security.secret") == "" {
		zap.L().Info("No security.secret set, the token secret will be loaded from the secret file")
	}

	return nil
}

// Load snapshots the current viper state into a Config
func Load() *Config {
	dataDir := v.GetString("storage.data_dir")

	secretFile := v.GetString("security.secret_file")
	if secretFile == "" {
		secretFile = filepath.Join(dataDir, ".secret")
	}

	return &Config{
		LogLevel:   v.GetString("app.log_level"),
		Production: v.GetString("app.env") == "production",

		Port:       v.GetInt("host.port"),
		CORS:       splitList(v.GetStringSlice("host.cors")),
		SSL:        v.GetBool("host.ssl.enabled"),
		CertPath:   v.GetString("host.ssl.certificate_path"),
		CertKey:    v.GetString("host.ssl.certificate_key_path"),
		StaticDir:  v.GetString("static.dir"),
		RateLimit:  v.GetInt("security.rate_limit"),
		TokenTTL:   v.GetDuration("security.token_ttl"),
		Secret:     v.GetString("security.secret"),
		SecretFile: secretFile,
		AdminUsers: splitList(v.GetStringSlice("auth.admin_users")),

		DataDir:       dataDir,
		DefaultQuota:  v.GetInt64("quota.default_bytes"),
		MaxUploadSize: v.GetInt64("upload.max_size") << 20,

		FetchMaxBytes:     v.GetInt64("fetch.max_bytes"),
		FetchMaxRedirects: v.GetInt("fetch.max_redirects"),
		FetchTimeout:      v.GetDuration("fetch.timeout"),

		ThumbsEnabled: v.GetBool("thumbs.enabled"),
		ThumbWidth:    v.GetInt("thumbs.width"),
		FFmpegPath:    v.GetString("ffmpeg.path"),
		FFmpegWorkers: v.GetInt("ffmpeg.workers"),

		Mirror: MirrorConfig{
			Enabled:         v.GetBool("mirror.enabled"),
			Bucket:          v.GetString("mirror.bucket"),
			Region:          v.GetString("mirror.region"),
			Endpoint:        v.GetString("mirror.endpoint"),
			AccessKeyID:     v.GetString("mirror.access_key_id"),
			SecretAccessKey: v.GetString("mirror.secret_access_key"),
		},
	}
}

// Env vars arrive as a single comma separated string
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}

	return out
}
