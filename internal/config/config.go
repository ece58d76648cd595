// Package config loads config.yaml from the configuration directory. Values
// come from, in rising precedence: built-in defaults, the file, and
// PHOTOFACTORY_* environment variables. data_dir is the exception: its
// environment override is applied by the paths package after the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/photofactory/internal/imageproc"
	"github.com/mesh-intelligence/photofactory/internal/jobnumber"
	"github.com/mesh-intelligence/photofactory/internal/kvstore"
	"github.com/mesh-intelligence/photofactory/internal/upload"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

const (
	fileName  = "config"
	fileType  = "yaml"
	envPrefix = "PHOTOFACTORY"
)

// FileName is the configuration file inside the config directory.
const FileName = fileName + "." + fileType

// Config is the resolved configuration.
type Config struct {
	DataDir           string        `yaml:"data_dir,omitempty" mapstructure:"data_dir"`
	BlobQuotaBytes    int64         `yaml:"blob_quota_bytes" mapstructure:"blob_quota_bytes"`
	PhotosPerCategory int           `yaml:"photos_per_category" mapstructure:"photos_per_category"`
	MaxFileSize       int64         `yaml:"max_file_size" mapstructure:"max_file_size"`
	Session           SessionConfig `yaml:"session" mapstructure:"session"`
	JobNumber         JobNumber     `yaml:"job_number" mapstructure:"job_number"`
	Upload            Upload        `yaml:"upload" mapstructure:"upload"`
	Auth              Auth          `yaml:"auth" mapstructure:"auth"`
	Log               Log           `yaml:"log" mapstructure:"log"`
}

// SessionConfig bounds the staging session lifetime.
type SessionConfig struct {
	MaxAge  time.Duration `yaml:"max_age" mapstructure:"max_age"`
	MaxIdle time.Duration `yaml:"max_idle" mapstructure:"max_idle"`
}

// JobNumber tunes the job number generator.
type JobNumber struct {
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
}

// Upload selects where saved photos go.
type Upload struct {
	Backend     string `yaml:"backend" mapstructure:"backend"`
	LocalDir    string `yaml:"local_dir,omitempty" mapstructure:"local_dir"`
	SupabaseURL string `yaml:"supabase_url,omitempty" mapstructure:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key,omitempty" mapstructure:"supabase_key"`
	Bucket      string `yaml:"bucket,omitempty" mapstructure:"bucket"`
	Retries     int    `yaml:"retries" mapstructure:"retries"`
}

// Auth configures local sign-in tokens.
type Auth struct {
	Secret   string        `yaml:"secret,omitempty" mapstructure:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	limits := types.DefaultSessionLimits()
	return Config{
		BlobQuotaBytes:    kvstore.DefaultQuota,
		PhotosPerCategory: limits.PhotosPerCategory,
		MaxFileSize:       imageproc.DefaultMaxFileSize,
		Session:           SessionConfig{MaxAge: limits.MaxAge, MaxIdle: limits.MaxIdle},
		JobNumber:         JobNumber{MaxRetries: jobnumber.DefaultMaxRetries, BaseDelay: jobnumber.DefaultBaseDelay},
		Upload:            Upload{Backend: upload.BackendNone, Retries: 3},
		Auth:              Auth{TokenTTL: 7 * 24 * time.Hour},
		Log:               Log{Level: "info", Format: "text"},
	}
}

// Config validation errors.
var (
	ErrUploadBackend = errors.New("unknown upload backend")
	ErrLogLevel      = errors.New("unknown log level")
	ErrLogFormat     = errors.New("unknown log format")
	ErrNegative      = errors.New("value must not be negative")
)

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Upload.Backend {
	case upload.BackendNone, upload.BackendLocal, upload.BackendSupabase:
	default:
		return fmt.Errorf("upload.backend %q: %w", c.Upload.Backend, ErrUploadBackend)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format %q: %w", c.Log.Format, ErrLogFormat)
	}
	for name, v := range map[string]int64{
		"blob_quota_bytes":       c.BlobQuotaBytes,
		"photos_per_category":    int64(c.PhotosPerCategory),
		"max_file_size":          c.MaxFileSize,
		"session.max_age":        int64(c.Session.MaxAge),
		"session.max_idle":       int64(c.Session.MaxIdle),
		"job_number.max_retries": int64(c.JobNumber.MaxRetries),
		"job_number.base_delay":  int64(c.JobNumber.BaseDelay),
		"upload.retries":         int64(c.Upload.Retries),
		"auth.token_ttl":         int64(c.Auth.TokenTTL),
	} {
		if v < 0 {
			return fmt.Errorf("%s: %w", name, ErrNegative)
		}
	}
	return nil
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, ErrLogLevel)
	}
	return lvl, nil
}

// SessionLimits converts the session settings.
func (c Config) SessionLimits() types.SessionLimits {
	return types.SessionLimits{
		MaxAge:            c.Session.MaxAge,
		MaxIdle:           c.Session.MaxIdle,
		PhotosPerCategory: c.PhotosPerCategory,
	}.WithDefaults()
}

// ImageOptions converts the image settings.
func (c Config) ImageOptions() imageproc.Options {
	return imageproc.Options{MaxFileSize: c.MaxFileSize}
}

// UploadConfig converts the upload settings. An empty local_dir falls back to
// defaultLocalDir.
func (c Config) UploadConfig(defaultLocalDir string) upload.Config {
	dir := c.Upload.LocalDir
	if dir == "" {
		dir = defaultLocalDir
	}
	return upload.Config{
		Backend:  c.Upload.Backend,
		LocalDir: dir,
		Supabase: upload.SupabaseConfig{
			URL:    c.Upload.SupabaseURL,
			Key:    c.Upload.SupabaseKey,
			Bucket: c.Upload.Bucket,
		},
	}
}

// envKeys lists the settings that PHOTOFACTORY_* variables override, e.g.
// PHOTOFACTORY_SESSION_MAX_IDLE for session.max_idle.
var envKeys = []string{
	"blob_quota_bytes", "photos_per_category", "max_file_size",
	"session.max_age", "session.max_idle",
	"job_number.max_retries", "job_number.base_delay",
	"upload.backend", "upload.local_dir", "upload.supabase_url", "upload.supabase_key",
	"upload.bucket", "upload.retries",
	"auth.secret", "auth.token_ttl",
	"log.level", "log.format",
}

// Load reads config.yaml from dir, writing a default file first when none
// exists.
func Load(dir string) (*Config, error) {
	if err := EnsureFile(dir); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetConfigName(fileName)
	v.SetConfigType(fileType)
	v.AddConfigPath(dir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("binding %s: %w", k, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("blob_quota_bytes", d.BlobQuotaBytes)
	v.SetDefault("photos_per_category", d.PhotosPerCategory)
	v.SetDefault("max_file_size", d.MaxFileSize)
	v.SetDefault("session.max_age", d.Session.MaxAge)
	v.SetDefault("session.max_idle", d.Session.MaxIdle)
	v.SetDefault("job_number.max_retries", d.JobNumber.MaxRetries)
	v.SetDefault("job_number.base_delay", d.JobNumber.BaseDelay)
	v.SetDefault("upload.backend", d.Upload.Backend)
	v.SetDefault("upload.local_dir", d.Upload.LocalDir)
	v.SetDefault("upload.supabase_url", d.Upload.SupabaseURL)
	v.SetDefault("upload.supabase_key", d.Upload.SupabaseKey)
	v.SetDefault("upload.bucket", d.Upload.Bucket)
	v.SetDefault("upload.retries", d.Upload.Retries)
	v.SetDefault("auth.secret", d.Auth.Secret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

const fileHeader = `# photofactory configuration
# Environment variables PHOTOFACTORY_<KEY> override these values, with dots
# in nested keys written as underscores (PHOTOFACTORY_SESSION_MAX_IDLE).
# data_dir may also be set with --data-dir or PHOTOFACTORY_DATA_DIR.

`

// EnsureFile creates dir and writes a config.yaml holding the defaults when
// the file is missing. An existing file is left alone.
func EnsureFile(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	body, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	return os.WriteFile(path, append([]byte(fileHeader), body...), 0o644)
}
