// Package config builds the service configuration once at startup from
// environment variables, an optional config file and command-line flags.
//
// Nothing outside cmd/backend reads the environment: every component
// receives the parts of Config it needs through its constructor.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultMaxUploadBytes caps a single upload at 1 GiB.
const DefaultMaxUploadBytes int64 = 1 << 30

// Store holds the object store connection settings.
type Store struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string

	OpTimeout       time.Duration // list, stat, delete, ping
	TransferTimeout time.Duration // put and get, including body streaming
	Retries         int           // extra attempts for transient failures

	// ListStatConcurrency bounds the stat calls issued to fill in content
	// types the list response lacks. Zero disables the stat pass.
	ListStatConcurrency int
}

// Auth holds the expected Basic auth credentials.
type Auth struct {
	Username string
	Password string
	Realm    string
}

// Enabled reports whether the Basic auth gate is active.
func (a Auth) Enabled() bool {
	return a.Username != "" && a.Password != ""
}

// Log selects the logger level and output format.
type Log struct {
	Level  string
	Format string
}

// Config is the complete service configuration.
type Config struct {
	Addr           string
	Store          Store
	Auth           Auth
	MaxUploadBytes int64
	Log            Log
}

// binding ties a viper key to its environment variable and default.
type binding struct {
	key string
	env string
	def any
}

var bindings = []binding{
	{"addr", "SHARE_ADDR", ":8080"},
	{"store.endpoint", "R2_ENDPOINT_URL", nil},
	{"store.access_key_id", "R2_ACCESS_KEY_ID", nil},
	{"store.secret_access_key", "R2_SECRET_ACCESS_KEY_ID", nil},
	{"store.bucket", "R2_BUCKET_NAME", nil},
	{"store.region", "R2_REGION", "auto"},
	{"store.op_timeout", "SHARE_STORE_TIMEOUT", "30s"},
	{"store.transfer_timeout", "SHARE_TRANSFER_TIMEOUT", "10m"},
	{"store.retries", "SHARE_STORE_RETRIES", "3"},
	{"store.list_stat_concurrency", "SHARE_LIST_STAT_CONCURRENCY", "8"},
	{"auth.username", "BASIC_AUTH_USERNAME", nil},
	{"auth.password", "BASIC_AUTH_PASSWORD", nil},
	{"auth.realm", "BASIC_AUTH_REALM", "files"},
	{"max_upload_bytes", "SHARE_MAX_UPLOAD_BYTES", "1073741824"},
	{"log.level", "SHARE_LOG_LEVEL", "info"},
	{"log.format", "SHARE_LOG_FORMAT", "text"},
}

// EnvName returns the environment variable bound to a config key, or the
// key itself when it has none.
func EnvName(key string) string {
	for _, b := range bindings {
		if b.key == key {
			return b.env
		}
	}
	return key
}

// Bind registers defaults and environment variable names on v.
func Bind(v *viper.Viper) {
	for _, b := range bindings {
		if b.def != nil {
			v.SetDefault(b.key, b.def)
		}
		// BindEnv only errors when called without arguments.
		_ = v.BindEnv(b.key, b.env)
	}
}

// Load reads and validates the configuration from v. Every problem found
// is reported in a single *ConfigError.
func Load(v *viper.Viper) (Config, error) {
	val := newValidator()

	cfg := Config{
		Addr: val.required("addr", v.GetString("addr")),
		Store: Store{
			Endpoint:        val.required("store.endpoint", v.GetString("store.endpoint")),
			AccessKeyID:     val.required("store.access_key_id", v.GetString("store.access_key_id")),
			SecretAccessKey: val.required("store.secret_access_key", v.GetString("store.secret_access_key")),
			Bucket:          val.required("store.bucket", v.GetString("store.bucket")),
			Region:          v.GetString("store.region"),

			OpTimeout:           val.duration("store.op_timeout", v.GetString("store.op_timeout")),
			TransferTimeout:     val.duration("store.transfer_timeout", v.GetString("store.transfer_timeout")),
			Retries:             int(val.nonNegativeInt("store.retries", v.GetString("store.retries"))),
			ListStatConcurrency: int(val.nonNegativeInt("store.list_stat_concurrency", v.GetString("store.list_stat_concurrency"))),
		},
		Auth: Auth{
			Username: v.GetString("auth.username"),
			Password: v.GetString("auth.password"),
			Realm:    v.GetString("auth.realm"),
		},
		MaxUploadBytes: val.positiveInt("max_upload_bytes", v.GetString("max_upload_bytes")),
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	val.pair("auth.username", cfg.Auth.Username, "auth.password", cfg.Auth.Password)
	val.enum("log.level", cfg.Log.Level, []string{"debug", "info", "warn", "error"})
	val.enum("log.format", cfg.Log.Format, []string{"text", "json"})

	if err := val.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
