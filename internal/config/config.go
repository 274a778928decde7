// Package config loads switchboard settings from defaults, an optional YAML
// file, SWITCHBOARD_* environment variables and bound command-line flags,
// in increasing order of precedence.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override: http.addr is SWITCHBOARD_HTTP_ADDR.
const EnvPrefix = "SWITCHBOARD"

// Journal backends.
const (
	JournalMemory = "memory"
	JournalFile   = "file"
	JournalRedis  = "redis"
	JournalBolt   = "bolt"
)

type Config struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	HTTP        HTTPConfig        `mapstructure:"http" yaml:"http"`
	Bridge      BridgeConfig      `mapstructure:"bridge" yaml:"bridge"`
	Sessions    SessionsConfig    `mapstructure:"sessions" yaml:"sessions"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Journal     JournalConfig     `mapstructure:"journal" yaml:"journal"`
	Redis       RedisConfig       `mapstructure:"redis" yaml:"redis"`
}

type HTTPConfig struct {
	Addr           string `mapstructure:"addr" yaml:"addr"`
	UploadDir      string `mapstructure:"upload_dir" yaml:"upload_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// BridgeConfig locates the automation bridge that drives the chat engines.
type BridgeConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	Token          string        `mapstructure:"token" yaml:"token,omitempty"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

type SessionsConfig struct {
	MaxSessions      int           `mapstructure:"max_sessions" yaml:"max_sessions"`
	QRTimeout        time.Duration `mapstructure:"qr_timeout" yaml:"qr_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	RecoveryDelay    time.Duration `mapstructure:"recovery_delay" yaml:"recovery_delay"`
	ConnectAttempts  int           `mapstructure:"connect_attempts" yaml:"connect_attempts"`
	ConnectBackoff   time.Duration `mapstructure:"connect_backoff" yaml:"connect_backoff"`
	MaxTextBytes     int           `mapstructure:"max_text_bytes" yaml:"max_text_bytes"` // 0 disables the bound
	Restore          RestoreConfig `mapstructure:"restore" yaml:"restore"`
}

// RestoreConfig drives the start-up reconnection of previously authenticated tenants.
type RestoreConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Pacing       time.Duration `mapstructure:"pacing" yaml:"pacing"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
}

type CredentialsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type JournalConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path is the directory of the file backend or the database file of the bolt backend.
	Path string        `mapstructure:"path" yaml:"path"`
	TTL  time.Duration `mapstructure:"ttl" yaml:"ttl"` // redis only; 0 keeps entries forever

	// EncryptionKey is a base64 AES-256 key sealing phone numbers at rest.
	EncryptionKey string   `mapstructure:"encryption_key" yaml:"encryption_key,omitempty"`
	FallbackKeys  []string `mapstructure:"fallback_keys" yaml:"fallback_keys,omitempty"`
	// MaskPhones keeps only the last MaskKeep digits of stored phone numbers.
	MaskPhones bool `mapstructure:"mask_phones" yaml:"mask_phones"`
	MaskKeep   int  `mapstructure:"mask_keep" yaml:"mask_keep"`
}

// Keys decodes the journal encryption keys. ok is false when encryption is off.
func (j JournalConfig) Keys() (active []byte, fallback [][]byte, ok bool, err error) {
	if j.EncryptionKey == "" {
		if len(j.FallbackKeys) > 0 {
			return nil, nil, false, errors.New("journal.fallback_keys requires journal.encryption_key")
		}
		return nil, nil, false, nil
	}
	active, err = decodeKey("journal.encryption_key", j.EncryptionKey)
	if err != nil {
		return nil, nil, false, err
	}
	for i, k := range j.FallbackKeys {
		key, err := decodeKey(fmt.Sprintf("journal.fallback_keys[%d]", i), k)
		if err != nil {
			return nil, nil, false, err
		}
		fallback = append(fallback, key)
	}
	return active, fallback, true, nil
}

func decodeKey(name, encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64: %w", name, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", name, len(key))
	}
	return key, nil
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	// Publish mirrors every event to Channel.
	Publish bool `mapstructure:"publish" yaml:"publish"`
}

// SetDefaults registers every key, which also makes each one overridable from the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.upload_dir", "")
	v.SetDefault("http.max_upload_bytes", 64<<20)

	v.SetDefault("bridge.url", "http://127.0.0.1:3000")
	v.SetDefault("bridge.token", "")
	v.SetDefault("bridge.connect_timeout", 90*time.Second)

	v.SetDefault("sessions.max_sessions", 5)
	v.SetDefault("sessions.qr_timeout", 5*time.Minute)
	v.SetDefault("sessions.operation_timeout", 60*time.Second)
	v.SetDefault("sessions.cache_ttl", 60*time.Second)
	v.SetDefault("sessions.recovery_delay", 10*time.Second)
	v.SetDefault("sessions.connect_attempts", 2)
	v.SetDefault("sessions.connect_backoff", 10*time.Second)
	v.SetDefault("sessions.max_text_bytes", 64<<10)
	v.SetDefault("sessions.restore.enabled", true)
	v.SetDefault("sessions.restore.pacing", 5*time.Second)
	v.SetDefault("sessions.restore.poll_interval", 2*time.Second)
	v.SetDefault("sessions.restore.max_wait", 2*time.Minute)

	v.SetDefault("credentials.dir", ".switchboard/auth")

	v.SetDefault("journal.backend", JournalFile)
	v.SetDefault("journal.path", ".switchboard/journal")
	v.SetDefault("journal.ttl", time.Duration(0))
	v.SetDefault("journal.encryption_key", "")
	v.SetDefault("journal.mask_phones", false)
	v.SetDefault("journal.mask_keep", 4)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "switchboard:events")
	v.SetDefault("redis.prefix", "switchboard:session:")
	v.SetDefault("redis.publish", false)
}

// Load reads the configuration. path may be empty; a named file that does not exist is an error.
// Flags must be bound to v before calling Load.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}

	if c.Sessions.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("sessions.max_sessions must be at least 1, got %d", c.Sessions.MaxSessions))
	}
	if c.Sessions.ConnectAttempts < 1 {
		errs = append(errs, fmt.Errorf("sessions.connect_attempts must be at least 1, got %d", c.Sessions.ConnectAttempts))
	}
	positive := map[string]time.Duration{
		"sessions.qr_timeout":        c.Sessions.QRTimeout,
		"sessions.operation_timeout": c.Sessions.OperationTimeout,
		"sessions.cache_ttl":         c.Sessions.CacheTTL,
		"sessions.recovery_delay":    c.Sessions.RecoveryDelay,
		"bridge.connect_timeout":     c.Bridge.ConnectTimeout,
	}
	for _, key := range []string{"sessions.qr_timeout", "sessions.operation_timeout", "sessions.cache_ttl", "sessions.recovery_delay", "bridge.connect_timeout"} {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}
	if c.Sessions.MaxTextBytes < 0 {
		errs = append(errs, fmt.Errorf("sessions.max_text_bytes must not be negative, got %d", c.Sessions.MaxTextBytes))
	}
	if c.Sessions.ConnectBackoff < 0 || c.Journal.TTL < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.Sessions.Restore.Enabled && (c.Sessions.Restore.PollInterval <= 0 || c.Sessions.Restore.MaxWait <= 0) {
		errs = append(errs, errors.New("sessions.restore.poll_interval and max_wait must be positive when restore is enabled"))
	}

	if c.Bridge.URL == "" {
		errs = append(errs, errors.New("bridge.url is required"))
	}
	if c.Credentials.Dir == "" {
		errs = append(errs, errors.New("credentials.dir is required"))
	}

	switch c.Journal.Backend {
	case JournalMemory:
	case JournalFile, JournalBolt:
		if c.Journal.Path == "" {
			errs = append(errs, fmt.Errorf("journal.path is required for the %s backend", c.Journal.Backend))
		}
	case JournalRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis journal"))
		}
	default:
		errs = append(errs, fmt.Errorf("journal.backend must be one of memory, file, redis, bolt, got %q", c.Journal.Backend))
	}
	if _, _, _, err := c.Journal.Keys(); err != nil {
		errs = append(errs, err)
	}
	if c.Journal.MaskKeep < 0 {
		errs = append(errs, fmt.Errorf("journal.mask_keep must not be negative, got %d", c.Journal.MaskKeep))
	}
	if c.Redis.Publish && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis.publish is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// YAML renders the configuration with secrets masked.
func (c Config) YAML() ([]byte, error) {
	if c.Bridge.Token != "" {
		c.Bridge.Token = "********"
	}
	if c.Redis.Password != "" {
		c.Redis.Password = "********"
	}
	if c.Journal.EncryptionKey != "" {
		c.Journal.EncryptionKey = "********"
	}
	if n := len(c.Journal.FallbackKeys); n > 0 {
		c.Journal.FallbackKeys = make([]string, n)
		for i := range c.Journal.FallbackKeys {
			c.Journal.FallbackKeys[i] = "********"
		}
	}
	return yaml.Marshal(c)
}
