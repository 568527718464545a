// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/syscallgate/internal/security"
	"github.com/jeranaias/syscallgate/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete syscallgate configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Credential store
	Store StoreConfig `toml:"store" json:"store"`

	// Audit log (AU-2, AU-9)
	Audit AuditConfig `toml:"audit" json:"audit"`

	// Account lockout (AC-7)
	Lockout LockoutConfig `toml:"lockout" json:"lockout"`

	// First-run administrator
	Bootstrap BootstrapConfig `toml:"bootstrap" json:"bootstrap"`

	// Operation dispatch
	Dispatch DispatchConfig `toml:"dispatch" json:"dispatch"`

	// Operational logging
	Log LogConfig `toml:"log" json:"log"`

	// Prometheus endpoint
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`
}

// StoreConfig selects the credential store.
type StoreConfig struct {
	// Backend is "file" (JSON, compatible with users.json) or "bolt".
	Backend string `toml:"backend" json:"backend"`
	Path    string `toml:"path" json:"path"`
}

// AuditConfig selects the audit log.
type AuditConfig struct {
	// Backend is "file" (JSONL) or "sqlite".
	Backend string `toml:"backend" json:"backend"`
	Path    string `toml:"path" json:"path"`

	// HMACKeyFile holds the chain key. SYSCALLGATE_AUDIT_HMAC_KEY, read by
	// the audit package, takes priority over it.
	HMACKeyFile string `toml:"hmac_key_file" json:"hmac_key_file"`

	// Redact masks secrets in entry details before they are sealed.
	Redact bool `toml:"redact" json:"redact"`
}

// LockoutConfig holds the AC-7 policy.
type LockoutConfig struct {
	MaxAttempts  int `toml:"max_attempts" json:"max_attempts"`
	DurationSecs int `toml:"duration_secs" json:"duration_secs"`
}

// Duration returns DurationSecs as a time.Duration.
func (l LockoutConfig) Duration() time.Duration {
	return time.Duration(l.DurationSecs) * time.Second
}

// BootstrapConfig describes the administrator that exists before the store
// is first written. No password is built in: PasswordHash must be supplied
// here or through SYSCALLGATE_BOOTSTRAP_PASSWORD_HASH.
type BootstrapConfig struct {
	Username     string `toml:"username" json:"username"`
	Role         string `toml:"role" json:"role"`
	PasswordHash string `toml:"password_hash" json:"password_hash"`
}

// DispatchConfig controls operation dispatch.
type DispatchConfig struct {
	// RateLimitPerSec is the per-principal call rate. 0 disables limiting.
	RateLimitPerSec float64 `toml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	Burst           int     `toml:"burst" json:"burst"`

	// HandlerTimeoutSecs bounds a single handler call. 0 disables it.
	HandlerTimeoutSecs int `toml:"handler_timeout_secs" json:"handler_timeout_secs"`
}

// HandlerTimeout returns HandlerTimeoutSecs as a time.Duration.
func (d DispatchConfig) HandlerTimeout() time.Duration {
	return time.Duration(d.HandlerTimeoutSecs) * time.Second
}

// LogConfig controls the rotated operational log.
type LogConfig struct {
	// Path of the JSON log file. Empty logs warnings to stderr only.
	Path       string `toml:"path" json:"path"`
	Level      string `toml:"level" json:"level"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is a host:port for /metrics. Empty disables the endpoint.
	Listen string `toml:"listen" json:"listen"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1",

		Store: StoreConfig{
			Backend: BackendFile,
			Path:    "~/.syscallgate/users.json",
		},

		Audit: AuditConfig{
			Backend:     BackendFile,
			Path:        "~/.syscallgate/system_calls.log",
			HMACKeyFile: "~/.syscallgate/audit.key",
			Redact:      true,
		},

		Lockout: LockoutConfig{
			MaxAttempts:  3,   // AC-7: 3 consecutive failures
			DurationSecs: 300, // AC-7: 5 minute lock
		},

		Bootstrap: BootstrapConfig{
			Username: "admin",
			Role:     string(security.RoleAdmin),
		},

		Dispatch: DispatchConfig{
			RateLimitPerSec: 0, // unlimited
			Burst:           5,
		},

		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// defaultStorePath returns the conventional store location for backend.
func defaultStorePath(backend string) string {
	if backend == BackendBolt {
		return "~/.syscallgate/users.db"
	}
	return "~/.syscallgate/users.json"
}

// defaultAuditPath returns the conventional audit location for backend.
func defaultAuditPath(backend string) string {
	if backend == BackendSQLite {
		return "~/.syscallgate/audit.db"
	}
	return "~/.syscallgate/system_calls.log"
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// EnvConfigPath names an explicit config file.
const EnvConfigPath = "SYSCALLGATE_CONFIG"

// ConfigDir returns the syscallgate configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".syscallgate"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// The bootstrap hash is a credential, so config files are kept at 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from SYSCALLGATE_CONFIG if set, else from the
// TOML then JSON file in ConfigDir, and falls back to defaults when neither
// exists. Environment overrides are applied last.
func Load() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return LoadFromPath(path)
	}

	for _, locate := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := locate()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Keys absent from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	path = util.ExpandHome(path)
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies overrides, migration, defaults and validation, in that
// order.
func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	c.Migrate()
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg to path atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# syscallgate configuration file\n")
	buf.WriteString("# Generated by syscallgate - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg to path atomically with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate validates the configuration and returns any errors as
// ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Storage
	if c.Store.Backend != BackendFile && c.Store.Backend != BackendBolt {
		add("store.backend", "invalid backend '%s', must be one of: file, bolt", c.Store.Backend)
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		add("store.path", "must not be empty")
	}
	if c.Audit.Backend != BackendFile && c.Audit.Backend != BackendSQLite {
		add("audit.backend", "invalid backend '%s', must be one of: file, sqlite", c.Audit.Backend)
	}
	if strings.TrimSpace(c.Audit.Path) == "" {
		add("audit.path", "must not be empty")
	}
	if c.Store.Path != "" && util.ExpandHome(c.Store.Path) == util.ExpandHome(c.Audit.Path) {
		add("audit.path", "must differ from store.path")
	}

	// AC-7
	if c.Lockout.MaxAttempts < 1 || c.Lockout.MaxAttempts > 100 {
		add("lockout.max_attempts", "must be between 1 and 100, got %d", c.Lockout.MaxAttempts)
	}
	if c.Lockout.DurationSecs < 1 || c.Lockout.DurationSecs > 86400 {
		add("lockout.duration_secs", "must be between 1 and 86400, got %d", c.Lockout.DurationSecs)
	}

	// Bootstrap
	if strings.TrimSpace(c.Bootstrap.Username) == "" {
		add("bootstrap.username", "must not be empty")
	}
	if _, err := security.ParseRole(c.Bootstrap.Role); err != nil {
		add("bootstrap.role", "invalid role '%s', must be one of: admin, user", c.Bootstrap.Role)
	}
	if h := c.Bootstrap.PasswordHash; h != "" && !looksLikeDigest(h) {
		add("bootstrap.password_hash", "not a recognised digest; generate one with 'syscallgate users hash-password'")
	}

	// Dispatch
	if c.Dispatch.RateLimitPerSec < 0 {
		add("dispatch.rate_limit_per_sec", "must not be negative")
	}
	if c.Dispatch.RateLimitPerSec > 0 && c.Dispatch.Burst < 1 {
		add("dispatch.burst", "must be at least 1 when rate limiting is enabled")
	}
	if c.Dispatch.HandlerTimeoutSecs < 0 {
		add("dispatch.handler_timeout_secs", "must not be negative")
	}

	// Logging
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		add("log", "rotation limits must not be negative")
	}

	// Metrics
	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			add("metrics.listen", "invalid address '%s': %v", c.Metrics.Listen, err)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// looksLikeDigest accepts the pbkdf2 encoding and bare 64-hex SHA-256.
func looksLikeDigest(h string) bool {
	if strings.HasPrefix(h, "pbkdf2-sha256$") {
		return strings.Count(h, "$") == 3
	}
	if len(h) != 64 {
		return false
	}
	for _, r := range h {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

// SetDefaults fills zero values that a partial file may leave behind.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	// A path left at another backend's default follows the backend.
	if p := c.Store.Path; p == "" || (p == defaultStorePath(BackendFile) && c.Store.Backend != BackendFile) {
		c.Store.Path = defaultStorePath(c.Store.Backend)
	}
	if c.Audit.Backend == "" {
		c.Audit.Backend = d.Audit.Backend
	}
	if p := c.Audit.Path; p == "" || (p == defaultAuditPath(BackendFile) && c.Audit.Backend != BackendFile) {
		c.Audit.Path = defaultAuditPath(c.Audit.Backend)
	}
	if c.Lockout.MaxAttempts == 0 {
		c.Lockout.MaxAttempts = d.Lockout.MaxAttempts
	}
	if c.Lockout.DurationSecs == 0 {
		c.Lockout.DurationSecs = d.Lockout.DurationSecs
	}
	if c.Bootstrap.Username == "" {
		c.Bootstrap.Username = d.Bootstrap.Username
	}
	if c.Bootstrap.Role == "" {
		c.Bootstrap.Role = d.Bootstrap.Role
	}
	if c.Dispatch.Burst == 0 {
		c.Dispatch.Burst = d.Dispatch.Burst
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// Migrate normalizes older spellings of enumerated values.
func (c *Config) Migrate() {
	c.Store.Backend = normalizeBackend(c.Store.Backend)
	c.Audit.Backend = normalizeBackend(c.Audit.Backend)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "warning" {
		c.Log.Level = "warn"
	}
	c.Bootstrap.Role = strings.ToLower(strings.TrimSpace(c.Bootstrap.Role))
}

func normalizeBackend(b string) string {
	switch b = strings.ToLower(strings.TrimSpace(b)); b {
	case "json", "jsonl":
		return BackendFile
	case "bbolt", "boltdb":
		return BackendBolt
	case "sqlite3":
		return BackendSQLite
	default:
		return b
	}
}

// ExpandPaths resolves "~" in every configured path.
func (c *Config) ExpandPaths() {
	c.Store.Path = util.ExpandHome(c.Store.Path)
	c.Audit.Path = util.ExpandHome(c.Audit.Path)
	c.Audit.HMACKeyFile = util.ExpandHome(c.Audit.HMACKeyFile)
	c.Log.Path = util.ExpandHome(c.Log.Path)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - SYSCALLGATE_STORE_BACKEND: overrides store.backend
//   - SYSCALLGATE_STORE_PATH: overrides store.path
//   - SYSCALLGATE_AUDIT_BACKEND: overrides audit.backend
//   - SYSCALLGATE_AUDIT_PATH: overrides audit.path
//   - SYSCALLGATE_BOOTSTRAP_USERNAME: overrides bootstrap.username
//   - SYSCALLGATE_BOOTSTRAP_PASSWORD_HASH: overrides bootstrap.password_hash
//   - SYSCALLGATE_LOCKOUT_MAX_ATTEMPTS: overrides lockout.max_attempts
//   - SYSCALLGATE_LOCKOUT_DURATION_SECS: overrides lockout.duration_secs
//   - SYSCALLGATE_LOG_LEVEL: overrides log.level
//   - SYSCALLGATE_METRICS_LISTEN: overrides metrics.listen
//
// SYSCALLGATE_AUDIT_HMAC_KEY is read by the audit package directly and never
// copied into the config.
func (c *Config) ApplyEnvOverrides() {
	strs := map[string]*string{
		"SYSCALLGATE_STORE_BACKEND":           &c.Store.Backend,
		"SYSCALLGATE_STORE_PATH":              &c.Store.Path,
		"SYSCALLGATE_AUDIT_BACKEND":           &c.Audit.Backend,
		"SYSCALLGATE_AUDIT_PATH":              &c.Audit.Path,
		"SYSCALLGATE_BOOTSTRAP_USERNAME":      &c.Bootstrap.Username,
		"SYSCALLGATE_BOOTSTRAP_PASSWORD_HASH": &c.Bootstrap.PasswordHash,
		"SYSCALLGATE_LOG_LEVEL":               &c.Log.Level,
		"SYSCALLGATE_METRICS_LISTEN":          &c.Metrics.Listen,
	}
	for env, field := range strs {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}

	ints := map[string]*int{
		"SYSCALLGATE_LOCKOUT_MAX_ATTEMPTS":  &c.Lockout.MaxAttempts,
		"SYSCALLGATE_LOCKOUT_DURATION_SECS": &c.Lockout.DurationSecs,
	}
	for env, field := range ints {
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*field = n
			} else {
				fmt.Fprintf(os.Stderr, "Warning: ignoring %s=%q: not an integer\n", env, v)
			}
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "lockout.max_attempts").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(part[:1]))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				boolVal = strings.EqualFold(strVal, "yes")
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"store.backend",
		"store.path",
		"audit.backend",
		"audit.path",
		"audit.hmac_key_file",
		"audit.redact",
		"lockout.max_attempts",
		"lockout.duration_secs",
		"bootstrap.username",
		"bootstrap.role",
		"bootstrap.password_hash",
		"dispatch.rate_limit_per_sec",
		"dispatch.burst",
		"dispatch.handler_timeout_secs",
		"log.path",
		"log.level",
		"log.max_size_mb",
		"log.max_backups",
		"log.max_age_days",
		"log.compress",
		"metrics.listen",
	}
}

// Clone creates a copy of the configuration. Config holds only value
// types, so a struct copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a JSON rendering with the bootstrap digest redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Bootstrap.PasswordHash != "" {
		safe.Bootstrap.PasswordHash = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
// This should only be used in tests to reset state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
