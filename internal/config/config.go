// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/util"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete rigchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Server  ServerConfig  `toml:"server" json:"server"`
	Stream  StreamConfig  `toml:"stream" json:"stream"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	Log     LogConfig     `toml:"log" json:"log"`
	Archive ArchiveConfig `toml:"archive" json:"archive"`
}

// ServerConfig points the client at the chat backend.
type ServerConfig struct {
	BaseURL string `toml:"base_url" json:"base_url"`

	// Cookie is sent verbatim on every request (e.g. "session=..."). It is
	// redacted by String.
	Cookie string `toml:"cookie" json:"cookie"`

	Timeout        Duration `toml:"timeout" json:"timeout"`
	MaxRetries     int      `toml:"max_retries" json:"max_retries"`
	RequestsPerSec float64  `toml:"requests_per_sec" json:"requests_per_sec"`
}

// StreamConfig tunes reply classification.
type StreamConfig struct {
	StaleAfter       Duration             `toml:"stale_after" json:"stale_after"`
	DisplayThreshold int                  `toml:"display_threshold" json:"display_threshold"`
	SearchCues       []string             `toml:"search_cues" json:"search_cues"`
	SummaryCues      []string             `toml:"summary_cues" json:"summary_cues"`
	FinalMarkers     []stream.FinalMarker `toml:"final_markers" json:"final_markers"`
}

// UIConfig controls terminal output.
type UIConfig struct {
	// Color is "auto", "always" or "never".
	Color   string `toml:"color" json:"color"`
	Spinner bool   `toml:"spinner" json:"spinner"`

	// MaxFPS caps repaints of a streaming reply.
	MaxFPS int `toml:"max_fps" json:"max_fps"`
}

// LogConfig controls the structured log.
type LogConfig struct {
	// Level is debug, info, warn, error or off.
	Level string `toml:"level" json:"level"`

	// File enables JSON logs with rotation. Empty logs to stderr.
	File       string `toml:"file" json:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days"`
	MaxBackups int    `toml:"max_backups" json:"max_backups"`
}

// ArchiveConfig controls the local transcript archive.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
}

// Duration is a time.Duration written as a Go duration string ("8s").
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	m := stream.DefaultMarkers()
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			BaseURL:        "http://localhost:5000",
			Timeout:        Duration{30 * time.Second},
			MaxRetries:     3,
			RequestsPerSec: 10,
		},
		Stream: StreamConfig{
			StaleAfter:       Duration{stream.DefaultStaleAfter},
			DisplayThreshold: m.DisplayThreshold,
			SearchCues:       m.SearchCues,
			SummaryCues:      m.SummaryCues,
			FinalMarkers:     m.FinalMarkers,
		},
		UI: UIConfig{
			Color:   "auto",
			Spinner: true,
			MaxFPS:  30,
		},
		Log: LogConfig{
			Level:      "warn",
			MaxSizeMB:  10,
			MaxAgeDays: 14,
			MaxBackups: 3,
		},
	}
}

// Markers returns the classifier cues configured in c.
func (c *Config) Markers() stream.Markers {
	return stream.Markers{
		SearchCues:       c.Stream.SearchCues,
		SummaryCues:      c.Stream.SummaryCues,
		FinalMarkers:     c.Stream.FinalMarkers,
		DisplayThreshold: c.Stream.DisplayThreshold,
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigchat configuration directory. RIGCHAT_HOME
// overrides the default ~/.rigchat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("RIGCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigchat"), nil
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

// ActivePath returns the config file Load would read, or the TOML path
// when neither exists.
func ActivePath() (string, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// ensureSecurePermissions tightens a config file to 0600; it may hold a
// session cookie.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads .env from the working directory and the config directory
// into the process environment. Existing variables win; missing files are
// ignored.
func LoadDotEnv() {
	candidates := []string{".env"}
	if dir, err := ConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

// Load reads the config file (TOML first, then JSON), applies environment
// overrides and validates the result. With no file the defaults are used.
// A malformed file is reported alongside the default config.
func Load() (*Config, error) {
	LoadDotEnv()

	path, err := ActivePath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			cfg, err := LoadFromPath(path)
			if err == nil {
				return cfg, nil
			}
			if errors.As(err, new(ValidateErrors)) {
				return nil, err
			}
			def, defErr := finish(Default())
			if defErr != nil {
				return nil, defErr
			}
			return def, err
		}
	}
	return finish(Default())
}

// LoadFromPath loads one file. Files ending in .json are read as JSON,
// anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
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
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills empty values that have no meaningful zero.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = d.Server.BaseURL
	}
	if c.Server.Timeout.Duration == 0 {
		c.Server.Timeout = d.Server.Timeout
	}
	if c.Stream.StaleAfter.Duration == 0 {
		c.Stream.StaleAfter = d.Stream.StaleAfter
	}
	if c.Stream.DisplayThreshold == 0 {
		c.Stream.DisplayThreshold = d.Stream.DisplayThreshold
	}
	if c.UI.Color == "" {
		c.UI.Color = d.UI.Color
	}
	if c.UI.MaxFPS == 0 {
		c.UI.MaxFPS = d.UI.MaxFPS
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Archive.Path = filepath.Join(dir, "archive.db")
		}
	}
}

// ApplyEnvOverrides applies RIGCHAT_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RIGCHAT_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("RIGCHAT_COOKIE"); v != "" {
		c.Server.Cookie = v
	}
	if v := os.Getenv("RIGCHAT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Server.Timeout = Duration{d}
		}
	}
	if v := os.Getenv("RIGCHAT_STALE_AFTER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Stream.StaleAfter = Duration{d}
		}
	}
	if v := os.Getenv("RIGCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("RIGCHAT_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("RIGCHAT_ARCHIVE"); v != "" {
		c.Archive.Enabled = parseBool(v)
	}
	// https://no-color.org
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		c.UI.Color = "never"
	}
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default TOML path.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with mode 0600.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# rigchat configuration file\n")
	buf.WriteString("# Durations use Go syntax: 500ms, 8s, 1m\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON with mode 0600.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid setting.
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
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.Server.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("server.base_url", "must be an http(s) URL, got %q", c.Server.BaseURL)
	}
	if strings.ContainsAny(c.Server.Cookie, "\r\n") {
		add("server.cookie", "must not contain line breaks")
	}
	if c.Server.Timeout.Duration < time.Second || c.Server.Timeout.Duration > 10*time.Minute {
		add("server.timeout", "must be between 1s and 10m, got %s", c.Server.Timeout)
	}
	if c.Server.MaxRetries < 0 || c.Server.MaxRetries > 10 {
		add("server.max_retries", "must be between 0 and 10, got %d", c.Server.MaxRetries)
	}
	if c.Server.RequestsPerSec < 0 {
		add("server.requests_per_sec", "must not be negative")
	}

	if c.Stream.StaleAfter.Duration < 100*time.Millisecond || c.Stream.StaleAfter.Duration > 5*time.Minute {
		add("stream.stale_after", "must be between 100ms and 5m, got %s", c.Stream.StaleAfter)
	}
	if c.Stream.DisplayThreshold < 1 {
		add("stream.display_threshold", "must be positive, got %d", c.Stream.DisplayThreshold)
	}
	for i, m := range c.Stream.FinalMarkers {
		if strings.TrimSpace(m.Text) == "" {
			add(fmt.Sprintf("stream.final_markers[%d].text", i), "must not be empty")
		}
	}

	switch c.UI.Color {
	case "auto", "always", "never":
	default:
		add("ui.color", "invalid value %q, must be one of: auto, always, never", c.UI.Color)
	}
	if c.UI.MaxFPS < 1 || c.UI.MaxFPS > 240 {
		add("ui.max_fps", "must be between 1 and 240, got %d", c.UI.MaxFPS)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "off":
	default:
		add("log.level", "invalid level %q, must be one of: debug, info, warn, error, off", c.Log.Level)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxAgeDays < 0 || c.Log.MaxBackups < 0 {
		add("log", "rotation limits must not be negative")
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		add("archive.path", "required when the archive is enabled")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value by dotted key, e.g. "server.base_url".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value by dotted key. String values are converted to the
// field's type. The result is not validated.
func (c *Config) Set(key string, value any) error {
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
	parts := strings.Split(key, ".")
	if key == "" || len(parts) == 0 {
		return reflect.Value{}, errors.New("empty key")
	}
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
			return field, nil
		}
		if field.Kind() != reflect.Struct || field.Type() == reflect.TypeOf(Duration{}) {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts snake_case or kebab-case to a Go field name.
// Matching is case-insensitive, so "base_url" finds BaseURL.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		if tu, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return tu.UnmarshalText([]byte(strVal))
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			field.SetInt(n)
			return nil
		case reflect.Float64:
			f, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %w", err)
			}
			field.SetFloat(f)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
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

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Stream.SearchCues = append([]string(nil), c.Stream.SearchCues...)
	clone.Stream.SummaryCues = append([]string(nil), c.Stream.SummaryCues...)
	clone.Stream.FinalMarkers = append([]stream.FinalMarker(nil), c.Stream.FinalMarkers...)
	return &clone
}

// String renders the config as TOML with the cookie redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Server.Cookie != "" {
		safe.Server.Cookie = "[REDACTED]"
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(safe); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}
