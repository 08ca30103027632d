package config

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL     = "http://127.0.0.1:7440"
	DefaultDBFileName = ".carevault.db"

	DefaultFileInlineMaxBytes       int64 = 1 << 20
	DefaultFileBase64InlineMaxBytes int64 = 768 << 10
	DefaultFileChunkSize                  = 255 * 1024
	DefaultFileMaxUploadBytes       int64 = 100 * 1024 * 1024
	DefaultFileMultipartMemory      int64 = 8 * 1024 * 1024

	DefaultChunkStoreBackend = "sqlite"
	DefaultLogLevel          = "info"

	configDirEnvKey = "CAREVAULT_CONFIG_DIR"

	fileAllowedContentTypesEnvKey = "CAREVAULT_FILE_ALLOWED_CONTENT_TYPES"
)

// FilesConfig defines runtime configuration for file storage.
type FilesConfig struct {
	InlineMaxBytes       int64    `toml:"inline_max_bytes"`
	Base64InlineMaxBytes int64    `toml:"base64_inline_max_bytes"`
	ChunkSize            int      `toml:"chunk_size"`
	MaxUploadBytes       int64    `toml:"max_upload_bytes"`
	MultipartMaxMemory   int64    `toml:"multipart_max_memory"`
	AllowedContentTypes  []string `toml:"allowed_content_types"`
}

// ChunkStoreConfig selects and configures the chunk store backend.
type ChunkStoreConfig struct {
	// Backend is one of sqlite, local, s3.
	Backend string `toml:"backend"`
	// Path is the database file (sqlite) or root directory (local).
	Path string `toml:"path"`

	S3Endpoint  string `toml:"s3_endpoint"`
	S3Region    string `toml:"s3_region"`
	S3Bucket    string `toml:"s3_bucket"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
	S3UseSSL    bool   `toml:"s3_use_ssl"`
}

// Config defines runtime configuration for carevault.
type Config struct {
	APIURL         string           `toml:"api_url"`
	DBPath         string           `toml:"db_path"`
	LogLevel       string           `toml:"log_level"`
	AdminTokenHash string           `toml:"admin_token_hash"`
	Files          FilesConfig      `toml:"files"`
	ChunkStore     ChunkStoreConfig `toml:"chunkstore"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBPath:   "",
		LogLevel: DefaultLogLevel,
		Files: FilesConfig{
			InlineMaxBytes:       DefaultFileInlineMaxBytes,
			Base64InlineMaxBytes: DefaultFileBase64InlineMaxBytes,
			ChunkSize:            DefaultFileChunkSize,
			MaxUploadBytes:       DefaultFileMaxUploadBytes,
			MultipartMaxMemory:   DefaultFileMultipartMemory,
			AllowedContentTypes:  nil,
		},
		ChunkStore: ChunkStoreConfig{
			Backend: DefaultChunkStoreBackend,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, ".carevault.toml"), true
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"log_level",
	"admin_token_hash",
	"files.inline_max_bytes",
	"files.base64_inline_max_bytes",
	"files.chunk_size",
	"files.max_upload_bytes",
	"files.multipart_max_memory",
	"files.allowed_content_types",
	"chunkstore.backend",
	"chunkstore.path",
	"chunkstore.s3_endpoint",
	"chunkstore.s3_region",
	"chunkstore.s3_bucket",
	"chunkstore.s3_access_key",
	"chunkstore.s3_secret_key",
	"chunkstore.s3_use_ssl",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "admin_token_hash":
		return c.AdminTokenHash, nil
	case "files.inline_max_bytes":
		return strconv.FormatInt(c.Files.InlineMaxBytes, 10), nil
	case "files.base64_inline_max_bytes":
		return strconv.FormatInt(c.Files.Base64InlineMaxBytes, 10), nil
	case "files.chunk_size":
		return strconv.Itoa(c.Files.ChunkSize), nil
	case "files.max_upload_bytes":
		return strconv.FormatInt(c.Files.MaxUploadBytes, 10), nil
	case "files.multipart_max_memory":
		return strconv.FormatInt(c.Files.MultipartMaxMemory, 10), nil
	case "files.allowed_content_types":
		return strings.Join(c.Files.AllowedContentTypes, ","), nil
	case "chunkstore.backend":
		return c.ChunkStore.Backend, nil
	case "chunkstore.path":
		return c.ChunkStore.Path, nil
	case "chunkstore.s3_endpoint":
		return c.ChunkStore.S3Endpoint, nil
	case "chunkstore.s3_region":
		return c.ChunkStore.S3Region, nil
	case "chunkstore.s3_bucket":
		return c.ChunkStore.S3Bucket, nil
	case "chunkstore.s3_access_key":
		return c.ChunkStore.S3AccessKey, nil
	case "chunkstore.s3_secret_key":
		return c.ChunkStore.S3SecretKey, nil
	case "chunkstore.s3_use_ssl":
		return strconv.FormatBool(c.ChunkStore.S3UseSSL), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".carevault.toml"), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from the global file and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		if err := loadFile(filepath.Join(home, ".carevault.toml"), &cfg); err != nil {
			return nil, err
		}
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}

	if apiURL := os.Getenv("CAREVAULT_API_URL"); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := os.Getenv("CAREVAULT_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if raw := strings.TrimSpace(os.Getenv(fileAllowedContentTypesEnvKey)); raw != "" {
		cfg.Files.AllowedContentTypes = splitCSV(raw)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	cfg.normalizeFileDefaults()

	return &cfg, nil
}

// ChunkStorePath returns the configured chunk store location, derived from
// the record database path when not set explicitly.
func (c *Config) ChunkStorePath() string {
	if c.ChunkStore.Path != "" {
		return c.ChunkStore.Path
	}
	switch c.ChunkStore.Backend {
	case "local":
		return c.DBPath + ".chunks"
	default:
		return c.DBPath + ".chunks.db"
	}
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "files.inline_max_bytes", "files.base64_inline_max_bytes",
		"files.max_upload_bytes", "files.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "files.chunk_size":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "files.allowed_content_types":
		return splitCSV(value), nil
	case "chunkstore.backend":
		switch value {
		case "sqlite", "local", "s3":
			return value, nil
		default:
			return nil, fmt.Errorf("%s must be one of sqlite, local, s3", key)
		}
	case "chunkstore.s3_use_ssl":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalizeFileDefaults() {
	if c.Files.InlineMaxBytes <= 0 {
		c.Files.InlineMaxBytes = DefaultFileInlineMaxBytes
	}
	if c.Files.Base64InlineMaxBytes <= 0 {
		c.Files.Base64InlineMaxBytes = DefaultFileBase64InlineMaxBytes
	}
	if c.Files.ChunkSize <= 0 {
		c.Files.ChunkSize = DefaultFileChunkSize
	}
	if c.Files.MaxUploadBytes <= 0 {
		c.Files.MaxUploadBytes = DefaultFileMaxUploadBytes
	}
	if c.Files.MultipartMaxMemory <= 0 {
		c.Files.MultipartMaxMemory = DefaultFileMultipartMemory
	}
	if c.ChunkStore.Backend == "" {
		c.ChunkStore.Backend = DefaultChunkStoreBackend
	}
	c.Files.AllowedContentTypes = normalizeConfiguredContentTypes(c.Files.AllowedContentTypes)
}

func normalizeConfiguredContentTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, _, err := mime.ParseMediaType(raw)
		if err != nil {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(parsed))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
