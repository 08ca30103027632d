package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.APIURL != "http://127.0.0.1:7440" {
		t.Fatalf("expected default API URL, got %q", cfg.APIURL)
	}
	if cfg.DBPath != "" {
		t.Fatalf("expected empty db path, got %q", cfg.DBPath)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Files.InlineMaxBytes != DefaultFileInlineMaxBytes {
		t.Fatalf("expected inline max default %d, got %d", DefaultFileInlineMaxBytes, cfg.Files.InlineMaxBytes)
	}
	if cfg.Files.Base64InlineMaxBytes != DefaultFileBase64InlineMaxBytes {
		t.Fatalf("expected base64 inline max default %d, got %d", DefaultFileBase64InlineMaxBytes, cfg.Files.Base64InlineMaxBytes)
	}
	if cfg.Files.ChunkSize != DefaultFileChunkSize {
		t.Fatalf("expected chunk size default %d, got %d", DefaultFileChunkSize, cfg.Files.ChunkSize)
	}
	if cfg.Files.MaxUploadBytes != DefaultFileMaxUploadBytes {
		t.Fatalf("expected max upload default %d, got %d", DefaultFileMaxUploadBytes, cfg.Files.MaxUploadBytes)
	}
	if cfg.ChunkStore.Backend != "sqlite" {
		t.Fatalf("expected sqlite chunk store default, got %q", cfg.ChunkStore.Backend)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".carevault.toml")
	if err := os.WriteFile(path, []byte(`api_url = "http://localhost:9999"
log_level = "warn"

[files]
chunk_size = 1024
allowed_content_types = ["application/pdf"]

[chunkstore]
backend = "local"
path = "/var/lib/carevault/chunks"
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://localhost:9999" {
		t.Fatalf("expected api_url 'http://localhost:9999', got %q", cfg.APIURL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log_level 'warn', got %q", cfg.LogLevel)
	}
	if cfg.Files.ChunkSize != 1024 {
		t.Fatalf("expected chunk_size 1024, got %d", cfg.Files.ChunkSize)
	}
	if cfg.ChunkStore.Backend != "local" || cfg.ChunkStore.Path != "/var/lib/carevault/chunks" {
		t.Fatalf("unexpected chunkstore config: %+v", cfg.ChunkStore)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/.carevault.toml", &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatal("defaults should be preserved")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range []string{
		"api_url",
		"db_path",
		"log_level",
		"admin_token_hash",
		"files.inline_max_bytes",
		"files.base64_inline_max_bytes",
		"files.chunk_size",
		"files.max_upload_bytes",
		"files.allowed_content_types",
		"chunkstore.backend",
		"chunkstore.path",
		"chunkstore.s3_bucket",
	} {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	if IsAllowedKey("invalid") {
		t.Fatal("expected 'invalid' to not be allowed")
	}
}

func TestGetKey(t *testing.T) {
	cfg := Config{
		APIURL:   "http://test:1234",
		DBPath:   "/tmp/test.db",
		LogLevel: "warn",
		Files: FilesConfig{
			InlineMaxBytes:      123,
			ChunkSize:           456,
			AllowedContentTypes: []string{"application/pdf", "image/png"},
		},
		ChunkStore: ChunkStoreConfig{Backend: "s3", S3Bucket: "records"},
	}

	cases := []struct {
		key  string
		want string
	}{
		{"api_url", "http://test:1234"},
		{"db_path", "/tmp/test.db"},
		{"log_level", "warn"},
		{"files.inline_max_bytes", "123"},
		{"files.chunk_size", "456"},
		{"files.allowed_content_types", "application/pdf,image/png"},
		{"chunkstore.backend", "s3"},
		{"chunkstore.s3_bucket", "records"},
	}
	for _, tc := range cases {
		got, err := cfg.Get(tc.key)
		if err != nil {
			t.Fatalf("get %s: %v", tc.key, err)
		}
		if got != tc.want {
			t.Fatalf("get %s = %q, want %q", tc.key, got, tc.want)
		}
	}

	if _, err := cfg.Get("unknown"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSetKeyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".carevault.toml")

	if err := SetKey(path, "api_url", "http://localhost:8008"); err != nil {
		t.Fatalf("set api_url: %v", err)
	}
	if err := SetKey(path, "files.chunk_size", "2048"); err != nil {
		t.Fatalf("set chunk_size: %v", err)
	}
	if err := SetKey(path, "chunkstore.backend", "local"); err != nil {
		t.Fatalf("set backend: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://localhost:8008" {
		t.Fatalf("api_url not persisted: %q", cfg.APIURL)
	}
	if cfg.Files.ChunkSize != 2048 {
		t.Fatalf("chunk_size not persisted: %d", cfg.Files.ChunkSize)
	}
	if cfg.ChunkStore.Backend != "local" {
		t.Fatalf("backend not persisted: %q", cfg.ChunkStore.Backend)
	}
}

func TestSetKeyValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".carevault.toml")

	if err := SetKey(path, "bogus", "1"); err == nil {
		t.Fatal("expected error for unknown key")
	}
	if err := SetKey(path, "files.chunk_size", "-1"); err == nil {
		t.Fatal("expected error for negative chunk size")
	}
	if err := SetKey(path, "chunkstore.backend", "ftp"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNormalizeConfiguredContentTypes(t *testing.T) {
	got := normalizeConfiguredContentTypes([]string{
		"  Application/PDF ",
		"image/png; charset=binary",
		"application/pdf",
		"",
		"not a type",
	})
	want := []string{"application/pdf", "image/png"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
