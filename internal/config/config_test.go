package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Storage.Root != "./storage" {
		t.Errorf("Storage.Root = %q, want %q", cfg.Storage.Root, "./storage")
	}
	if cfg.Upload.MaxFileSize != 10000000 {
		t.Errorf("Upload.MaxFileSize = %d, want %d", cfg.Upload.MaxFileSize, 10000000)
	}
	if cfg.Upload.MaxRows != 50000 {
		t.Errorf("Upload.MaxRows = %d, want %d", cfg.Upload.MaxRows, 50000)
	}
	if cfg.Rate.RequestsPerMinute != 100 {
		t.Errorf("Rate.RequestsPerMinute = %d, want %d", cfg.Rate.RequestsPerMinute, 100)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	os.Setenv("SERVER_PORT", "9090")
	os.Setenv("UPLOAD_MAX_ROWS", "100")
	os.Setenv("LOG_LEVEL", "debug")
	defer func() {
		os.Unsetenv("SERVER_PORT")
		os.Unsetenv("UPLOAD_MAX_ROWS")
		os.Unsetenv("LOG_LEVEL")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Upload.MaxRows != 100 {
		t.Errorf("Upload.MaxRows = %d, want %d", cfg.Upload.MaxRows, 100)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	// DATABUDDY_STORAGE_ROOT works as a fallback for STORAGE_ROOT
	os.Setenv("DATABUDDY_STORAGE_ROOT", "/var/lib/databuddy")
	defer os.Unsetenv("DATABUDDY_STORAGE_ROOT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Root != "/var/lib/databuddy" {
		t.Errorf("Storage.Root = %q, want %q", cfg.Storage.Root, "/var/lib/databuddy")
	}
}

func TestLoad_Duration(t *testing.T) {
	os.Setenv("SERVER_READ_TIMEOUT", "45s")
	os.Setenv("SERVER_SHUTDOWN_TIMEOUT", "1m30s")
	defer func() {
		os.Unsetenv("SERVER_READ_TIMEOUT")
		os.Unsetenv("SERVER_SHUTDOWN_TIMEOUT")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want %v", cfg.Server.ReadTimeout, 45*time.Second)
	}
	if cfg.Server.ShutdownTimeout != 90*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, 90*time.Second)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Port: 99999, ShutdownTimeout: time.Second},
		Storage: StorageConfig{Root: "./storage"},
		Upload:  UploadConfig{MaxFileSize: 1, MaxRows: 1},
		Rate:    RateLimitConfig{Enabled: true, RequestsPerMinute: 100},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid port")
	}
	if !contains(err.Error(), "SERVER_PORT") {
		t.Errorf("error should mention SERVER_PORT: %v", err)
	}
}

func TestValidate_EmptyStorageRoot(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Storage: StorageConfig{Root: "   "},
		Upload:  UploadConfig{MaxFileSize: 1, MaxRows: 1},
		Rate:    RateLimitConfig{Enabled: true, RequestsPerMinute: 100},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for empty storage root")
	}
	if !contains(err.Error(), "STORAGE_ROOT") {
		t.Errorf("error should mention STORAGE_ROOT: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Storage: StorageConfig{Root: "./storage"},
		Upload:  UploadConfig{MaxFileSize: 1, MaxRows: 1},
		Rate:    RateLimitConfig{Enabled: true, RequestsPerMinute: 100},
		Logging: LoggingConfig{Level: "verbose", Format: "text"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid log level")
	}
	if !contains(err.Error(), "LOG_LEVEL") {
		t.Errorf("error should mention LOG_LEVEL: %v", err)
	}
}

func TestServerAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"", 8080, ":8080"},
		{"0.0.0.0", 8080, "0.0.0.0:8080"},
		{"127.0.0.1", 3000, "127.0.0.1:3000"},
		{"localhost", 443, "localhost:443"},
	}

	for _, tt := range tests {
		cfg := &ServerConfig{Host: tt.host, Port: tt.port}
		got := cfg.Addr()
		if got != tt.want {
			t.Errorf("Addr() with host=%q, port=%d = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
