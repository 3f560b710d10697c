package config

import (
	"strings"
	"testing"
	"time"
)

// envMap returns a Getenv backed by a map.
func envMap(vars map[string]string) Getenv {
	return func(key string) string { return vars[key] }
}

func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080, ShutdownTimeout: time.Second, RequestTimeout: time.Minute},
		Upload:  UploadConfig{MaxFileSize: 1, Timeout: time.Minute},
		Rate:    RateLimitConfig{Enabled: true, RequestsPerMinute: 100, UploadLimit: 10},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Export:  ExportConfig{FileStem: "revendedores_filtrados", SheetName: "Revendedores"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(nil))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Upload.MaxFileSize != 20971520 {
		t.Errorf("Upload.MaxFileSize = %d, want %d", cfg.Upload.MaxFileSize, 20971520)
	}
	if cfg.Upload.MaxWaitTime != 0 {
		t.Errorf("Upload.MaxWaitTime = %v, want 0", cfg.Upload.MaxWaitTime)
	}
	if cfg.Upload.Timeout != 2*time.Minute {
		t.Errorf("Upload.Timeout = %v, want %v", cfg.Upload.Timeout, 2*time.Minute)
	}
	if cfg.Upload.HistorySize != 50 {
		t.Errorf("Upload.HistorySize = %d, want %d", cfg.Upload.HistorySize, 50)
	}
	if cfg.Export.FileStem != "revendedores_filtrados" {
		t.Errorf("Export.FileStem = %q, want %q", cfg.Export.FileStem, "revendedores_filtrados")
	}
	if cfg.Export.SheetName != "Revendedores" {
		t.Errorf("Export.SheetName = %q, want %q", cfg.Export.SheetName, "Revendedores")
	}
	if cfg.Security.RequireAPIKey {
		t.Error("Security.RequireAPIKey should default to false")
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"SERVER_PORT":      "9090",
		"LOG_LEVEL":        "debug",
		"EXPORT_FILE_STEM": "ativos",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Export.FileStem != "ativos" {
		t.Errorf("Export.FileStem = %q, want %q", cfg.Export.FileStem, "ativos")
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{"PORT": "3000"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 3000)
	}

	// Primary wins over the alternate.
	cfg, err = LoadFrom(envMap(map[string]string{"PORT": "3000", "SERVER_PORT": "4000"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 4000)
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	_, err := LoadFrom(envMap(map[string]string{"SERVER_PORT": "eighty"}))
	if err == nil {
		t.Fatal("LoadFrom() expected error for non-numeric port")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("error should mention SERVER_PORT: %v", err)
	}
}

func TestLoad_Duration(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"SERVER_READ_TIMEOUT":  "45s",
		"UPLOAD_MAX_WAIT_TIME": "1m30s",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want %v", cfg.Server.ReadTimeout, 45*time.Second)
	}
	if cfg.Upload.MaxWaitTime != 90*time.Second {
		t.Errorf("Upload.MaxWaitTime = %v, want %v", cfg.Upload.MaxWaitTime, 90*time.Second)
	}
}

func TestLoad_CommaSeparatedSlice(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"TRUSTED_PROXIES": "10.0.0.0/8, 172.16.0.0/12 , 192.168.0.0/16",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	expected := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
	if len(cfg.Security.TrustedProxies) != len(expected) {
		t.Fatalf("TrustedProxies length = %d, want %d", len(cfg.Security.TrustedProxies), len(expected))
	}
	for i, v := range expected {
		if cfg.Security.TrustedProxies[i] != v {
			t.Errorf("TrustedProxies[%d] = %q, want %q", i, cfg.Security.TrustedProxies[i], v)
		}
	}
}

func TestLoad_APIKeyWithoutKeys(t *testing.T) {
	_, err := LoadFrom(envMap(map[string]string{"REQUIRE_API_KEY": "true"}))
	if err == nil {
		t.Fatal("LoadFrom() expected error when REQUIRE_API_KEY has no keys")
	}
	if !strings.Contains(err.Error(), "API_KEYS") {
		t.Errorf("error should mention API_KEYS: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"invalid port", func(c *Config) { c.Server.Port = 99999 }, "SERVER_PORT"},
		{"negative wait", func(c *Config) { c.Upload.MaxWaitTime = -time.Second }, "UPLOAD_MAX_WAIT_TIME"},
		{"zero timeout", func(c *Config) { c.Upload.Timeout = 0 }, "UPLOAD_TIMEOUT"},
		{"negative history size", func(c *Config) { c.Upload.HistorySize = -1 }, "UPLOAD_HISTORY_SIZE"},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"stem with separator", func(c *Config) { c.Export.FileStem = "../out" }, "EXPORT_FILE_STEM"},
		{"sheet name too long", func(c *Config) { c.Export.SheetName = strings.Repeat("x", 32) }, "EXPORT_SHEET_NAME"},
		{"rate limit without budget", func(c *Config) { c.Rate.RequestsPerMinute = 0 }, "RATE_LIMIT_REQUESTS_PER_MINUTE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %s: %v", tt.wantErr, err)
			}
		})
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
		if got := cfg.Addr(); got != tt.want {
			t.Errorf("Addr() with host=%q, port=%d = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestConfigString_MasksAPIKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Security.APIKeys = []string{"super-secret-key"}

	str := cfg.String()
	if strings.Contains(str, "super-secret-key") {
		t.Error("String() should mask API keys")
	}
	if !strings.Contains(str, "MASKED") {
		t.Error("String() should contain MASKED placeholder")
	}
}
