package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/glyphlang/glyph-dap/internal/logging"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Listen.Port != DefaultPort {
		t.Fatalf("expected default port %d, got %d", DefaultPort, cfg.Listen.Port)
	}
	if cfg.Listen.WebsocketPort != 0 {
		t.Fatalf("expected websocket transport disabled by default, got %d", cfg.Listen.WebsocketPort)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Fatalf("expected info/text logging defaults, got %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen.Port != DefaultPort {
		t.Fatalf("expected default port, got %d", cfg.Listen.Port)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glyph-dap.yaml")
	body := `
listen:
  port: 9000
  websocket_port: 9001
project:
  path: /srv/scripts
  archive: game
persistence:
  sqlite_path: /var/lib/glyph-dap/breakpoints.db
events:
  redis_addr: localhost:6379
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen.Port != 9000 || cfg.Listen.WebsocketPort != 9001 {
		t.Fatalf("unexpected listen config: %+v", cfg.Listen)
	}
	if cfg.Project.Path != "/srv/scripts" || cfg.Project.Archive != "game" {
		t.Fatalf("unexpected project config: %+v", cfg.Project)
	}
	if cfg.Persistence.SQLitePath != "/var/lib/glyph-dap/breakpoints.db" {
		t.Fatalf("unexpected persistence config: %+v", cfg.Persistence)
	}
	if cfg.Events.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected events config: %+v", cfg.Events)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestApplyFlagsOnlyOverridesChangedFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().Int("port", DefaultPort, "")
	cmd.Flags().Int("ws-port", 0, "")
	cmd.Flags().String("project-path", "", "")
	cmd.Flags().String("project-archive", "", "")
	cmd.Flags().String("sqlite-path", "", "")
	cmd.Flags().String("redis-addr", "", "")
	cmd.Flags().String("log-level", "info", "")
	cmd.Flags().String("log-format", "text", "")

	if err := cmd.Flags().Set("port", "7777"); err != nil {
		t.Fatalf("set port: %v", err)
	}

	cfg := Default()
	cfg.Logging.Level = "warn" // simulate a config-file value that should survive
	cfg = ApplyFlags(cfg, cmd)

	if cfg.Listen.Port != 7777 {
		t.Fatalf("expected overridden port 7777, got %d", cfg.Listen.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected unset flag to leave config-file value untouched, got %q", cfg.Logging.Level)
	}
}

func TestLoggingConfigTranslation(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"

	lc := cfg.LoggingConfig()
	if lc.MinLevel != logging.DEBUG {
		t.Fatalf("expected DEBUG level, got %v", lc.MinLevel)
	}
	if lc.Format != logging.JSONFormat {
		t.Fatalf("expected JSON format, got %v", lc.Format)
	}
	if lc.Colorize {
		t.Fatalf("expected colorize disabled for JSON format")
	}
}
