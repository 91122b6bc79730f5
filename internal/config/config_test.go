package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Script.Mode != "mock" || cfg.Image.Mode != "mock" {
		t.Fatalf("expected mock engines by default, got script=%s image=%s", cfg.Script.Mode, cfg.Image.Mode)
	}
	if cfg.EventStore.RetentionMode != "ephemeral" {
		t.Fatalf("expected ephemeral retention by default, got %s", cfg.EventStore.RetentionMode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REEL_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("REEL_BUS_USERNAME", "alice")
	t.Setenv("REEL_BUS_PASSWORD", "secret")
	t.Setenv("REEL_BUS_TLS_INSECURE", "true")
	t.Setenv("REEL_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("REEL_BUS_STORE_DIR", "/var/lib/reel/nats")
	t.Setenv("REEL_GATEWAY_BIND", ":7000")
	t.Setenv("REEL_BOARD_MAX_SCENES", "12")
	t.Setenv("REEL_BOARD_DEFAULT_SCENE_COUNT", "4")
	t.Setenv("REEL_SCRIPT_MODE", "openai")
	t.Setenv("REEL_SCRIPT_ENDPOINT", "http://llm.local:8000")
	t.Setenv("REEL_SCRIPT_API_KEY", "sk-test")
	t.Setenv("REEL_SCRIPT_TEMPERATURE", "0.2")
	t.Setenv("REEL_IMAGE_MODE", "exec")
	t.Setenv("REEL_IMAGE_COMMAND", "render-image --jpeg")
	t.Setenv("REEL_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("REEL_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("REEL_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("REEL_EVENT_STORE_MAX_RUNS", "123")
	t.Setenv("REEL_EVENT_STORE_VACUUM_ON_START", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Bus.StoreDir != "/var/lib/reel/nats" {
		t.Fatalf("expected store dir override, got %s", cfg.Bus.StoreDir)
	}
	if cfg.Gateway.Bind != ":7000" {
		t.Fatalf("expected gateway bind override, got %s", cfg.Gateway.Bind)
	}
	if cfg.Board.MaxScenes != 12 || cfg.Board.DefaultSceneCount != 4 {
		t.Fatalf("expected board overrides, got %+v", cfg.Board)
	}
	if cfg.Script.Mode != "openai" || cfg.Script.Endpoint != "http://llm.local:8000" {
		t.Fatalf("expected script overrides, got %+v", cfg.Script)
	}
	if cfg.Script.APIKey != "sk-test" {
		t.Fatalf("expected script api key override")
	}
	if cfg.Script.Temperature != 0.2 {
		t.Fatalf("expected temperature 0.2, got %f", cfg.Script.Temperature)
	}
	if cfg.Image.Mode != "exec" || cfg.Image.Command != "render-image --jpeg" {
		t.Fatalf("expected image overrides, got %+v", cfg.Image)
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store retention days override")
	}
	if cfg.EventStore.MaxRuns != 123 {
		t.Fatalf("expected event store max runs override")
	}
	if !cfg.EventStore.VacuumOnStart {
		t.Fatalf("expected event store vacuum flag override")
	}
}

func TestValidateRejectsUnknownModes(t *testing.T) {
	t.Setenv("REEL_SCRIPT_MODE", "prophecy")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown script mode")
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("REEL_IMAGE_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec image mode without command")
	}
}

func TestValidateRejectsBadSceneCount(t *testing.T) {
	t.Setenv("REEL_BOARD_DEFAULT_SCENE_COUNT", "99")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for default scene count above max")
	}
}
