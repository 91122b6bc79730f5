package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Gateway     GatewayConfig    `yaml:"gateway"`
	Board       BoardConfig      `yaml:"board"`
	Script      ScriptConfig     `yaml:"script"`
	Image       ImageConfig      `yaml:"image"`
	Speech      SpeechConfig     `yaml:"speech"`
	Audio       AudioConfig      `yaml:"audio"`
	Players     PlayersConfig    `yaml:"players"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Monitor     MonitorConfig    `yaml:"monitor"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type GatewayConfig struct {
	Bind        string `yaml:"bind"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
	ThumbWidth  int    `yaml:"thumb_width"`
}

type BoardConfig struct {
	MaxScenes         int `yaml:"max_scenes"`
	DefaultSceneCount int `yaml:"default_scene_count"`
}

type ScriptConfig struct {
	Mode             string  `yaml:"mode"` // mock, openai, exec
	Endpoint         string  `yaml:"endpoint"`
	APIKey           string  `yaml:"api_key"`
	Model            string  `yaml:"model"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float64 `yaml:"temperature"`
	Command          string  `yaml:"command"`
	RequestTimeoutMS int     `yaml:"request_timeout_ms"`
}

type ImageConfig struct {
	Mode             string `yaml:"mode"` // mock, openai, exec
	Endpoint         string `yaml:"endpoint"`
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	Size             string `yaml:"size"`
	Command          string `yaml:"command"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
}

type SpeechConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Mode             string `yaml:"mode"` // mock, exec
	Command          string `yaml:"command"`
	Voice            string `yaml:"voice"`
	SampleRate       int    `yaml:"sample_rate"`
	WordsPerMinute   int    `yaml:"words_per_minute"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
}

type AudioConfig struct {
	FFprobePath string `yaml:"ffprobe_path"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

type PlayersConfig struct {
	HeartbeatInterval int `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int `yaml:"heartbeat_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type MonitorConfig struct {
	Enabled    bool `yaml:"enabled"`
	IntervalMS int  `yaml:"interval_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "reel-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/reel-nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Gateway: GatewayConfig{
			Bind:        ":8090",
			MaxUploadMB: 32,
			ThumbWidth:  240,
		},
		Board: BoardConfig{
			MaxScenes:         24,
			DefaultSceneCount: 5,
		},
		Script: ScriptConfig{
			Mode:             "mock",
			Endpoint:         "http://localhost:11434",
			Model:            "gpt-4o-mini",
			MaxTokens:        2048,
			Temperature:      0.7,
			RequestTimeoutMS: 60000,
		},
		Image: ImageConfig{
			Mode:             "mock",
			Endpoint:         "https://api.openai.com",
			Model:            "gpt-image-1",
			Size:             "1024x1024",
			RequestTimeoutMS: 90000,
		},
		Speech: SpeechConfig{
			Enabled:          true,
			Mode:             "mock",
			Voice:            "en-US",
			SampleRate:       22050,
			WordsPerMinute:   160,
			RequestTimeoutMS: 45000,
		},
		Audio: AudioConfig{
			FFprobePath: "ffprobe",
			MaxUploadMB: 64,
		},
		Players: PlayersConfig{
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/reel-events.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxRuns:       10000,
		},
		Monitor: MonitorConfig{
			Enabled:    true,
			IntervalMS: 10000,
		},
	}
}

func Load(path string) (Config, error) {
	// A .env next to the binary feeds the REEL_* overrides below.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "REEL_RUNTIME_NAME")
	overrideString(&cfg.Environment, "REEL_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "REEL_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "REEL_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "REEL_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "REEL_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "REEL_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "REEL_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "REEL_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "REEL_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "REEL_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "REEL_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "REEL_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "REEL_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "REEL_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "REEL_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "REEL_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Gateway.Bind, "REEL_GATEWAY_BIND")
	overrideInt(&cfg.Gateway.MaxUploadMB, "REEL_GATEWAY_MAX_UPLOAD_MB")
	overrideInt(&cfg.Gateway.ThumbWidth, "REEL_GATEWAY_THUMB_WIDTH")
	overrideInt(&cfg.Board.MaxScenes, "REEL_BOARD_MAX_SCENES")
	overrideInt(&cfg.Board.DefaultSceneCount, "REEL_BOARD_DEFAULT_SCENE_COUNT")
	overrideString(&cfg.Script.Mode, "REEL_SCRIPT_MODE")
	overrideString(&cfg.Script.Endpoint, "REEL_SCRIPT_ENDPOINT")
	overrideString(&cfg.Script.APIKey, "REEL_SCRIPT_API_KEY")
	overrideString(&cfg.Script.Model, "REEL_SCRIPT_MODEL")
	overrideInt(&cfg.Script.MaxTokens, "REEL_SCRIPT_MAX_TOKENS")
	overrideFloat(&cfg.Script.Temperature, "REEL_SCRIPT_TEMPERATURE")
	overrideString(&cfg.Script.Command, "REEL_SCRIPT_COMMAND")
	overrideInt(&cfg.Script.RequestTimeoutMS, "REEL_SCRIPT_REQUEST_TIMEOUT_MS")
	overrideString(&cfg.Image.Mode, "REEL_IMAGE_MODE")
	overrideString(&cfg.Image.Endpoint, "REEL_IMAGE_ENDPOINT")
	overrideString(&cfg.Image.APIKey, "REEL_IMAGE_API_KEY")
	overrideString(&cfg.Image.Model, "REEL_IMAGE_MODEL")
	overrideString(&cfg.Image.Size, "REEL_IMAGE_SIZE")
	overrideString(&cfg.Image.Command, "REEL_IMAGE_COMMAND")
	overrideInt(&cfg.Image.RequestTimeoutMS, "REEL_IMAGE_REQUEST_TIMEOUT_MS")
	overrideBool(&cfg.Speech.Enabled, "REEL_SPEECH_ENABLED")
	overrideString(&cfg.Speech.Mode, "REEL_SPEECH_MODE")
	overrideString(&cfg.Speech.Command, "REEL_SPEECH_COMMAND")
	overrideString(&cfg.Speech.Voice, "REEL_SPEECH_VOICE")
	overrideInt(&cfg.Speech.SampleRate, "REEL_SPEECH_SAMPLE_RATE")
	overrideInt(&cfg.Speech.WordsPerMinute, "REEL_SPEECH_WORDS_PER_MINUTE")
	overrideInt(&cfg.Speech.RequestTimeoutMS, "REEL_SPEECH_REQUEST_TIMEOUT_MS")
	overrideString(&cfg.Audio.FFprobePath, "REEL_AUDIO_FFPROBE_PATH")
	overrideInt(&cfg.Audio.MaxUploadMB, "REEL_AUDIO_MAX_UPLOAD_MB")
	overrideInt(&cfg.Players.HeartbeatInterval, "REEL_PLAYERS_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Players.HeartbeatTimeout, "REEL_PLAYERS_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "REEL_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "REEL_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "REEL_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRuns, "REEL_EVENT_STORE_MAX_RUNS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "REEL_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Monitor.Enabled, "REEL_MONITOR_ENABLED")
	overrideInt(&cfg.Monitor.IntervalMS, "REEL_MONITOR_INTERVAL_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
		if cfg.Bus.StoreDir == "" {
			return errors.New("bus.store_dir must not be empty when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Gateway.Bind == "" {
		return errors.New("gateway.bind must not be empty")
	}
	if cfg.Gateway.MaxUploadMB <= 0 {
		return errors.New("gateway.max_upload_mb must be positive")
	}
	if cfg.Gateway.ThumbWidth <= 0 {
		return errors.New("gateway.thumb_width must be positive")
	}
	if cfg.Board.MaxScenes < 1 {
		return errors.New("board.max_scenes must be >= 1")
	}
	if cfg.Board.DefaultSceneCount < 1 || cfg.Board.DefaultSceneCount > cfg.Board.MaxScenes {
		return errors.New("board.default_scene_count must be between 1 and board.max_scenes")
	}
	switch cfg.Script.Mode {
	case "mock", "openai", "exec":
	default:
		return errors.New("script.mode must be one of mock|openai|exec")
	}
	if cfg.Script.Mode == "openai" && cfg.Script.Endpoint == "" {
		return errors.New("script.endpoint must be set when mode=openai")
	}
	if cfg.Script.Mode == "exec" && cfg.Script.Command == "" {
		return errors.New("script.command must be set when mode=exec")
	}
	if cfg.Script.MaxTokens < 0 {
		return errors.New("script.max_tokens must be >= 0")
	}
	if cfg.Script.RequestTimeoutMS <= 0 {
		return errors.New("script.request_timeout_ms must be positive")
	}
	switch cfg.Image.Mode {
	case "mock", "openai", "exec":
	default:
		return errors.New("image.mode must be one of mock|openai|exec")
	}
	if cfg.Image.Mode == "openai" && cfg.Image.Endpoint == "" {
		return errors.New("image.endpoint must be set when mode=openai")
	}
	if cfg.Image.Mode == "exec" && cfg.Image.Command == "" {
		return errors.New("image.command must be set when mode=exec")
	}
	if cfg.Image.RequestTimeoutMS <= 0 {
		return errors.New("image.request_timeout_ms must be positive")
	}
	if cfg.Speech.Enabled {
		switch cfg.Speech.Mode {
		case "mock", "exec":
		default:
			return errors.New("speech.mode must be one of mock|exec")
		}
		if cfg.Speech.Mode == "exec" && cfg.Speech.Command == "" {
			return errors.New("speech.command must be set when mode=exec")
		}
		if cfg.Speech.SampleRate <= 0 {
			return errors.New("speech.sample_rate must be positive")
		}
		if cfg.Speech.WordsPerMinute <= 0 {
			return errors.New("speech.words_per_minute must be positive")
		}
	}
	if cfg.Audio.MaxUploadMB <= 0 {
		return errors.New("audio.max_upload_mb must be positive")
	}
	if cfg.Players.HeartbeatInterval <= 0 {
		return errors.New("players.heartbeat_interval_ms must be positive")
	}
	if cfg.Players.HeartbeatTimeout <= cfg.Players.HeartbeatInterval {
		return errors.New("players.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Monitor.Enabled && cfg.Monitor.IntervalMS <= 0 {
		return errors.New("monitor.interval_ms must be positive when monitor is enabled")
	}
	return nil
}
