package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

// SlogLevel maps the configured log level onto slog. Unknown values fall
// back to info.
func (t TelemetryConfig) SlogLevel() slog.Level {
	switch strings.ToLower(t.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
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
	Permission  PermissionConfig `yaml:"permission"`
	Audio       AudioConfig      `yaml:"audio"`
	Model       ModelConfig      `yaml:"model"`
	Engine      EngineConfig     `yaml:"engine"`
	History     HistoryConfig    `yaml:"history"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type PermissionConfig struct {
	Mode         string `yaml:"mode"` // grant, deny, exec
	Command      string `yaml:"command"`
	SettingsHint string `yaml:"settings_hint"`
}

type AudioConfig struct {
	StorageDir       string `yaml:"storage_dir"`
	SampleRate       int    `yaml:"sample_rate"`
	Channels         int    `yaml:"channels"`
	MinArtifactBytes int64  `yaml:"min_artifact_bytes"`
	TickIntervalMS   int    `yaml:"tick_interval_ms"`
	Source           string `yaml:"source"` // mock, exec
	SourceCommand    string `yaml:"source_command"`
}

type ModelConfig struct {
	Name           string `yaml:"name"`
	CacheDir       string `yaml:"cache_dir"`
	AssetDir       string `yaml:"asset_dir"`
	DownloadBase   string `yaml:"download_base"`
	FetchTimeoutMS int    `yaml:"fetch_timeout_ms"`
}

type EngineConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	Language  string `yaml:"language"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "dicta-runtime",
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
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Permission: PermissionConfig{
			Mode:         "grant",
			SettingsHint: "Settings > Privacy > Microphone",
		},
		Audio: AudioConfig{
			StorageDir:       "./data/recordings",
			SampleRate:       16000,
			Channels:         1,
			MinArtifactBytes: 1024,
			TickIntervalMS:   100,
			Source:           "mock",
		},
		Model: ModelConfig{
			Name:           "tiny",
			CacheDir:       "./data/models",
			AssetDir:       "./assets/models",
			DownloadBase:   "https://huggingface.co/ggerganov/whisper.cpp/resolve/main",
			FetchTimeoutMS: 600000,
		},
		Engine: EngineConfig{
			Mode:      "mock",
			Language:  "auto",
			TimeoutMS: 45000,
		},
		History: HistoryConfig{
			Path:          "./data/dicta-history.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
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
	overrideString(&cfg.RuntimeName, "DICTA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "DICTA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "DICTA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "DICTA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "DICTA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "DICTA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "DICTA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "DICTA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "DICTA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "DICTA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "DICTA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "DICTA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "DICTA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "DICTA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "DICTA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "DICTA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Permission.Mode, "DICTA_PERMISSION_MODE")
	overrideString(&cfg.Permission.Command, "DICTA_PERMISSION_COMMAND")
	overrideString(&cfg.Permission.SettingsHint, "DICTA_PERMISSION_SETTINGS_HINT")
	overrideString(&cfg.Audio.StorageDir, "DICTA_AUDIO_STORAGE_DIR")
	overrideInt(&cfg.Audio.SampleRate, "DICTA_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "DICTA_AUDIO_CHANNELS")
	overrideInt64(&cfg.Audio.MinArtifactBytes, "DICTA_AUDIO_MIN_ARTIFACT_BYTES")
	overrideInt(&cfg.Audio.TickIntervalMS, "DICTA_AUDIO_TICK_INTERVAL_MS")
	overrideString(&cfg.Audio.Source, "DICTA_AUDIO_SOURCE")
	overrideString(&cfg.Audio.SourceCommand, "DICTA_AUDIO_SOURCE_COMMAND")
	overrideString(&cfg.Model.Name, "DICTA_MODEL_NAME")
	overrideString(&cfg.Model.CacheDir, "DICTA_MODEL_CACHE_DIR")
	overrideString(&cfg.Model.AssetDir, "DICTA_MODEL_ASSET_DIR")
	overrideString(&cfg.Model.DownloadBase, "DICTA_MODEL_DOWNLOAD_BASE")
	overrideInt(&cfg.Model.FetchTimeoutMS, "DICTA_MODEL_FETCH_TIMEOUT_MS")
	overrideString(&cfg.Engine.Mode, "DICTA_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "DICTA_ENGINE_COMMAND")
	overrideString(&cfg.Engine.Language, "DICTA_ENGINE_LANGUAGE")
	overrideInt(&cfg.Engine.TimeoutMS, "DICTA_ENGINE_TIMEOUT_MS")
	overrideString(&cfg.History.Path, "DICTA_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "DICTA_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "DICTA_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxSessions, "DICTA_HISTORY_MAX_SESSIONS")
	overrideBool(&cfg.History.VacuumOnStart, "DICTA_HISTORY_VACUUM_ON_START")
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

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
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
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Permission.Mode {
	case "grant", "deny", "exec":
	default:
		return errors.New("permission.mode must be one of grant|deny|exec")
	}
	if cfg.Permission.Mode == "exec" && cfg.Permission.Command == "" {
		return errors.New("permission.command must be set when mode=exec")
	}
	if cfg.Audio.StorageDir == "" {
		return errors.New("audio.storage_dir must not be empty")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if cfg.Audio.MinArtifactBytes < 0 {
		return errors.New("audio.min_artifact_bytes must be >= 0")
	}
	if cfg.Audio.TickIntervalMS <= 0 {
		return errors.New("audio.tick_interval_ms must be positive")
	}
	switch cfg.Audio.Source {
	case "mock", "exec":
	default:
		return errors.New("audio.source must be one of mock|exec")
	}
	if cfg.Audio.Source == "exec" && cfg.Audio.SourceCommand == "" {
		return errors.New("audio.source_command must be set when source=exec")
	}
	if cfg.Model.Name == "" {
		return errors.New("model.name must not be empty")
	}
	if cfg.Model.CacheDir == "" {
		return errors.New("model.cache_dir must not be empty")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.History.Path == "" {
		return errors.New("history.path must not be empty")
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("history.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	return nil
}
