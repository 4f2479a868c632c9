package config

import (
	"errors"
	"fmt"
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

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	ServiceName string           `yaml:"service_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Library     LibraryConfig    `yaml:"library"`
	Sessions    SessionsConfig   `yaml:"sessions"`
	TTS         TTSConfig        `yaml:"tts"`
	SessionLog  SessionLogConfig `yaml:"session_log"`
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

type LibraryConfig struct {
	UploadDir      string `yaml:"upload_dir"`
	AudioDir       string `yaml:"audio_dir"`
	WordsPerPage   int    `yaml:"words_per_page"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type SessionsConfig struct {
	DefaultDialect  string `yaml:"default_dialect"`
	IdleTTLSeconds  int    `yaml:"idle_ttl_s"`
	SweepIntervalMS int    `yaml:"sweep_interval_ms"`
}

type TTSConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type SessionLogConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		ServiceName: "audiobooker",
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
		Library: LibraryConfig{
			UploadDir:      "./data/uploads",
			AudioDir:       "./data/audio",
			WordsPerPage:   50,
			MaxUploadBytes: 16 << 20,
		},
		Sessions: SessionsConfig{
			DefaultDialect:  "north",
			IdleTTLSeconds:  600,
			SweepIntervalMS: 30000,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			SampleRate: 22050,
			Channels:   1,
		},
		SessionLog: SessionLogConfig{
			Path:          "./data/audiobooker-sessions.db",
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
	overrideString(&cfg.ServiceName, "ABK_SERVICE_NAME")
	overrideString(&cfg.Environment, "ABK_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "ABK_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "ABK_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "ABK_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "ABK_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "ABK_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "ABK_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "ABK_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "ABK_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "ABK_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "ABK_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "ABK_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "ABK_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "ABK_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "ABK_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Library.UploadDir, "ABK_LIBRARY_UPLOAD_DIR")
	overrideString(&cfg.Library.AudioDir, "ABK_LIBRARY_AUDIO_DIR")
	overrideInt(&cfg.Library.WordsPerPage, "ABK_LIBRARY_WORDS_PER_PAGE")
	overrideInt64(&cfg.Library.MaxUploadBytes, "ABK_LIBRARY_MAX_UPLOAD_BYTES")
	overrideString(&cfg.Sessions.DefaultDialect, "ABK_SESSIONS_DEFAULT_DIALECT")
	overrideInt(&cfg.Sessions.IdleTTLSeconds, "ABK_SESSIONS_IDLE_TTL_S")
	overrideInt(&cfg.Sessions.SweepIntervalMS, "ABK_SESSIONS_SWEEP_INTERVAL_MS")
	overrideString(&cfg.TTS.Mode, "ABK_TTS_MODE")
	overrideString(&cfg.TTS.Command, "ABK_TTS_COMMAND")
	overrideInt(&cfg.TTS.SampleRate, "ABK_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "ABK_TTS_CHANNELS")
	overrideString(&cfg.SessionLog.Path, "ABK_SESSION_LOG_PATH")
	overrideString(&cfg.SessionLog.RetentionMode, "ABK_SESSION_LOG_RETENTION_MODE")
	overrideInt(&cfg.SessionLog.RetentionDays, "ABK_SESSION_LOG_RETENTION_DAYS")
	overrideInt(&cfg.SessionLog.MaxSessions, "ABK_SESSION_LOG_MAX_SESSIONS")
	overrideBool(&cfg.SessionLog.VacuumOnStart, "ABK_SESSION_LOG_VACUUM_ON_START")
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
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
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
	if cfg.Library.UploadDir == "" {
		return errors.New("library.upload_dir must not be empty")
	}
	if cfg.Library.AudioDir == "" {
		return errors.New("library.audio_dir must not be empty")
	}
	if cfg.Library.WordsPerPage <= 0 {
		return errors.New("library.words_per_page must be positive")
	}
	if cfg.Library.MaxUploadBytes <= 0 {
		return errors.New("library.max_upload_bytes must be positive")
	}
	if cfg.Sessions.DefaultDialect == "" {
		return errors.New("sessions.default_dialect must not be empty")
	}
	if cfg.Sessions.IdleTTLSeconds <= 0 {
		return errors.New("sessions.idle_ttl_s must be positive")
	}
	if cfg.Sessions.SweepIntervalMS <= 0 {
		return errors.New("sessions.sweep_interval_ms must be positive")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.SessionLog.Path == "" {
		return errors.New("session_log.path must not be empty")
	}
	switch cfg.SessionLog.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("session_log.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.SessionLog.RetentionDays < 0 {
		return errors.New("session_log.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	return nil
}
