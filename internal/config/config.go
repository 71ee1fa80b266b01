// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"siggen-service/internal/protocol"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Device   DeviceConfig   `mapstructure:"device"`
	Protocol ProtocolConfig `mapstructure:"protocol"`
	Events   EventsConfig   `mapstructure:"events"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DeviceConfig represents serial link and handshake configuration
type DeviceConfig struct {
	BaudRate                int           `mapstructure:"baud_rate"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	DiscoveryBaudRate       int           `mapstructure:"discovery_baud_rate"`
	DiscoveryReadTimeout    time.Duration `mapstructure:"discovery_read_timeout"`
	Turnaround              time.Duration `mapstructure:"turnaround"`
	IdentityQuery           string        `mapstructure:"identity_query"`
	FamilyPrefixes          []string      `mapstructure:"family_prefixes"`
	ResponseSize            int           `mapstructure:"response_size"`
	MaxConcurrentOperations int           `mapstructure:"max_concurrent_operations"`
	OperationTimeout        time.Duration `mapstructure:"operation_timeout"`
	ReconnectOnStart        bool          `mapstructure:"reconnect_on_start"`
}

// ProtocolConfig selects the firmware profile and command scripts
type ProtocolConfig struct {
	Profile string `mapstructure:"profile"`
	// Terminator is "profile", "none", "lf", "cr", "crlf" or a literal string
	Terminator string                    `mapstructure:"terminator"`
	StepSettle time.Duration             `mapstructure:"step_settle"`
	Sequences  map[string]SequenceConfig `mapstructure:"sequences"`
}

// SequenceConfig overrides a built-in command script
type SequenceConfig struct {
	Version  int           `mapstructure:"version"`
	Settle   time.Duration `mapstructure:"settle"`
	Commands []string      `mapstructure:"commands"`
}

// EventsConfig represents notification delivery configuration
type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from an optional YAML file and SIGGEN_* environment
// variables. With an empty path the default locations are searched and a
// missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/siggen-service")
	}

	// Environment variable support
	v.SetEnvPrefix("SIGGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Device defaults
	v.SetDefault("device.baud_rate", 115200)
	v.SetDefault("device.read_timeout", "50ms")
	v.SetDefault("device.discovery_baud_rate", 115200)
	v.SetDefault("device.discovery_read_timeout", "30ms")
	v.SetDefault("device.turnaround", "30ms")
	v.SetDefault("device.identity_query", "UMO\r\n")
	// empty means the profile's identity prefixes
	v.SetDefault("device.family_prefixes", []string{})
	v.SetDefault("device.response_size", 100)
	v.SetDefault("device.max_concurrent_operations", 8)
	v.SetDefault("device.operation_timeout", "45s")
	v.SetDefault("device.reconnect_on_start", true)

	// Protocol defaults
	v.SetDefault("protocol.profile", protocol.DefaultProfileName)
	v.SetDefault("protocol.terminator", "profile")
	v.SetDefault("protocol.step_settle", "300ms")

	// Events defaults
	v.SetDefault("events.buffer_size", 256)

	// App defaults
	v.SetDefault("app.name", "siggen-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

var (
	validEnvironments = []string{"development", "staging", "production", "test"}
	validLogLevels    = []string{"debug", "info", "warn", "error", "fatal"}
)

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	if config.Device.BaudRate <= 0 {
		return fmt.Errorf("device.baud_rate must be positive")
	}
	if config.Device.DiscoveryBaudRate <= 0 {
		return fmt.Errorf("device.discovery_baud_rate must be positive")
	}
	if config.Device.ReadTimeout <= 0 || config.Device.DiscoveryReadTimeout <= 0 {
		return fmt.Errorf("device read timeouts must be positive")
	}
	if config.Device.MaxConcurrentOperations <= 0 {
		return fmt.Errorf("device.max_concurrent_operations must be positive")
	}
	for _, prefix := range config.Device.FamilyPrefixes {
		if prefix == "" {
			return fmt.Errorf("device.family_prefixes must not contain empty prefixes")
		}
	}

	if _, err := protocol.LookupProfile(config.Protocol.Profile); err != nil {
		return fmt.Errorf("protocol.profile: %w", err)
	}
	for name, seq := range config.Protocol.Sequences {
		if len(seq.Commands) == 0 {
			return fmt.Errorf("protocol.sequences.%s has no commands", name)
		}
	}

	if !slices.Contains(validEnvironments, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvironments)
	}
	if !slices.Contains(validLogLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLogLevels)
	}

	return nil
}

// ResolveTerminator returns the line terminator to frame commands with,
// falling back to profileDefault when the setting is "profile" or empty.
func (p *ProtocolConfig) ResolveTerminator(profileDefault string) string {
	switch strings.ToLower(p.Terminator) {
	case "", "profile":
		return profileDefault
	case "none":
		return ""
	case "lf":
		return "\n"
	case "cr":
		return "\r"
	case "crlf":
		return "\r\n"
	default:
		return p.Terminator
	}
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
