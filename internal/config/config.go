// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Printer   PrinterConfig   `mapstructure:"printer"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Transport TransportConfig `mapstructure:"transport"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	App       AppConfig       `mapstructure:"app"`
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

// PrinterConfig holds the defaults applied to connect calls that omit them
type PrinterConfig struct {
	Driver          string        `mapstructure:"driver"`
	DefaultSeries   int           `mapstructure:"default_series"`
	DefaultLanguage int           `mapstructure:"default_language"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	Handshake       bool          `mapstructure:"handshake"`
	StatusTimeout   time.Duration `mapstructure:"status_timeout"`
	DrawerPin       int           `mapstructure:"drawer_pin"`
	DrawerPulse     time.Duration `mapstructure:"drawer_pulse"`
}

// DiscoveryConfig represents discovery configuration
type DiscoveryConfig struct {
	ScanTimeout  time.Duration `mapstructure:"scan_timeout"`
	TCP          TCPScanConfig `mapstructure:"tcp"`
	Bluetooth    BTScanConfig  `mapstructure:"bluetooth"`
	USB          USBScanConfig `mapstructure:"usb"`
}

// TCPScanConfig represents network scan configuration
type TCPScanConfig struct {
	Subnets      []string      `mapstructure:"subnets"`
	Ports        []int         `mapstructure:"ports"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	Concurrency  int           `mapstructure:"concurrency"`
	QueryName    bool          `mapstructure:"query_name"`
}

// BTScanConfig represents Bluetooth scan configuration
type BTScanConfig struct {
	ScanWindow   time.Duration `mapstructure:"scan_window"`
	NameFilters  []string      `mapstructure:"name_filters"`
	PairTimeout  time.Duration `mapstructure:"pair_timeout"`
	SerialPrefix []string      `mapstructure:"serial_prefixes"`
}

// USBScanConfig represents USB scan configuration
type USBScanConfig struct {
	VendorIDs []string `mapstructure:"vendor_ids"`
}

// TransportConfig represents per-transport connection defaults
type TransportConfig struct {
	TCP       TCPPortConfig       `mapstructure:"tcp"`
	Serial    SerialPortConfig    `mapstructure:"serial"`
	USB       USBPortConfig       `mapstructure:"usb"`
	Bluetooth BluetoothPortConfig `mapstructure:"bluetooth"`
}

// SerialPortConfig represents serial port configuration
type SerialPortConfig struct {
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	StopBits int           `mapstructure:"stop_bits"`
	Parity   string        `mapstructure:"parity"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TCPPortConfig represents TCP port configuration
type TCPPortConfig struct {
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeepAlive    bool          `mapstructure:"keep_alive"`
}

// USBPortConfig represents USB port configuration
type USBPortConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Endpoint int           `mapstructure:"endpoint"`
}

// BluetoothPortConfig represents Bluetooth RFCOMM configuration
type BluetoothPortConfig struct {
	Channel int           `mapstructure:"channel"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DispatchConfig represents the operation worker configuration
type DispatchConfig struct {
	QueueSize         int `mapstructure:"queue_size"`
	CallbackQueueSize int `mapstructure:"callback_queue_size"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from an optional YAML file and PRINTER_BRIDGE_*
// environment variables. With an empty path the usual locations are
// searched and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/printer-bridge")
	}

	// Environment variable support
	v.SetEnvPrefix("PRINTER_BRIDGE")
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
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8085")
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

	// Printer defaults
	v.SetDefault("printer.driver", "epson")
	v.SetDefault("printer.default_series", 29) // TM-m30III
	v.SetDefault("printer.default_language", 0)
	v.SetDefault("printer.connect_timeout", "15s")
	v.SetDefault("printer.handshake", true)
	v.SetDefault("printer.status_timeout", "2s")
	v.SetDefault("printer.drawer_pin", 2)
	v.SetDefault("printer.drawer_pulse", "50ms")

	// Discovery defaults
	v.SetDefault("discovery.scan_timeout", "8s")
	v.SetDefault("discovery.tcp.subnets", []string{})
	v.SetDefault("discovery.tcp.ports", []int{9100})
	v.SetDefault("discovery.tcp.probe_timeout", "400ms")
	v.SetDefault("discovery.tcp.concurrency", 64)
	v.SetDefault("discovery.tcp.query_name", true)
	v.SetDefault("discovery.bluetooth.scan_window", "5s")
	v.SetDefault("discovery.bluetooth.name_filters", []string{"TM-", "TS-", "EPSON"})
	v.SetDefault("discovery.bluetooth.pair_timeout", "30s")
	v.SetDefault("discovery.bluetooth.serial_prefixes", []string{"/dev/rfcomm", "/dev/tty.TM", "COM"})
	v.SetDefault("discovery.usb.vendor_ids", []string{"04B8"})

	// Transport defaults
	v.SetDefault("transport.tcp.read_timeout", "5s")
	v.SetDefault("transport.tcp.write_timeout", "30s")
	v.SetDefault("transport.tcp.keep_alive", true)
	v.SetDefault("transport.serial.baud_rate", 115200)
	v.SetDefault("transport.serial.data_bits", 8)
	v.SetDefault("transport.serial.stop_bits", 1)
	v.SetDefault("transport.serial.parity", "none")
	v.SetDefault("transport.serial.timeout", "5s")
	v.SetDefault("transport.usb.timeout", "10s")
	v.SetDefault("transport.usb.endpoint", 0)
	v.SetDefault("transport.bluetooth.channel", 1)
	v.SetDefault("transport.bluetooth.timeout", "10s")

	// Dispatch defaults
	v.SetDefault("dispatch.queue_size", 32)
	v.SetDefault("dispatch.callback_queue_size", 64)

	// App defaults
	v.SetDefault("app.name", "printer-bridge")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if config.Printer.DefaultSeries < 0 || config.Printer.DefaultSeries > 29 {
		return fmt.Errorf("printer.default_series must be between 0 and 29")
	}
	if config.Printer.DefaultLanguage < 0 || config.Printer.DefaultLanguage > 6 {
		return fmt.Errorf("printer.default_language must be between 0 and 6")
	}
	if config.Printer.ConnectTimeout <= 0 {
		return fmt.Errorf("printer.connect_timeout must be positive")
	}
	if config.Printer.DrawerPin != 2 && config.Printer.DrawerPin != 5 {
		return fmt.Errorf("printer.drawer_pin must be 2 or 5")
	}
	if config.Discovery.ScanTimeout <= 0 {
		return fmt.Errorf("discovery.scan_timeout must be positive")
	}
	if config.Discovery.ScanTimeout <= config.Discovery.Bluetooth.ScanWindow {
		return fmt.Errorf("discovery.scan_timeout must exceed discovery.bluetooth.scan_window")
	}
	if config.Discovery.TCP.Concurrency < 1 {
		return fmt.Errorf("discovery.tcp.concurrency must be at least 1")
	}
	if config.Dispatch.QueueSize < 1 {
		return fmt.Errorf("dispatch.queue_size must be at least 1")
	}

	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
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
