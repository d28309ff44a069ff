package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "/usr/local/prom_cm1000.yaml"

// Config holds the exporter settings. Keys match the YAML config file.
type Config struct {
	ModemAddress    string `yaml:"modem_ip"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ExportPort      int    `yaml:"export_port"`
	IntervalSeconds int    `yaml:"interval"`
	TimeoutSeconds  int    `yaml:"timeout"`
}

func defaultConfig() Config {
	return Config{
		ModemAddress:    "192.168.100.1",
		Username:        "admin",
		ExportPort:      9527,
		IntervalSeconds: 10,
		TimeoutSeconds:  30,
	}
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%d", c.ExportPort)
}

// Censored returns a copy safe to log.
func (c Config) Censored() Config {
	if c.Password != "" {
		c.Password = "********"
	}
	return c
}

func (c Config) Validate() error {
	if c.Password == "" {
		return &ConfigError{Field: "password", Err: ErrPasswordRequired}
	}
	if c.ModemAddress == "" {
		return &ConfigError{Field: "modem_ip", Err: errors.New("must not be empty")}
	}
	if c.ExportPort <= 0 || c.ExportPort > 65535 {
		return &ConfigError{Field: "export_port", Err: fmt.Errorf("%d out of range", c.ExportPort)}
	}
	if c.IntervalSeconds <= 0 {
		return &ConfigError{Field: "interval", Err: fmt.Errorf("must be positive, got %d", c.IntervalSeconds)}
	}
	if c.TimeoutSeconds <= 0 {
		return &ConfigError{Field: "timeout", Err: fmt.Errorf("must be positive, got %d", c.TimeoutSeconds)}
	}
	return nil
}

// loadConfigFile overlays the YAML file at path onto cfg. found reports
// whether the file exists.
func loadConfigFile(path string, cfg *Config) (found bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return true, &ConfigError{Field: "config.file", Err: err}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return true, &ConfigError{Field: "config.file", Err: fmt.Errorf("parsing %s: %w", path, err)}
	}
	return true, nil
}

// configFlags are the command line and environment overrides. Zero values
// mean unset and leave the file or default value in place.
type configFlags struct {
	configFile   *string
	modemAddress *string
	username     *string
	password     *string
	exportPort   *int
	interval     *int
	timeout      *int
}

func registerConfigFlags(app *kingpin.Application) configFlags {
	return configFlags{
		configFile:   app.Flag("config.file", "Path to the YAML configuration file.").Default(defaultConfigFile).Envar("PCM_config_file").String(),
		modemAddress: app.Flag("modem.address", "Address of the modem web interface.").Envar("PCM_modem_ip").String(),
		username:     app.Flag("modem.username", "Modem admin username.").Envar("PCM_username").String(),
		password:     app.Flag("modem.password", "Modem admin password.").Envar("PCM_password").String(),
		exportPort:   app.Flag("web.listen-port", "Port to listen on for web interface and telemetry.").Envar("PPE_export_port").Int(),
		interval:     app.Flag("scrape.interval", "Seconds between modem scrapes.").Envar("PPE_interval").Int(),
		timeout:      app.Flag("client.timeout", "Timeout in seconds for HTTP requests to the modem.").Envar("PCM_timeout").Int(),
	}
}

func (f configFlags) apply(cfg *Config) {
	if *f.modemAddress != "" {
		cfg.ModemAddress = *f.modemAddress
	}
	if *f.username != "" {
		cfg.Username = *f.username
	}
	if *f.password != "" {
		cfg.Password = *f.password
	}
	if *f.exportPort != 0 {
		cfg.ExportPort = *f.exportPort
	}
	if *f.interval != 0 {
		cfg.IntervalSeconds = *f.interval
	}
	if *f.timeout != 0 {
		cfg.TimeoutSeconds = *f.timeout
	}
}

// loadConfig layers defaults, the config file and flag/environment values,
// in that order, and validates the result.
func loadConfig(f configFlags) (Config, bool, error) {
	cfg := defaultConfig()
	found, err := loadConfigFile(*f.configFile, &cfg)
	if err != nil {
		return cfg, found, err
	}
	f.apply(&cfg)
	return cfg, found, cfg.Validate()
}
