package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/edgeflare/rowgate/pkg/db"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Version is the build version, overridden with -ldflags "-X ...config.Version=...".
// It is the default for app.version.
var Version = "1.0.0"

// Config holds application-wide configuration
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	DB      DBConfig      `mapstructure:"db"`
	API     APIConfig     `mapstructure:"api"`
	Docs    DocsConfig    `mapstructure:"docs"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Events  EventsConfig  `mapstructure:"events"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Version         string        `mapstructure:"version"`
	Timezone        string        `mapstructure:"timezone"`
	LogLevel        string        `mapstructure:"log_level"`
	URL             string        `mapstructure:"url"`
	TLSCert         string        `mapstructure:"tls_cert"`
	TLSKey          string        `mapstructure:"tls_key"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Debug           bool          `mapstructure:"debug"`
	TLSEnabled      bool          `mapstructure:"tls_enabled"`
}

type DBConfig struct {
	Driver         string        `mapstructure:"driver"`
	Host           string        `mapstructure:"host"`
	Database       string        `mapstructure:"database"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Charset        string        `mapstructure:"charset"`
	URL            string        `mapstructure:"url"`
	Port           int           `mapstructure:"port"`
	MaxConns       int           `mapstructure:"max_conns"`
	ConnectRetries int           `mapstructure:"connect_retries"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
}

type APIConfig struct {
	Prefix            string   `mapstructure:"prefix"`
	BasicAuth         string   `mapstructure:"basic_auth"`
	CORSOrigins       []string `mapstructure:"cors_origins"`
	TrustedProxies    []string `mapstructure:"trusted_proxies"`
	MaxBodyBytes      int64    `mapstructure:"max_body_bytes"`
	RateLimit         int      `mapstructure:"rate_limit"`
	CORS              bool     `mapstructure:"cors"`
	StrictIdentifiers bool     `mapstructure:"strict_identifiers"`
}

type DocsConfig struct {
	Path    string `mapstructure:"path"`
	Title   string `mapstructure:"title"`
	Enabled bool   `mapstructure:"enabled"`
}

type MetricsConfig struct {
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

type EventsConfig struct {
	NATSURL    string `mapstructure:"nats_url"`
	MQTTBroker string `mapstructure:"mqtt_broker"`
	Prefix     string `mapstructure:"prefix"`
}

var defaults = map[string]any{
	"app.name":             "rowgate",
	"app.version":          Version,
	"app.debug":            false,
	"app.port":             8000,
	"app.timezone":         "UTC",
	"app.log_level":        "info",
	"app.url":              "",
	"app.tls_enabled":      false,
	"app.tls_cert":         "",
	"app.tls_key":          "",
	"app.shutdown_timeout": "10s",

	"db.driver":          "pgsql",
	"db.host":            "",
	"db.port":            0,
	"db.database":        "rowgate",
	"db.username":        "",
	"db.password":        "",
	"db.charset":         "utf8mb4",
	"db.url":             "",
	"db.max_conns":       1,
	"db.connect_retries": 0,
	"db.query_timeout":   "0s",

	"api.prefix":             "/api",
	"api.cors":               true,
	"api.cors_origins":       "*",
	"api.rate_limit":         1000,
	"api.strict_identifiers": false,
	"api.basic_auth":         "",
	"api.trusted_proxies":    "",
	"api.max_body_bytes":     10 << 20,

	"docs.enabled": true,
	"docs.path":    "/docs",
	"docs.title":   "rowgate API Documentation",

	"metrics.enabled": false,
	"metrics.addr":    ":9100",
	"metrics.path":    "/metrics",

	"events.nats_url":    "",
	"events.mqtt_broker": "",
	"events.prefix":      "rowgate",
}

// Load reads configuration from defaults, an optional YAML file, an optional .env file in
// the working directory and the process environment, in increasing precedence.
// Keys map to environment variables by upper-casing and replacing "." with "_", e.g.
// api.rate_limit is API_RATE_LIMIT.
func Load(cfgFile string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.normalize(InDocker())

	if err := cfg.applyTimezone(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv exports the variables of an env file into the process environment.
// Variables that are already set are left untouched. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading %s: %w", filepath.Base(path), err)
	}

	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}

// InDocker reports whether the process appears to run inside a Docker container.
func InDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}
	cgroup, err := os.ReadFile("/proc/1/cgroup")
	return err == nil && strings.Contains(string(cgroup), "docker")
}

func (c *Config) normalize(inDocker bool) {
	if c.DB.Host == "" {
		c.DB.Host = "localhost"
		if inDocker {
			c.DB.Host = dockerServiceName(c.DB.Driver)
		}
	}
	c.API.Prefix = cleanPath(c.API.Prefix)
	c.Docs.Path = cleanPath(c.Docs.Path)
	if c.Docs.Path == "" {
		c.Docs.Path = "/docs"
	}
	c.API.CORSOrigins = trimAll(c.API.CORSOrigins)
	c.API.TrustedProxies = trimAll(c.API.TrustedProxies)
	if c.API.MaxBodyBytes <= 0 {
		c.API.MaxBodyBytes = 10 << 20
	}
}

// cleanPath returns p with exactly one leading slash and no trailing one, or "" for the root.
func cleanPath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// dockerServiceName is the compose service name conventionally used for the driver.
func dockerServiceName(driver string) string {
	d, err := db.ParseDialect(driver)
	if err != nil {
		return "localhost"
	}
	switch d {
	case db.Postgres:
		return "postgres"
	case db.MySQL:
		return "mysql"
	default:
		return "localhost"
	}
}

func (c *Config) applyTimezone() error {
	if c.App.Timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
	}
	time.Local = loc
	return nil
}

// Connection returns the database settings in the form db.Open expects.
func (c *Config) Connection() db.Config {
	return db.Config{
		Driver:         c.DB.Driver,
		Host:           c.DB.Host,
		Port:           c.DB.Port,
		Database:       c.DB.Database,
		Username:       c.DB.Username,
		Password:       c.DB.Password,
		Charset:        c.DB.Charset,
		URL:            c.DB.URL,
		MaxConns:       c.DB.MaxConns,
		ConnectRetries: c.DB.ConnectRetries,
		Debug:          c.App.Debug,
	}
}

// ServerURL is the public base URL: app.url when set, else http://localhost:<port>.
func (c *Config) ServerURL() string {
	if c.App.URL != "" {
		return strings.TrimSuffix(c.App.URL, "/")
	}
	scheme := "http"
	if c.TLS() {
		scheme = "https"
	}
	return scheme + "://localhost:" + strconv.Itoa(c.App.Port)
}

// TLS reports whether the server should listen with TLS.
func (c *Config) TLS() bool {
	return c.App.TLSEnabled || (c.App.TLSCert != "" && c.App.TLSKey != "")
}

// ListenAddr is ":<port>".
func (c *Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.App.Port)
}
