// Package config provides configuration loading from an optional YAML file
// with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shineum/email-sender/internal/request"
)

// defaultMaxMessageSize is 25 MB in bytes.
const defaultMaxMessageSize = 26214400

// Transport names accepted in the transport setting.
const (
	TransportSMTP   = "smtp"
	TransportSES    = "ses"
	TransportGraph  = "graph"
	TransportResend = "resend"
	TransportStdout = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	// Transport selects the delivery backend.
	Transport string `yaml:"transport"`

	// Defaults fill request fields the command line leaves empty.
	Defaults request.Fields `yaml:"defaults"`

	// Aliases map shorthand names to addresses.
	Aliases map[string]string `yaml:"aliases"`

	SMTP    SMTPConfig    `yaml:"smtp"`
	SES     SESConfig     `yaml:"ses"`
	Graph   GraphConfig   `yaml:"graph"`
	Resend  ResendConfig  `yaml:"resend"`
	Sink    SinkConfig    `yaml:"sink"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// SMTPConfig holds SMTP client settings. The server is part of each request.
type SMTPConfig struct {
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	TLS                string        `yaml:"tls"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Helo               string        `yaml:"helo"`
	Timeout            time.Duration `yaml:"timeout"`
}

// SESConfig holds AWS SES settings.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// ResendConfig holds Resend API settings.
type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

// SinkConfig holds settings for the capture SMTP server.
type SinkConfig struct {
	Listen         string `yaml:"listen"`
	Domain         string `yaml:"domain"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	MaxMessageSize int64  `yaml:"max_message_size"`
	StartTLS       bool   `yaml:"starttls"`
	CertFile       string `yaml:"cert_file"`
	KeyFile        string `yaml:"key_file"`
}

// MetricsConfig holds metrics exposition settings.
type MetricsConfig struct {
	// PushURL receives metrics in Prometheus text format after a send.
	PushURL string `yaml:"push_url"`
	// Listen serves /metrics while the sink runs.
	Listen string `yaml:"listen"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvVars()

	return cfg, nil
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// SMTPAuthEnabled returns true if both SMTP username and password are set.
func (c *Config) SMTPAuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// Validate checks that the selected transport can be constructed.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TransportSMTP:
		switch c.SMTP.TLS {
		case "", "none", "opportunistic", "starttls", "implicit":
		default:
			errs = append(errs, fmt.Errorf("smtp.tls: unknown mode %q", c.SMTP.TLS))
		}
	case TransportSES:
		if c.SES.Region == "" {
			errs = append(errs, errors.New("ses.region is required"))
		}
	case TransportGraph:
		if !c.GraphConfigured() {
			errs = append(errs, errors.New("graph requires tenant_id, client_id, client_secret and sender"))
		}
	case TransportResend:
		if c.Resend.APIKey == "" {
			errs = append(errs, errors.New("resend.api_key is required"))
		}
	case TransportStdout:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Transport = TransportSMTP
	c.SMTP.TLS = "opportunistic"
	c.SMTP.Helo = "localhost"
	c.SMTP.Timeout = 30 * time.Second
	c.Sink.Listen = ":2525"
	c.Sink.Domain = "localhost"
	c.Sink.MaxMessageSize = defaultMaxMessageSize
	c.Logging.Level = "info"
	c.Logging.Format = "text"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("TRANSPORT"); v != "" {
		c.Transport = strings.ToLower(v)
	}

	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_TLS"); v != "" {
		c.SMTP.TLS = strings.ToLower(v)
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}

	if v := os.Getenv("GRAPH_TENANT_ID"); v != "" {
		c.Graph.TenantID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_ID"); v != "" {
		c.Graph.ClientID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_SECRET"); v != "" {
		c.Graph.ClientSecret = v
	}
	if v := os.Getenv("GRAPH_SENDER"); v != "" {
		c.Graph.Sender = v
	}

	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		c.Resend.APIKey = v
	}

	if v := os.Getenv("SINK_LISTEN"); v != "" {
		c.Sink.Listen = v
	}
	if v := os.Getenv("SINK_USERNAME"); v != "" {
		c.Sink.Username = v
	}
	if v := os.Getenv("SINK_PASSWORD"); v != "" {
		c.Sink.Password = v
	}
	if v := os.Getenv("SINK_MAX_MESSAGE_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Sink.MaxMessageSize = size
		}
	}

	if v := os.Getenv("METRICS_PUSH_URL"); v != "" {
		c.Metrics.PushURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
}
