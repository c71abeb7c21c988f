package delivery

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the worker configuration, read from a YAML file with env
// fallbacks. An empty Poll means one-shot operation.
type Config struct {
	Poll         string `yaml:"poll"`
	Profile      string `yaml:"profile"`
	SMTPServer   string `yaml:"smtp-server"`
	SMTPPort     int    `yaml:"smtp-port"`
	SMTPUser     string `yaml:"smtp-user"`
	SMTPPassword string `yaml:"smtp-password"`
	SMTPFrom     string `yaml:"smtp-from"`
	SMTPProtocol string `yaml:"smtp-protocol"`
	Log          string `yaml:"log"`

	BackoffSeconds []int `yaml:"backoff"`
	FailCap        int   `yaml:"fail-cap"`
	TimeoutSeconds int   `yaml:"timeout"`
}

// LoadConfig loads the worker config from path (optional) and fills
// gaps from the environment.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		SMTPPort:     25,
		SMTPProtocol: SMTPPlain,
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	if cfg.Poll == "" {
		cfg.Poll = os.Getenv("WORKER_POLL")
	}
	if cfg.SMTPServer == "" {
		cfg.SMTPServer = os.Getenv("SMTP_SERVER")
	}
	if cfg.SMTPUser == "" {
		cfg.SMTPUser = os.Getenv("SMTP_USER")
	}
	if cfg.SMTPPassword == "" {
		cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	}
	if cfg.SMTPFrom == "" {
		cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	}
	if env := os.Getenv("SMTP_PORT"); env != "" && cfg.SMTPPort == 25 {
		if port, err := strconv.Atoi(env); err == nil {
			cfg.SMTPPort = port
		}
	}
	if env := os.Getenv("SMTP_PROTOCOL"); env != "" && cfg.SMTPProtocol == SMTPPlain {
		cfg.SMTPProtocol = env
	}
	switch cfg.SMTPProtocol {
	case SMTPPlain, SMTPStartTLS, SMTPSSL:
	default:
		return cfg, fmt.Errorf("worker config: unknown smtp protocol %q", cfg.SMTPProtocol)
	}
	if _, err := cfg.PollInterval(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// PollInterval parses the poll field: a bare number counts as seconds,
// otherwise Ns/Nms style durations apply. A zero interval means
// one-shot.
func (c Config) PollInterval() (time.Duration, error) {
	value := strings.TrimSpace(c.Poll)
	if value == "" {
		return 0, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("worker config: negative poll %q", c.Poll)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	interval, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("worker config: bad poll %q", c.Poll)
	}
	if interval < 0 {
		return 0, fmt.Errorf("worker config: negative poll %q", c.Poll)
	}
	return interval, nil
}

// Backoff returns the retry schedule, falling back to the default.
func (c Config) Backoff() []time.Duration {
	if len(c.BackoffSeconds) == 0 {
		return nil
	}
	out := make([]time.Duration, len(c.BackoffSeconds))
	for i, seconds := range c.BackoffSeconds {
		out[i] = time.Duration(seconds) * time.Second
	}
	return out
}

// Timeout returns the per-call transport timeout, zero when unset.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
