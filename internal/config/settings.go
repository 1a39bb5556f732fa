package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"sigserver/internal/logging"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen  = "127.0.0.1:8080"
	DefaultNetwork = "regtest"
)

type Settings struct {
	Listen         string           `yaml:"listen"`
	Token          string           `yaml:"token"`
	LogLevel       string           `yaml:"log_level"`
	AllowedOrigins []string         `yaml:"allowed_origins"`
	Bitcoind       BitcoindSettings `yaml:"bitcoind"`
	Feerate        FeerateSettings  `yaml:"feerate"`
	Spend          SpendSettings    `yaml:"spend"`
	Tracing        TracingSettings  `yaml:"tracing"`
}

type BitcoindSettings struct {
	ConfPath string `yaml:"conf_path"`
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Pass     string `yaml:"pass"`
	Network  string `yaml:"network"`
	Disabled bool   `yaml:"disabled"`
}

type FeerateSettings struct {
	// Mock is a decimal rate served instead of asking bitcoind. Empty disables it.
	Mock string `yaml:"mock"`
}

type SpendSettings struct {
	ValidateAddresses bool `yaml:"validate_addresses"`
}

type TracingSettings struct {
	// OTLPEndpoint is an OTLP/HTTP collector address. Empty disables export.
	OTLPEndpoint       string `yaml:"otlp_endpoint"`
	ServiceName        string `yaml:"service_name"`
	ResourceAttributes string `yaml:"resource_attributes"`
}

func Defaults() Settings {
	return Settings{
		Listen:   DefaultListen,
		LogLevel: string(logging.LevelInfo),
		Bitcoind: BitcoindSettings{
			Network: DefaultNetwork,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Settings, error) {
	settings := Defaults()
	if strings.TrimSpace(path) == "" {
		return settings, nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return Settings{}, err
	}
	if err := Decode(payload, &settings); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return settings, nil
}

// Decode overlays YAML payload onto settings. Unknown keys are rejected.
func Decode(payload []byte, settings *Settings) error {
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(settings); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return settings.Validate()
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.Listen) == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if _, ok := logging.ParseLevel(s.LogLevel); !ok {
		return fmt.Errorf("invalid log_level %q", s.LogLevel)
	}
	if _, err := s.MockFeerate(); err != nil {
		return err
	}
	return nil
}

// MockFeerate parses feerate.mock. It returns nil when no mock is configured.
func (s Settings) MockFeerate() (*decimal.Decimal, error) {
	raw := strings.TrimSpace(s.Feerate.Mock)
	if raw == "" {
		return nil, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid feerate.mock %q: %w", raw, err)
	}
	if !rate.IsPositive() {
		return nil, fmt.Errorf("invalid feerate.mock %q: must be > 0", raw)
	}
	return &rate, nil
}

func (s Settings) Level() logging.Level {
	level, ok := logging.ParseLevel(s.LogLevel)
	if !ok {
		return logging.LevelInfo
	}
	return level
}
