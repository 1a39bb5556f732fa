package main

import (
	"flag"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"sigserver/internal/cli"
	"sigserver/internal/config"
)

type Config struct {
	ConfigPath  string
	Settings    config.Settings
	Verbose     bool
	ShowHelp    bool
	ShowVersion bool
	Sources     map[string]configSource
}

type configSource string

const (
	sourceDefault configSource = "default"
	sourceFile    configSource = "file"
	sourceEnv     configSource = "env"
	sourceFlag    configSource = "flag"
)

const (
	envConfigPath = "SIGSERVER_CONFIG"
	usageSummary  = "Cosigning coordinator for the four stakeholders of a vault."
)

// settingKey binds one configuration key to its env var, its flag and the
// Settings field it fills.
type settingKey struct {
	Name  string
	Env   string
	Flag  string
	Usage string
	Field func(*config.Settings) any
}

var settingKeys = []settingKey{
	{Name: "listen", Env: "SIGSERVER_LISTEN", Flag: "listen", Usage: "HTTP listen address (host:port)",
		Field: func(s *config.Settings) any { return &s.Listen }},
	{Name: "token", Env: "SIGSERVER_TOKEN", Flag: "token", Usage: "Auth token for REST/WS",
		Field: func(s *config.Settings) any { return &s.Token }},
	{Name: "log_level", Env: "SIGSERVER_LOG_LEVEL", Flag: "log-level", Usage: "Log level (debug, info, warning, error)",
		Field: func(s *config.Settings) any { return &s.LogLevel }},
	{Name: "allowed_origins", Env: "SIGSERVER_ALLOWED_ORIGINS", Flag: "allowed-origins", Usage: "Comma separated websocket origins",
		Field: func(s *config.Settings) any { return &s.AllowedOrigins }},
	{Name: "bitcoind.conf_path", Env: "SIGSERVER_BITCOIND_CONF", Flag: "bitcoind-conf", Usage: "Path to bitcoin.conf",
		Field: func(s *config.Settings) any { return &s.Bitcoind.ConfPath }},
	{Name: "bitcoind.host", Env: "SIGSERVER_BITCOIND_HOST", Flag: "bitcoind-host", Usage: "bitcoind RPC host[:port]",
		Field: func(s *config.Settings) any { return &s.Bitcoind.Host }},
	{Name: "bitcoind.user", Env: "SIGSERVER_BITCOIND_USER", Flag: "bitcoind-user", Usage: "bitcoind RPC user",
		Field: func(s *config.Settings) any { return &s.Bitcoind.User }},
	{Name: "bitcoind.pass", Env: "SIGSERVER_BITCOIND_PASS", Flag: "bitcoind-pass", Usage: "bitcoind RPC password",
		Field: func(s *config.Settings) any { return &s.Bitcoind.Pass }},
	{Name: "bitcoind.network", Env: "SIGSERVER_NETWORK", Flag: "network", Usage: "Bitcoin network (mainnet, testnet, signet, regtest)",
		Field: func(s *config.Settings) any { return &s.Bitcoind.Network }},
	{Name: "bitcoind.disabled", Env: "SIGSERVER_BITCOIND_DISABLED", Flag: "no-bitcoind", Usage: "Run without a fee oracle",
		Field: func(s *config.Settings) any { return &s.Bitcoind.Disabled }},
	{Name: "feerate.mock", Env: "SIGSERVER_FEERATE_MOCK", Flag: "feerate-mock", Usage: "Fixed feerate served instead of asking bitcoind",
		Field: func(s *config.Settings) any { return &s.Feerate.Mock }},
	{Name: "spend.validate_addresses", Env: "SIGSERVER_VALIDATE_ADDRESSES", Flag: "validate-addresses", Usage: "Reject spend destinations that do not decode on the network",
		Field: func(s *config.Settings) any { return &s.Spend.ValidateAddresses }},
	{Name: "tracing.otlp_endpoint", Env: "SIGSERVER_OTLP_ENDPOINT", Flag: "otlp-endpoint", Usage: "OTLP/HTTP endpoint for trace export",
		Field: func(s *config.Settings) any { return &s.Tracing.OTLPEndpoint }},
	{Name: "tracing.service_name", Env: "SIGSERVER_OTEL_SERVICE_NAME", Flag: "otel-service-name", Usage: "Service name reported with traces",
		Field: func(s *config.Settings) any { return &s.Tracing.ServiceName }},
	{Name: "tracing.resource_attributes", Env: "SIGSERVER_OTEL_RESOURCE_ATTRIBUTES", Flag: "otel-resource-attributes", Usage: "Extra trace resource attributes (k=v,...)",
		Field: func(s *config.Settings) any { return &s.Tracing.ResourceAttributes }},
}

type flagValues struct {
	ConfigPath string
	Verbose    bool
	Help       bool
	Version    bool
	Values     map[string]string
	Set        map[string]bool
}

// loadConfig resolves settings as default < file < env < flag.
func loadConfig(args []string, getenv func(string) string) (Config, error) {
	flags, err := parseFlags(args)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Verbose:     flags.Verbose,
		ShowHelp:    flags.Help,
		ShowVersion: flags.Version,
		Sources:     make(map[string]configSource),
	}
	if cfg.ShowHelp || cfg.ShowVersion {
		return cfg, nil
	}

	cfg.ConfigPath = strings.TrimSpace(getenv(envConfigPath))
	cfg.Sources["config"] = sourceDefault
	if cfg.ConfigPath != "" {
		cfg.Sources["config"] = sourceEnv
	}
	if flags.Set["config"] {
		cfg.ConfigPath = strings.TrimSpace(flags.ConfigPath)
		cfg.Sources["config"] = sourceFlag
	}

	defaults := config.Defaults()
	settings, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	for _, key := range settingKeys {
		source := sourceDefault
		if !reflect.DeepEqual(reflect.ValueOf(key.Field(&settings)).Elem().Interface(), reflect.ValueOf(key.Field(&defaults)).Elem().Interface()) {
			source = sourceFile
		}
		if raw := strings.TrimSpace(getenv(key.Env)); raw != "" {
			if err := assign(key.Field(&settings), raw); err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", key.Env, err)
			}
			source = sourceEnv
		}
		if flags.Set[key.Flag] {
			if err := assign(key.Field(&settings), flags.Values[key.Flag]); err != nil {
				return Config{}, fmt.Errorf("invalid --%s: %w", key.Flag, err)
			}
			source = sourceFlag
		}
		cfg.Sources[key.Name] = source
	}
	if cfg.Verbose {
		settings.LogLevel = "debug"
	}
	if err := settings.Validate(); err != nil {
		return Config{}, err
	}
	cfg.Settings = settings
	return cfg, nil
}

func assign(target any, raw string) error {
	switch field := target.(type) {
	case *string:
		*field = strings.TrimSpace(raw)
	case *bool:
		parsed, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		*field = parsed
	case *[]string:
		*field = splitList(raw)
	default:
		return fmt.Errorf("unsupported setting type %T", target)
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func newFlagSet() (*flag.FlagSet, *flagValues, *cli.HelpVersionFlags) {
	fs := flag.NewFlagSet("sigserver", flag.ContinueOnError)
	values := &flagValues{
		Values: make(map[string]string),
		Set:    make(map[string]bool),
	}
	fs.StringVar(&values.ConfigPath, "config", "", "Path to the YAML settings file")
	for _, key := range settingKeys {
		key := key
		record := func(raw string) error {
			values.Values[key.Flag] = raw
			return nil
		}
		if _, ok := key.Field(&config.Settings{}).(*bool); ok {
			fs.BoolFunc(key.Flag, key.Usage, record)
			continue
		}
		fs.Func(key.Flag, key.Usage, record)
	}
	fs.BoolVar(&values.Verbose, "verbose", false, "Enable debug logging")
	helpVersion := cli.AddHelpVersionFlags(fs, "Show help", "Print version and exit")
	cli.SetUsage(fs, usageSummary, envHelp())
	return fs, values, helpVersion
}

func parseFlags(args []string) (flagValues, error) {
	if args == nil {
		args = []string{}
	}
	fs, values, helpVersion := newFlagSet()
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return flagValues{}, err
	}
	fs.Visit(func(flag *flag.Flag) {
		values.Set[flag.Name] = true
	})
	values.Help = helpVersion.Help
	values.Version = helpVersion.Version
	return *values, nil
}

func envHelp() []cli.EnvVar {
	env := []cli.EnvVar{{Name: envConfigPath, Description: "Path to the YAML settings file"}}
	for _, key := range settingKeys {
		env = append(env, cli.EnvVar{Name: key.Env, Description: key.Usage})
	}
	return env
}

func printHelp(out io.Writer) {
	fs, _, _ := newFlagSet()
	cli.PrintUsage(out, fs, usageSummary, envHelp())
}
