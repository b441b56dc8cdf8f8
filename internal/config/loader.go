package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// File lookup and environment binding.
const (
	configName = ".shcov"
	configType = "yaml"
	envPrefix  = "SHCOV"
)

// Default values.
const (
	DefaultShell           = "/bin/bash -x"
	DefaultOutputDir       = "/tmp/shcov"
	DefaultOutputBasename  = "coverage"
	DefaultOutputFormat    = "json"
	DefaultOutputMerge     = true
	DefaultMaxFileSize     = "0"
	DefaultLogLevel        = "warn"
	DefaultLogJSON         = false
	DefaultEnvironment     = ""
	DefaultOTLPEndpoint    = ""
	DefaultOTLPInsecure    = false
	DefaultSampleRatio     = 0.0
	DefaultMetricsTextfile = ""
)

// defaults lists every key so that SHCOV_* variables are honoured even
// when no config file mentions the key.
var defaults = map[string]any{
	"shell":                      DefaultShell,
	"output.dir":                 DefaultOutputDir,
	"output.basename":            DefaultOutputBasename,
	"output.format":              DefaultOutputFormat,
	"output.merge":               DefaultOutputMerge,
	"registry.max_file_size":     DefaultMaxFileSize,
	"logging.level":              DefaultLogLevel,
	"logging.json":               DefaultLogJSON,
	"telemetry.environment":      DefaultEnvironment,
	"telemetry.otlp_endpoint":    DefaultOTLPEndpoint,
	"telemetry.otlp_insecure":    DefaultOTLPInsecure,
	"telemetry.sample_ratio":     DefaultSampleRatio,
	"telemetry.metrics_textfile": DefaultMetricsTextfile,
}

// LoadConfig merges defaults, the config file and SHCOV_* environment
// variables, in increasing priority. An explicit configPath must exist;
// otherwise .shcov.yaml is looked up in the working directory and then
// $HOME, and its absence is not an error.
func LoadConfig(configPath string) (*Config, error) {
	v := newViper()

	err := readConfigFile(v, configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config

	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	err := v.ReadInConfig()

	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("read config: %w", err)
	}

	return nil
}
