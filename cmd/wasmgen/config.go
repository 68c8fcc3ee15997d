package main

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/platform"
)

// ConfigFileName is looked up in the working directory when --config is unset.
const ConfigFileName = "wasmgen"

// Config is the merged view of flags, WASMGEN_* variables and the config file.
// Keys match flag names.
type Config struct {
	ConfigFile string `mapstructure:"config"`
	Verbose    bool   `mapstructure:"verbose"`
	Platform   string `mapstructure:"platform"`

	Package   string   `mapstructure:"package"`
	Out       string   `mapstructure:"out"`
	Prefixes  []string `mapstructure:"prefix"`
	Includes  []string `mapstructure:"include"`
	Headers   []string `mapstructure:"header"`
	Generator string   `mapstructure:"generator"`

	Manifest    string `mapstructure:"manifest"`
	CacheDir    string `mapstructure:"cache-dir"`
	GitHubToken string `mapstructure:"github-token"`
}

// DefaultConfig returns the values used when nothing else is set.
func DefaultConfig() Config {
	cache := filepath.Join(os.TempDir(), "wasmbind")
	if dir, err := os.UserCacheDir(); err == nil {
		cache = filepath.Join(dir, "wasmbind")
	}
	return Config{
		Package:   "capi",
		Out:       "-",
		Generator: "wasmgen",
		Manifest:  "artifacts.toml",
		CacheDir:  cache,
	}
}

func loadConfig(v *viper.Viper, flags *pflag.FlagSet) (Config, error) {
	defaults := DefaultConfig()
	v.SetDefault("package", defaults.Package)
	v.SetDefault("out", defaults.Out)
	v.SetDefault("generator", defaults.Generator)
	v.SetDefault("manifest", defaults.Manifest)
	v.SetDefault("cache-dir", defaults.CacheDir)

	v.SetEnvPrefix("WASMGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// Config file keys the command has no flag for still need an env binding.
	for _, key := range []string{"package", "out", "generator", "manifest", "cache-dir", "github-token", "platform", "verbose"} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, errors.Wrap(errors.PhaseManifest, errors.KindInvalidInput, err, "binding "+key)
		}
	}
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, errors.Wrap(errors.PhaseManifest, errors.KindInvalidInput, err, "binding flags")
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(ConfigFileName)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return Config{}, errors.ParseFailed(errors.PhaseManifest, "config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.ParseFailed(errors.PhaseManifest, "configuration", err)
	}
	return cfg, nil
}

// Target resolves the configured platform, defaulting to the host.
func (c Config) Target() (platform.Platform, error) {
	if c.Platform == "" {
		return platform.Host()
	}
	return platform.Parse(c.Platform)
}
