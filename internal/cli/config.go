package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fivequarters/q5-sub008/internal/paths"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "ENTITYSTORE"

	cfgKeyBackend        = "backend"
	cfgKeyDataDir        = "data_dir"
	cfgKeyAccount        = "account"
	cfgKeySubscription   = "subscription"
	cfgKeyLogLevel       = "log_level"
	cfgKeySecretTagValue = "secret_tag_value"
)

// envKeys can be overridden by ENTITYSTORE_<KEY>. data_dir is resolved by
// package paths, which gives the config file precedence over the
// environment.
var envKeys = []string{
	cfgKeyBackend, "mode", "region", "database",
	"secret_tag_key", cfgKeySecretTagValue,
	"purge_interval", "list_limit", "operation_ttl",
	cfgKeyLogLevel, "log_json",
	cfgKeyAccount, cfgKeySubscription,
}

// loadConfig reads config.yaml from configDir. A missing file is not an
// error; defaults and the environment still apply.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyDataDir, "")
	v.SetDefault(cfgKeyLogLevel, "warn")
	v.SetDefault("purge_interval", types.DefaultPurgeInterval)
	v.SetDefault("list_limit", types.DefaultListLimit)
	v.SetDefault("operation_ttl", types.DefaultOperationTTL)

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	v.SetEnvPrefix(envPrefix)
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// config decodes the loaded settings. The CLI is short-lived, so it always
// runs in local mode and never starts the background sweep; `purge` sweeps
// on demand.
func (a *app) config() (types.Config, error) {
	var cfg types.Config
	if err := a.v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.Mode = types.ModeLocal

	if cfg.Backend == types.BackendSQLite {
		dir, err := paths.ResolveDataDir(a.flags.dataDir, cfg.DataDir)
		if err != nil {
			return cfg, systemError(fmt.Errorf("resolve data dir: %w", err))
		}
		cfg.DataDir = dir
	}
	return cfg, nil
}

// scope returns the account and subscription every entity command needs.
func (a *app) scope() (string, string, error) {
	account := a.v.GetString(cfgKeyAccount)
	subscription := a.v.GetString(cfgKeySubscription)
	if account == "" || subscription == "" {
		return "", "", fmt.Errorf("%w: --account and --subscription are required", types.ErrInvalidKey)
	}
	return account, subscription, nil
}

// writeConfigIfMissing creates config.yaml for a local SQLite store if the
// file does not exist. It reports whether it wrote the file.
func writeConfigIfMissing(path, dataDir string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	cfg := types.Config{
		Backend:  types.BackendSQLite,
		DataDir:  dataDir,
		LogLevel: "warn",
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	header := "# entityctl configuration\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// isConfigInvalid reports whether err is a Config.Validate failure.
func isConfigInvalid(err error) bool {
	for _, target := range []error{
		types.ErrBackendEmpty, types.ErrBackendUnknown, types.ErrModeUnknown,
		types.ErrSecretTagEmpty, types.ErrPurgeIntervalInvalid,
		types.ErrListLimitInvalid, types.ErrOperationTTLInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
