package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/meshlb/lb/errors"
)

// Default ports, matching the original cluster's reference defaults.
const (
	DefaultClientPort = 11114
	DefaultRegPort    = 11115
	DefaultStatusPort = 11116
	DefaultAdminPort  = 11117
)

// SetDefaults seeds a Viper instance with the LB's default start-up values.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("client_port", DefaultClientPort)
	v.SetDefault("reg_port", DefaultRegPort)
	v.SetDefault("status_port", DefaultStatusPort)
	v.SetDefault("admin_port", DefaultAdminPort)
	v.SetDefault("json_logs", false)
}

// Load reads StartConfig from environment variables (LB_CLIENT_PORT,
// LB_REG_PORT, ...), an optional TOML file, and defaults, in that
// precedence order: an environment variable overrides the file, and the
// file overrides the defaults. The file itself is parsed with
// BurntSushi/toml into a plain map and merged into Viper, rather than
// handed to Viper's own config-file reader.
func Load(configPath string) (*StartConfig, error) {
	v := viper.New()

	v.SetEnvPrefix("LB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
		}
		var fileValues map[string]interface{}
		if err := toml.Unmarshal(data, &fileValues); err != nil {
			return nil, errors.Wrapf(err, "failed to parse TOML config file %s", configPath)
		}
		if err := v.MergeConfigMap(fileValues); err != nil {
			return nil, errors.Wrapf(err, "failed to merge config file %s", configPath)
		}
	}

	var cfg StartConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal start config")
	}
	return &cfg, nil
}
