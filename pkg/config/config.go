package config

// Package config provides a reusable loader for the node's configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"anvilzksync/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a node instance. It
// mirrors the structure of the YAML files under cmd/config.
type Config struct {
	Network struct {
		ChainID     int    `mapstructure:"chain_id" json:"chain_id"`
		Host        string `mapstructure:"host" json:"host"`
		Port        int    `mapstructure:"port" json:"port"`
		GenesisFile string `mapstructure:"genesis_file" json:"genesis_file"`
	} `mapstructure:"network" json:"network"`

	VM struct {
		MaxGasPerBlock   uint64 `mapstructure:"max_gas_per_block" json:"max_gas_per_block"`
		OpcodeDebug      bool   `mapstructure:"opcode_debug" json:"opcode_debug"`
		SystemContracts  string `mapstructure:"system_contracts_path" json:"system_contracts_path"`
		OverrideBytecode string `mapstructure:"override_bytecode_dir" json:"override_bytecode_dir"`
	} `mapstructure:"vm" json:"vm"`

	Storage struct {
		CacheDir         string `mapstructure:"cache_dir" json:"cache_dir"`
		SnapshotInterval int    `mapstructure:"snapshot_interval" json:"snapshot_interval"`
		Prune            bool   `mapstructure:"prune" json:"prune"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`

	Fork struct {
		URL        string `mapstructure:"url" json:"url"`
		BlockNumber uint64 `mapstructure:"block_number" json:"block_number"`
		CacheDir   string `mapstructure:"cache_dir" json:"cache_dir"`
	} `mapstructure:"fork" json:"fork"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the ANVIL_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("ANVIL_ENV", ""))
}
