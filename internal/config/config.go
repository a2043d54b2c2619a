// Package config resolves tally settings from, in increasing precedence,
// built-in defaults, a YAML config file, TALLY_* environment variables,
// and command-line flags bound by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/program"
	"github.com/roach88/tally/internal/vm"
)

// Keys shared by the config file, environment, and flags.
const (
	KeyDB           = "db"
	KeyKeypair      = "keypair"
	KeyProgramID    = "program_id"
	KeyComputeLimit = "compute_limit"
	KeyRentPerByte  = "rent.lamports_per_byte_year"
	KeyRentYears    = "rent.exemption_years"
	KeyRentOverhead = "rent.account_overhead"
)

// EnvPrefix scopes environment overrides: TALLY_DB, TALLY_RENT_EXEMPTION_YEARS, ...
const EnvPrefix = "TALLY"

// Config is the resolved runtime configuration.
type Config struct {
	DB           string     `mapstructure:"db"`
	Keypair      string     `mapstructure:"keypair"`
	ProgramID    string     `mapstructure:"program_id"`
	ComputeLimit uint64     `mapstructure:"compute_limit"`
	Rent         RentConfig `mapstructure:"rent"`

	// File is the config file actually read, or "" if none was found.
	File string `mapstructure:"-"`
}

// RentConfig mirrors vm.Rent.
type RentConfig struct {
	LamportsPerByteYear uint64 `mapstructure:"lamports_per_byte_year"`
	ExemptionYears      uint64 `mapstructure:"exemption_years"`
	AccountOverhead     uint64 `mapstructure:"account_overhead"`
}

// New returns a viper instance carrying tally's defaults and env binding.
// The CLI binds its flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	rent := vm.DefaultRent()

	v.SetDefault(KeyDB, "tally.db")
	v.SetDefault(KeyKeypair, defaultKeypairPath())
	v.SetDefault(KeyProgramID, program.DefaultProgramID.String())
	v.SetDefault(KeyComputeLimit, vm.DefaultComputeLimit)
	v.SetDefault(KeyRentPerByte, rent.LamportsPerByteYear)
	v.SetDefault(KeyRentYears, rent.ExemptionYears)
	v.SetDefault(KeyRentOverhead, rent.AccountOverhead)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file into v and decodes the result.
//
// An explicit file must exist. Without one, ./tally.yaml and
// $HOME/.tally/config.yaml are tried and silently skipped when absent.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("tally")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".tally"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values viper cannot type-check.
func (c Config) Validate() error {
	if c.DB == "" {
		return fmt.Errorf("config: %s must not be empty", KeyDB)
	}
	if _, err := ir.ParsePubkey(c.ProgramID); err != nil {
		return fmt.Errorf("config: %s: %w", KeyProgramID, err)
	}
	if c.ComputeLimit == 0 {
		return fmt.Errorf("config: %s must be positive", KeyComputeLimit)
	}
	if c.Rent.LamportsPerByteYear == 0 || c.Rent.ExemptionYears == 0 {
		return fmt.Errorf("config: rent rate and exemption years must be positive")
	}
	return nil
}

// Program returns the configured program id. Validate has already
// checked it parses.
func (c Config) Program() ir.Pubkey {
	return ir.MustParsePubkey(c.ProgramID)
}

// RentParams returns the configured rent as vm.Rent.
func (c Config) RentParams() vm.Rent {
	return vm.Rent{
		LamportsPerByteYear: c.Rent.LamportsPerByteYear,
		ExemptionYears:      c.Rent.ExemptionYears,
		AccountOverhead:     c.Rent.AccountOverhead,
	}
}

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return filepath.Join(home, ".tally", "id.json")
}
