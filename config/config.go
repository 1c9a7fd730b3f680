// Package config loads the cometprove settings from flags, environment
// variables and a dotenv file.
package config

import (
	"crypto/ecdsa"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	cp "github.com/giuliop/cometprove"
	"github.com/giuliop/cometprove/utils"
)

const (
	NetworkEVM = "evm"
	NetworkAVM = "avm"

	EnvPrefix      = "COMETPROVE"
	DefaultEnvFile = ".env"

	DefaultRPCURL          = "https://rpc-sepolia-eth.nodeguardians.io"
	DefaultVerifierVersion = "1.0.0"
	DefaultAuxTag          = "0x00"

	// TaggedVerifiers are the verifier versions whose proveComet takes the
	// auxiliary tag
	TaggedVerifiers = ">= 1.0.0"
)

// viper keys
const (
	KeyNetwork         = "network"
	KeyRPCURL          = "rpc_url"
	KeyRPCToken        = "rpc_token"
	KeyChainID         = "chain_id"
	KeyPrivateKey      = "private_key"
	KeyMnemonic        = "mnemonic"
	KeyVerifierVersion = "verifier_version"
	KeyAuxTag          = "aux_tag"
	KeyTimeout         = "timeout"
)

type Config struct {
	Network         string        `mapstructure:"network"`
	RPCURL          string        `mapstructure:"rpc_url"`
	RPCToken        string        `mapstructure:"rpc_token"`
	ChainID         uint64        `mapstructure:"chain_id"`
	PrivateKey      string        `mapstructure:"private_key"`
	Mnemonic        string        `mapstructure:"mnemonic"`
	VerifierVersion string        `mapstructure:"verifier_version"`
	AuxTag          string        `mapstructure:"aux_tag"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func defaults() map[string]any {
	return map[string]any{
		KeyNetwork:         NetworkEVM,
		KeyRPCURL:          DefaultRPCURL,
		KeyRPCToken:        "",
		KeyChainID:         uint64(0),
		KeyPrivateKey:      "",
		KeyMnemonic:        "",
		KeyVerifierVersion: DefaultVerifierVersion,
		KeyAuxTag:          DefaultAuxTag,
		KeyTimeout:         time.Duration(0),
	}
}

// NewViper returns a viper instance with the defaults set and the environment
// variables prefixed with COMETPROVE_ bound
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every flag of flags whose name, with dashes turned into
// underscores, is a config key
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key := range defaults() {
		f := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "failed to bind flag %s", f.Name)
		}
	}
	return nil
}

// ReadEnvFile reads the dotenv file at path. Keys are the config keys in any
// case, so PRIVATE_KEY=0x... sets private_key. A missing file is an error
// unless required is false.
func ReadEnvFile(v *viper.Viper, path string, required bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "failed to read env file %s", path)
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to parse env file %s", path)
	}
	return nil
}

// Load decodes the settings held by v and validates them
func Load(v *viper.Viper) (*Config, error) {
	conf := &Config{}
	if err := v.Unmarshal(conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	conf.Network = strings.ToLower(strings.TrimSpace(conf.Network))
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) Validate() error {
	switch c.Network {
	case NetworkEVM:
		if c.PrivateKey == "" {
			return errors.New("private_key must be set with network=evm")
		}
		if _, err := c.ECDSAKey(); err != nil {
			return err
		}
	case NetworkAVM:
		if c.Mnemonic == "" {
			return errors.New("mnemonic must be set with network=avm")
		}
	default:
		return errors.Errorf("unknown network %q, expected %s or %s", c.Network, NetworkEVM, NetworkAVM)
	}
	if c.RPCURL == "" {
		return errors.New("rpc_url must be set")
	}
	if _, err := c.version(); err != nil {
		return err
	}
	if _, err := utils.ParseHexBytes(c.AuxTag); err != nil {
		return errors.Wrapf(err, "invalid aux_tag %q", c.AuxTag)
	}
	if c.Timeout < 0 {
		return errors.Errorf("timeout must not be negative: %v", c.Timeout)
	}
	return nil
}

func (c *Config) version() (*semver.Version, error) {
	version, err := semver.NewVersion(c.VerifierVersion)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid verifier_version %q", c.VerifierVersion)
	}
	return version, nil
}

// Tagged reports whether the configured verifier takes the auxiliary tag
func (c *Config) Tagged() (bool, error) {
	version, err := c.version()
	if err != nil {
		return false, err
	}
	constraint, err := semver.NewConstraint(TaggedVerifiers)
	if err != nil {
		return false, errors.Wrap(err, "invalid verifier constraint")
	}
	return constraint.Check(version), nil
}

// SubmitOptions returns the submit options matching the configured verifier
func (c *Config) SubmitOptions() ([]cp.SubmitOption, error) {
	tagged, err := c.Tagged()
	if err != nil || !tagged {
		return nil, err
	}
	tag, err := utils.ParseHexBytes(c.AuxTag)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid aux_tag %q", c.AuxTag)
	}
	return []cp.SubmitOption{cp.WithAuxTag(tag)}, nil
}

// ECDSAKey parses the EVM signing key
func (c *Config) ECDSAKey() (*ecdsa.PrivateKey, error) {
	key := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(c.PrivateKey), "0x"), "0X")
	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private_key")
	}
	return privateKey, nil
}
