package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"lendnet/crypto"

	"github.com/BurntSushi/toml"
)

// Config is the node's on-disk configuration, persisted as TOML.
type Config struct {
	DataDir string `toml:"DataDir"`
	Backend string `toml:"Backend"`
	LogFile string `toml:"LogFile"`

	OracleAddress string `toml:"OracleAddress"`
	Owner         string `toml:"Owner"`

	MinScore            uint64 `toml:"MinScore"`
	MaxScore            uint64 `toml:"MaxScore"`
	MinRequiredScore    uint64 `toml:"MinRequiredScore"`
	BaseInterestRateBps uint64 `toml:"BaseInterestRateBps"`
	BaseLoanAmount      string `toml:"BaseLoanAmount"`

	TokenSymbol  string `toml:"TokenSymbol"`
	FeeBps       uint64 `toml:"FeeBps"`
	FaucetAmount string `toml:"FaucetAmount"`
}

// Load reads the configuration at path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./lendnet-data"
	}
	if strings.TrimSpace(c.Backend) == "" {
		c.Backend = "leveldb"
	}
	if c.MaxScore == 0 {
		c.MaxScore = 1000
	}
	if strings.TrimSpace(c.TokenSymbol) == "" {
		c.TokenSymbol = "LND"
	}
	if strings.TrimSpace(c.BaseLoanAmount) == "" {
		c.BaseLoanAmount = "1000"
	}
	if strings.TrimSpace(c.FaucetAmount) == "" {
		c.FaucetAmount = "10"
	}
}

// Validate checks cross-field consistency and address encodings.
func (c *Config) Validate() error {
	switch c.Backend {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Backend)
	}
	if c.MinScore > c.MaxScore {
		return fmt.Errorf("config: MinScore %d exceeds MaxScore %d", c.MinScore, c.MaxScore)
	}
	if c.FeeBps > 10_000 {
		return fmt.Errorf("config: FeeBps %d exceeds 10000", c.FeeBps)
	}
	if _, err := c.OracleAddr(); err != nil {
		return err
	}
	if _, err := c.OwnerAddr(); err != nil {
		return err
	}
	if _, err := c.BaseLoan(); err != nil {
		return err
	}
	if _, err := c.Faucet(); err != nil {
		return err
	}
	return nil
}

// OracleAddr decodes the configured oracle address.
func (c *Config) OracleAddr() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(c.OracleAddress)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("config: invalid OracleAddress: %w", err)
	}
	return addr, nil
}

// OwnerAddr decodes the configured owner address.
func (c *Config) OwnerAddr() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(c.Owner)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("config: invalid Owner: %w", err)
	}
	return addr, nil
}

// BaseLoan parses the base loan amount used for maximum-loan derivation.
func (c *Config) BaseLoan() (*big.Int, error) {
	return parseAmount("BaseLoanAmount", c.BaseLoanAmount)
}

// Faucet parses the faucet claim amount.
func (c *Config) Faucet() (*big.Int, error) {
	return parseAmount("FaucetAmount", c.FaucetAmount)
}

func parseAmount(field, raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid %s %q", field, raw)
	}
	return amount, nil
}

// createDefault generates fresh oracle and owner keys, writes a default
// configuration file and returns it.
func createDefault(path string) (*Config, error) {
	oracleKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	ownerKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:             "./lendnet-data",
		Backend:             "leveldb",
		OracleAddress:       oracleKey.PubKey().Address().String(),
		Owner:               ownerKey.PubKey().Address().String(),
		MinScore:            0,
		MaxScore:            1000,
		MinRequiredScore:    300,
		BaseInterestRateBps: 800,
		BaseLoanAmount:      "1000",
		TokenSymbol:         "LND",
		FeeBps:              0,
		FaucetAmount:        "10",
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
