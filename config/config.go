package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"deedvault/crypto"
	"deedvault/escrow"
)

const rpcTokenEnv = "DEEDVAULT_RPC_TOKEN"

type Config struct {
	ListenAddress        string `toml:"ListenAddress"`
	DataDir              string `toml:"DataDir"`
	Backend              string `toml:"Backend"`
	Env                  string `toml:"Env"`
	RPCToken             string `toml:"RPCToken"`
	Seller               string `toml:"Seller"`
	Inspector            string `toml:"Inspector"`
	Lender               string `toml:"Lender"`
	LegalReviewer        string `toml:"LegalReviewer"`
	Custodian            string `toml:"Custodian"`
	RequireLegalApproval bool   `toml:"RequireLegalApproval"`
}

// Load loads the configuration from the given path. A missing file is
// populated with defaults, including freshly generated dev role identities.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s contains unknown keys: %s", path, strings.Join(keys, ", "))
	}

	applyDefaults(cfg)
	if token := strings.TrimSpace(os.Getenv(rpcTokenEnv)); token != "" {
		cfg.RPCToken = token
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8644"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./deedvault-data"
	}
	if strings.TrimSpace(cfg.Backend) == "" {
		cfg.Backend = "leveldb"
	}
}

func validate(cfg *Config) error {
	switch cfg.Backend {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("unsupported storage backend %q (expected leveldb, bolt, or memory)", cfg.Backend)
	}
	for name, value := range map[string]string{
		"Seller":        cfg.Seller,
		"Inspector":     cfg.Inspector,
		"Lender":        cfg.Lender,
		"LegalReviewer": cfg.LegalReviewer,
		"Custodian":     cfg.Custodian,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("config field %s is required", name)
		}
		if _, err := crypto.DecodeAddress(value); err != nil {
			return fmt.Errorf("config field %s: %w", name, err)
		}
	}
	return nil
}

// LedgerConfig converts the decoded role addresses into the ledger's
// construction parameters.
func (c *Config) LedgerConfig() (escrow.Config, error) {
	out := escrow.Config{RequireLegalApproval: c.RequireLegalApproval}
	fields := []struct {
		name  string
		value string
		dst   *[20]byte
	}{
		{"Seller", c.Seller, &out.Seller},
		{"Inspector", c.Inspector, &out.Inspector},
		{"Lender", c.Lender, &out.Lender},
		{"LegalReviewer", c.LegalReviewer, &out.LegalReviewer},
		{"Custodian", c.Custodian, &out.Custodian},
	}
	for _, field := range fields {
		addr, err := crypto.DecodeAddress(field.value)
		if err != nil {
			return escrow.Config{}, fmt.Errorf("config field %s: %w", field.name, err)
		}
		copy(field.dst[:], addr.Bytes())
	}
	return out, nil
}

// createDefault writes a usable dev configuration: fresh keypairs back every
// role identity so a local daemon starts without manual setup. Production
// deployments must replace them.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	roles := []*string{&cfg.Seller, &cfg.Inspector, &cfg.Lender, &cfg.LegalReviewer, &cfg.Custodian}
	for _, role := range roles {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, fmt.Errorf("generate role key: %w", err)
		}
		*role = key.PubKey().Address().String()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	if token := strings.TrimSpace(os.Getenv(rpcTokenEnv)); token != "" {
		cfg.RPCToken = token
	}
	return cfg, nil
}
