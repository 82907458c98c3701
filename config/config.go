package config

import (
	"os"
	"os/user"
	"path"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/naoina/toml"
)

type Common struct {
	Level       string `envconfig:"LEVEL"` // alpha, prod
	ServiceName string `envconfig:"SERVICE_NAME"`
	Port        int    `envconfig:"PORT"`
}

type LogInfo struct {
	Path       string `envconfig:"LOG_PATH"`
	MaxAgeHour int
	RotateHour int
}

type Keystore struct {
	Backend string `envconfig:"KEYSTORE_BACKEND"` // file, leveldb (empty = probe)
	Dir     string `envconfig:"KEYSTORE_DIR"`
	Prefix  string `envconfig:"KEYSTORE_PREFIX"`
}

type Chain struct {
	RPCURL  string `envconfig:"RPC_URL"`
	ChainID int64  `envconfig:"CHAIN_ID"`
}

// Export controls the rate limit applied to mnemonic/private key exports.
type Export struct {
	MaxAttempts int
	WindowSec   int
	CooldownSec int
}

type Wallet struct {
	AccountTimeoutMin int
}

type Config struct {
	Common   Common
	LogInfo  LogInfo
	Keystore Keystore
	Chain    Chain
	Export   Export
	Wallet   Wallet
}

func NewConfig(filepath string) (*Config, error) {
	c := defaultConfig()

	if filepath == "" {
		workDir, _ := os.Getwd()
		rootDir := FindProjectRoot(workDir)
		candidate := path.Join(rootDir, "config", "config.toml")
		if _, err := os.Stat(candidate); err == nil {
			filepath = candidate
		}
	}

	if filepath != "" {
		file, err := os.Open(filepath)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(c); err != nil {
			return nil, err
		}
	}

	// Environment variables override file values (GIWA_PORT, GIWA_RPC_URL, ...)
	if err := envconfig.Process("giwa", c); err != nil {
		return nil, err
	}

	c.sanitize()
	return c, nil
}

func defaultConfig() *Config {
	return &Config{
		Common: Common{
			Level:       "prod",
			ServiceName: "giwa-walletd",
			Port:        8545,
		},
		LogInfo: LogInfo{
			Path:       "~/.giwa-walletd/logs/giwad",
			MaxAgeHour: 24 * 7,
			RotateHour: 24,
		},
		Keystore: Keystore{
			Dir:    "~/.giwa-walletd/keystore",
			Prefix: "giwa",
		},
		Chain: Chain{
			RPCURL:  "https://sepolia-rpc.giwa.io",
			ChainID: 91342,
		},
		Export: Export{
			MaxAttempts: 3,
			WindowSec:   60,
			CooldownSec: 300,
		},
		Wallet: Wallet{
			AccountTimeoutMin: 5,
		},
	}
}

func (p *Config) sanitize() {
	if len(p.LogInfo.Path) > 0 && p.LogInfo.Path[0] == byte('~') {
		p.LogInfo.Path = path.Join(HomeDir(), p.LogInfo.Path[1:])
	}
	if len(p.Keystore.Dir) > 0 && p.Keystore.Dir[0] == byte('~') {
		p.Keystore.Dir = path.Join(HomeDir(), p.Keystore.Dir[1:])
	}
}

// AccountTimeout returns the hot account inactivity timeout.
func (p *Config) AccountTimeout() time.Duration {
	return time.Duration(p.Wallet.AccountTimeoutMin) * time.Minute
}

// ExportWindow returns the export rate limit window.
func (p *Config) ExportWindow() time.Duration {
	return time.Duration(p.Export.WindowSec) * time.Second
}

// ExportCooldown returns the cooldown applied after the export limit is hit.
func (p *Config) ExportCooldown() time.Duration {
	return time.Duration(p.Export.CooldownSec) * time.Second
}

func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// FindProjectRoot finds the project root directory
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if _, err := os.Stat(path.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parentDir := path.Dir(dir)
		if parentDir == dir {
			return startDir
		}
		dir = parentDir
	}
}
