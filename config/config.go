package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration decoded from TOML. Missing files fall
// back to defaults so a bare `tradefind` start works out of the box.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	JournalPath   string `toml:"JournalPath"`
	Environment   string `toml:"Environment"`
	DevFaucet     bool   `toml:"DevFaucet"`

	// Paused lists module names (e.g. "pool", "receivable") whose operations
	// are administratively suspended at startup.
	Paused []string `toml:"Paused"`

	Fees      Fees      `toml:"fees"`
	Roles     Roles     `toml:"roles"`
	Treasury  Treasury  `toml:"treasury"`
	Auth      Auth      `toml:"auth"`
	RateLimit RateLimit `toml:"ratelimit"`
	Telemetry Telemetry `toml:"telemetry"`
	Log       Log       `toml:"log"`
}

// Fees is the fee and incentive policy stamped onto newly created pools, in
// basis points.
type Fees struct {
	PlatformFeeBps uint32 `toml:"PlatformFeeBps"`
	AMCFeeBps      uint32 `toml:"AMCFeeBps"`
	RewardBps      uint32 `toml:"RewardBps"`
}

// Roles lists the bech32 addresses holding administrative capabilities.
type Roles struct {
	Admins    []string `toml:"Admins"`
	Verifiers []string `toml:"Verifiers"`
}

// Treasury names the fee recipients for the disbursement split.
type Treasury struct {
	Platform string `toml:"Platform"`
	AMC      string `toml:"AMC"`
}

// Auth configures the gateway bearer-token check.
type Auth struct {
	Enabled    bool   `toml:"Enabled"`
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
}

// RateLimit bounds per-client request rates at the gateway.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
}

// Log configures file logging rotation for the daemon.
type Log struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddress: ":8645",
		DataDir:       "./tradefin-data",
		Fees: Fees{
			PlatformFeeBps: 100,
			AMCFeeBps:      200,
			RewardBps:      50,
		},
		RateLimit: RateLimit{RequestsPerMinute: 600, Burst: 30},
		Log:       Log{MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30},
	}
}

// Load reads the configuration from the given path, applying defaults for
// fields left unset. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown field %s in %s", undecoded[0], path)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = Default().DataDir
	}
	if strings.TrimSpace(cfg.JournalPath) == "" {
		cfg.JournalPath = filepath.Join(cfg.DataDir, "journal.db")
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the daemon cannot safely run with.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: listen address required")
	}
	if uint64(c.Fees.PlatformFeeBps)+uint64(c.Fees.AMCFeeBps) > 10_000 {
		return fmt.Errorf("config: platform and AMC fees exceed 100%%")
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("config: auth enabled without an HMAC secret")
	}
	return nil
}
