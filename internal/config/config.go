// Package config loads runtime configuration for the charity platform
// from environment variables and optional YAML artifact files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Van103/fun-charity-sub001/internal/chain"
)

// Config is the full configuration for the charityd process.
type Config struct {
	// HTTP server.
	ListenAddr string
	AuditPath  string

	// Supabase project the realtime feed and REST client talk to.
	Supabase Supabase

	// Storage backends. Empty values select the in-memory store.
	PostgresDSN string
	Redis       Redis

	// Agora channel token issuing.
	TokenAppID string
	TokenKey   string

	// KYC document URL signing.
	KYCBaseURL string
	KYCSecret  string
	KYCAdmins  []string

	// Chain access for wallet balances and contract deployment.
	Chain Chain

	// Donation reconciliation.
	ReconcileSchedule string
	DonationMaxAge    time.Duration

	// Wallet balance cache.
	WalletTTL   time.Duration
	WalletPrice float64

	// Directory holding <lang>.yaml translation catalogs. Empty uses
	// the embedded defaults.
	TranslationsDir string
}

// Supabase holds project credentials.
type Supabase struct {
	ProjectURL string
	AnonKey    string
	JWTSecret  string
}

// Redis holds connection settings for the preference cache.
type Redis struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Chain holds RPC settings and the deployment artifact file.
type Chain struct {
	RPCURL        string
	ArtifactsPath string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		ListenAddr: getenv("CHARITY_LISTEN_ADDR", ":8080"),
		AuditPath:  os.Getenv("CHARITY_AUDIT_PATH"),
		Supabase: Supabase{
			ProjectURL: os.Getenv("SUPABASE_URL"),
			AnonKey:    os.Getenv("SUPABASE_ANON_KEY"),
			JWTSecret:  os.Getenv("SUPABASE_JWT_SECRET"),
		},
		PostgresDSN: os.Getenv("CHARITY_POSTGRES_DSN"),
		Redis: Redis{
			Addr:     os.Getenv("CHARITY_REDIS_ADDR"),
			Password: os.Getenv("CHARITY_REDIS_PASSWORD"),
		},
		TokenAppID: os.Getenv("AGORA_APP_ID"),
		TokenKey:   os.Getenv("AGORA_APP_KEY"),
		KYCBaseURL: os.Getenv("KYC_BASE_URL"),
		KYCSecret:  os.Getenv("KYC_SIGNING_SECRET"),
		Chain: Chain{
			RPCURL:        os.Getenv("CHAIN_RPC_URL"),
			ArtifactsPath: os.Getenv("CHAIN_ARTIFACTS_PATH"),
		},
		ReconcileSchedule: os.Getenv("DONATION_RECONCILE_SCHEDULE"),
		TranslationsDir:   os.Getenv("CHARITY_TRANSLATIONS_DIR"),
	}

	if admins := os.Getenv("KYC_ADMIN_IDS"); admins != "" {
		for _, id := range strings.Split(admins, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.KYCAdmins = append(cfg.KYCAdmins, id)
			}
		}
	}

	var err error
	if cfg.Redis.DB, err = intEnv("CHARITY_REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.TTL, err = durationEnv("CHARITY_REDIS_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.DonationMaxAge, err = durationEnv("DONATION_MAX_AGE", 0); err != nil {
		return nil, err
	}
	if cfg.WalletTTL, err = durationEnv("WALLET_CACHE_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.WalletPrice, err = floatEnv("WALLET_APPROX_PRICE", 0); err != nil {
		return nil, err
	}

	cfg.Normalize()
	return cfg, cfg.Validate()
}

// Normalize trims whitespace and fills defaults.
func (c *Config) Normalize() {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	c.Supabase.ProjectURL = strings.TrimRight(strings.TrimSpace(c.Supabase.ProjectURL), "/")
	c.PostgresDSN = strings.TrimSpace(c.PostgresDSN)
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
}

// Validate checks cross-field requirements. Most subsystems are
// optional and simply stay disabled when unconfigured.
func (c *Config) Validate() error {
	if c.Supabase.ProjectURL != "" && c.Supabase.AnonKey == "" {
		return fmt.Errorf("SUPABASE_ANON_KEY is required when SUPABASE_URL is set")
	}
	if c.TokenAppID != "" && c.TokenKey == "" {
		return fmt.Errorf("AGORA_APP_KEY is required when AGORA_APP_ID is set")
	}
	if c.KYCBaseURL != "" && c.KYCSecret == "" {
		return fmt.Errorf("KYC_SIGNING_SECRET is required when KYC_BASE_URL is set")
	}
	return nil
}

// SupabaseEnabled reports whether the realtime feed can be started.
func (c *Config) SupabaseEnabled() bool { return c.Supabase.ProjectURL != "" }

// LoadArtifacts reads the contract deployment bundle from the YAML file
// named in CHAIN_ARTIFACTS_PATH.
func (c *Config) LoadArtifacts() (chain.Artifacts, error) {
	return LoadArtifactsFromPath(c.Chain.ArtifactsPath)
}

// LoadArtifactsFromPath reads a contract deployment bundle from a
// specific YAML file.
func LoadArtifactsFromPath(path string) (chain.Artifacts, error) {
	var arts chain.Artifacts
	if path == "" {
		return arts, fmt.Errorf("artifacts path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return arts, fmt.Errorf("read artifacts: %w", err)
	}
	if err := yaml.Unmarshal(data, &arts); err != nil {
		return arts, fmt.Errorf("parse artifacts: %w", err)
	}
	for name, a := range map[string]chain.Artifact{
		"registry":     arts.Registry,
		"vault":        arts.Vault,
		"disbursement": arts.Disbursement,
	} {
		if strings.TrimSpace(a.Bytecode) == "" {
			return arts, fmt.Errorf("artifact %s: bytecode is required", name)
		}
	}
	return arts, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
