package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/clinicadmin/clinic/internal/platform/hipaa"
)

// Key sources for the cipher and blind-index keys.
const (
	KeySourceEnv   = "env"
	KeySourceVault = "vault"
)

// MinJWTSecretLength is the shortest accepted session signing secret.
const MinJWTSecretLength = 32

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	HIPAAEncryptionKey string `mapstructure:"HIPAA_ENCRYPTION_KEY"`
	BlindIndexKey      string `mapstructure:"BLIND_INDEX_KEY"`
	KeySource          string `mapstructure:"HIPAA_KEY_SOURCE"`
	VaultAddr          string `mapstructure:"VAULT_ADDR"`
	VaultToken         string `mapstructure:"VAULT_TOKEN"`
	VaultKeyPath       string `mapstructure:"VAULT_KEY_PATH"`

	JWTSecret     string        `mapstructure:"JWT_SECRET"`
	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`
	SessionCookie string        `mapstructure:"SESSION_COOKIE"`
	UnlockWindow  time.Duration `mapstructure:"UNLOCK_WINDOW"`
	TOTPIssuer    string        `mapstructure:"TOTP_ISSUER"`

	CaptchaTTL      time.Duration `mapstructure:"CAPTCHA_TTL"`
	CaptchaAttempts int           `mapstructure:"CAPTCHA_ATTEMPTS"`

	ContractWarningDays int `mapstructure:"CONTRACT_WARNING_DAYS"`

	AuditBufferSize int `mapstructure:"AUDIT_BUFFER_SIZE"`
	AuditWorkers    int `mapstructure:"AUDIT_WORKERS"`

	RateLimitRequests int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
	LoginRateRPS      float64       `mapstructure:"LOGIN_RATE_RPS"`
	LoginRateBurst    int           `mapstructure:"LOGIN_RATE_BURST"`

	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

var defaults = map[string]any{
	"PORT":                  "8000",
	"ENV":                   "development",
	"DB_MAX_CONNS":          20,
	"DB_MIN_CONNS":          2,
	"CORS_ORIGINS":          "http://localhost:3000",
	"HIPAA_KEY_SOURCE":      KeySourceEnv,
	"VAULT_KEY_PATH":        "secret/data/clinic/keys",
	"SESSION_TTL":           "8h",
	"SESSION_COOKIE":        "session",
	"UNLOCK_WINDOW":         "12h",
	"TOTP_ISSUER":           "ClinicAdmin",
	"CAPTCHA_TTL":           "5m",
	"CAPTCHA_ATTEMPTS":      3,
	"CONTRACT_WARNING_DAYS": 30,
	"AUDIT_BUFFER_SIZE":     1024,
	"AUDIT_WORKERS":         2,
	"RATE_LIMIT_REQUESTS":   100,
	"RATE_LIMIT_WINDOW":     "1m",
	"LOGIN_RATE_RPS":        1,
	"LOGIN_RATE_BURST":      5,
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"HIPAA_ENCRYPTION_KEY", "BLIND_INDEX_KEY", "HIPAA_KEY_SOURCE", "VAULT_ADDR", "VAULT_TOKEN", "VAULT_KEY_PATH",
	"JWT_SECRET", "SESSION_TTL", "SESSION_COOKIE", "UNLOCK_WINDOW", "TOTP_ISSUER",
	"CAPTCHA_TTL", "CAPTCHA_ATTEMPTS", "CONTRACT_WARNING_DAYS", "AUDIT_BUFFER_SIZE", "AUDIT_WORKERS",
	"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "LOGIN_RATE_RPS", "LOGIN_RATE_BURST",
	"TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Load reads the environment, and a .env file when present.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = nil
			for _, o := range strings.Split(origins, ",") {
				if o = strings.TrimSpace(o); o != "" {
					cfg.CORSOrigins = append(cfg.CORSOrigins, o)
				}
			}
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run: a long enough
// session secret, well-formed keys, and keys present in production.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", MinJWTSecretLength)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.UnlockWindow < 0 {
		return fmt.Errorf("UNLOCK_WINDOW must not be negative")
	}

	switch c.KeySource {
	case KeySourceEnv:
		if c.IsProduction() && (c.HIPAAEncryptionKey == "" || c.BlindIndexKey == "") {
			return fmt.Errorf("HIPAA_ENCRYPTION_KEY and BLIND_INDEX_KEY are required in production")
		}
		if err := checkKey("HIPAA_ENCRYPTION_KEY", c.HIPAAEncryptionKey); err != nil {
			return err
		}
		if err := checkKey("BLIND_INDEX_KEY", c.BlindIndexKey); err != nil {
			return err
		}
		if c.HIPAAEncryptionKey != "" && c.HIPAAEncryptionKey == c.BlindIndexKey {
			return fmt.Errorf("BLIND_INDEX_KEY must differ from HIPAA_ENCRYPTION_KEY")
		}
	case KeySourceVault:
		if c.VaultAddr == "" || c.VaultToken == "" {
			return fmt.Errorf("VAULT_ADDR and VAULT_TOKEN are required when HIPAA_KEY_SOURCE is %q", KeySourceVault)
		}
	default:
		return fmt.Errorf("HIPAA_KEY_SOURCE must be %q or %q, got %q", KeySourceEnv, KeySourceVault, c.KeySource)
	}

	if c.CaptchaAttempts < 1 {
		return fmt.Errorf("CAPTCHA_ATTEMPTS must be at least 1")
	}
	if c.AuditBufferSize < 0 || c.AuditWorkers < 1 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must not be negative and AUDIT_WORKERS must be at least 1")
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	return nil
}

// TLSEnabled reports whether both TLS files are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func checkKey(name, value string) error {
	if value == "" {
		return nil
	}
	if _, err := hipaa.DecodeKey(value); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
