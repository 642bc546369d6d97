package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	JWTSecret   string `mapstructure:"JWT_SECRET"`
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`

	VaultAutolockMinutes int `mapstructure:"VAULT_AUTOLOCK_MINUTES"`

	AgentURL            string `mapstructure:"AGENT_URL"`
	AgentHMACKey        string `mapstructure:"AGENT_HMAC_KEY"`
	AgentTimeoutSeconds int    `mapstructure:"AGENT_TIMEOUT_SECONDS"`

	TransportCost      float64 `mapstructure:"TRANSPORT_COST"`
	EquipmentSetupCost float64 `mapstructure:"EQUIPMENT_SETUP_COST"`
	PerCaseTechCost    float64 `mapstructure:"PER_CASE_TECH_COST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("VAULT_AUTOLOCK_MINUTES", 15)
	v.SetDefault("AGENT_URL", "http://localhost:8001")
	v.SetDefault("AGENT_TIMEOUT_SECONDS", 30)
	v.SetDefault("TRANSPORT_COST", 500)
	v.SetDefault("EQUIPMENT_SETUP_COST", 200)
	v.SetDefault("PER_CASE_TECH_COST", 300)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_ISSUER")
	v.BindEnv("JWT_AUDIENCE")
	v.BindEnv("VAULT_AUTOLOCK_MINUTES")
	v.BindEnv("AGENT_URL")
	v.BindEnv("AGENT_HMAC_KEY")
	v.BindEnv("AGENT_TIMEOUT_SECONDS")
	v.BindEnv("TRANSPORT_COST")
	v.BindEnv("EQUIPMENT_SETUP_COST")
	v.BindEnv("PER_CASE_TECH_COST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if !cfg.IsDev() && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required outside development")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}
