package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// DatabaseURL is optional; without it readings live in memory and
	// vanish on restart.
	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr             string `yaml:"redisAddr"`
	RedisPassword         string `yaml:"redisPassword"`
	LLMRateLimitPerMinute int    `yaml:"llmRateLimitPerMinute"`

	LLMBaseURL string `yaml:"llmBaseURL"`
	LLMAPIKey  string `yaml:"llmAPIKey"`
	LLMModel   string `yaml:"llmModel"`

	JWKSURL       string `yaml:"jwksURL"`
	TokenIssuer   string `yaml:"tokenIssuer"`
	TokenAudience string `yaml:"tokenAudience"`

	// PublicBaseURL is the web client origin used in share links.
	PublicBaseURL string `yaml:"publicBaseURL"`

	// TrustedProxies lists proxy IPs/CIDRs whose forwarded headers are
	// honored when resolving client IPs.
	TrustedProxies []string `yaml:"trustedProxies"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("JWKS_URL"); v != "" {
		cfg.JWKSURL = v
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.PublicBaseURL = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.LLMBaseURL == "" {
		return errors.New("config: llmBaseURL is required (set in config.yaml or LLM_BASE_URL)")
	}
	if cfg.LLMModel == "" {
		return errors.New("config: llmModel is required (set in config.yaml or LLM_MODEL)")
	}
	if cfg.JWKSURL == "" {
		return errors.New("config: jwksURL is required (set in config.yaml or JWKS_URL)")
	}
	if cfg.PublicBaseURL == "" {
		return errors.New("config: publicBaseURL is required (set in config.yaml or PUBLIC_BASE_URL)")
	}
	return nil
}
