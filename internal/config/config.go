package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration, loaded from a yaml file
// with environment variable overrides.
type Config struct {
	APIPort int `mapstructure:"apiPort"`

	Database struct {
		Type            string `mapstructure:"type"` // "postgres" or "sqlite"
		Host            string `mapstructure:"host"`
		Port            string `mapstructure:"port"`
		User            string `mapstructure:"user"`
		Password        string `mapstructure:"password"`
		Name            string `mapstructure:"name"`
		SSLMode         string `mapstructure:"sslMode"`
		Path            string `mapstructure:"path"` // sqlite only
		MaxOpenConns    int    `mapstructure:"maxOpenConns"`
		MaxIdleConns    int    `mapstructure:"maxIdleConns"`
		ConnMaxLifetime string `mapstructure:"connMaxLifetime"`
	} `mapstructure:"database"`

	Auth struct {
		JWTSecret     string        `mapstructure:"jwtSecret"`
		TokenDuration time.Duration `mapstructure:"tokenDuration"`
	} `mapstructure:"auth"`

	OAuth struct {
		Google struct {
			ClientID     string `mapstructure:"clientId"`
			ClientSecret string `mapstructure:"clientSecret"`
			RedirectURL  string `mapstructure:"redirectUrl"`
		} `mapstructure:"google"`
		GitHub struct {
			ClientID     string `mapstructure:"clientId"`
			ClientSecret string `mapstructure:"clientSecret"`
			RedirectURL  string `mapstructure:"redirectUrl"`
		} `mapstructure:"github"`
	} `mapstructure:"oauth"`

	FrontendURL string `mapstructure:"frontendUrl"`
}

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TRADEPOST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotExist(err) {
			return nil, err
		}
		log.Printf("Warning: could not read config file %s: %v. Using defaults and environment variables.", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.APIPort == 0 {
		cfg.APIPort = 8081
		log.Println("apiPort not specified, using default 8081")
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
		log.Println("database type not specified, defaulting to sqlite")
	}
	if cfg.Database.Type == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = "tradepost.db"
		log.Println("database path not specified, using default tradepost.db")
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwtSecret is required (set TRADEPOST_AUTH_JWTSECRET)")
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 7 * 24 * time.Hour
		log.Println("auth.tokenDuration not specified, using default 168h")
	}

	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:3000"
		log.Println("frontendUrl not specified, using default http://localhost:3000")
	}

	return &cfg, nil
}

// PostgresDSN assembles the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func isNotExist(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file")
}
