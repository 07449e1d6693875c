package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Auth     AuthConfig     `json:"auth"`
	Agent    AgentConfig    `json:"agent"`
}

type ServerConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	CORSOrigins string `json:"cors_origins"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// AgentConfig locates the remote agent platform's reasoning engine.
type AgentConfig struct {
	ProjectID  string        `json:"project_id"`
	Location   string        `json:"location"`
	ResourceID string        `json:"resource_id"`
	Timeout    time.Duration `json:"timeout"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	homeDir, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".student360"))
	}

	// Set defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.cors_origins", "http://localhost:3000,http://localhost:5173")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "student360")
	viper.SetDefault("database.database", "student360")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("agent.location", "us-central1")
	viper.SetDefault("agent.timeout", 30*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Missing config file is fine, defaults plus env overrides apply
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvOverrides(&cfg)

	return &cfg, nil
}

func loadEnvOverrides(cfg *Config) {
	if port := os.Getenv("STUDENT360_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("STUDENT360_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if origins := os.Getenv("STUDENT360_CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = origins
	}

	// Database overrides
	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}

	if secret := os.Getenv("STUDENT360_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	// Agent platform overrides
	if project := os.Getenv("GOOGLE_CLOUD_PROJECT_ID"); project != "" {
		cfg.Agent.ProjectID = project
	}
	if location := os.Getenv("GOOGLE_CLOUD_LOCATION"); location != "" {
		cfg.Agent.Location = location
	}
	if resource := os.Getenv("RESOURCE_ID"); resource != "" {
		cfg.Agent.ResourceID = resource
	}
	if timeout := os.Getenv("AGENT_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Agent.Timeout = d
		}
	}
}
