package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"quizrunner"

	"gopkg.in/yaml.v3"
)

// Config holds all the configuration of the quiz server
type Config struct {
	Server  ServerConfig `yaml:"server"`
	Store   StoreConfig  `yaml:"store"`
	Redis   RedisConfig  `yaml:"redis"`
	Quiz    QuizConfig   `yaml:"quiz"`
	OpenAI  OpenAIConfig `yaml:"openai"`
	Verbose bool         `yaml:"verbose"`
}

type ServerConfig struct {
	Port          string `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	// SecureCookies marks the session cookie Secure. Only enable it behind HTTPS.
	SecureCookies bool `yaml:"secure_cookies"`
}

type StoreConfig struct {
	// Backend is one of memory, sqlite or redis
	Backend    string        `yaml:"backend"`
	TTL        time.Duration `yaml:"ttl"`
	SQLitePath string        `yaml:"sqlite_path"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// QuizSource is a question source offered on the home page
type QuizSource struct {
	Name string `yaml:"name"`
	Ref  string `yaml:"ref"`
}

type QuizConfig struct {
	DefaultSource string       `yaml:"default_source"`
	Sources       []QuizSource `yaml:"sources"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	LogDir string `yaml:"log_dir"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8180",
			SessionSecret: "change-me-session-secret",
		},
		Store: StoreConfig{
			Backend:    "memory",
			TTL:        quizrunner.DefaultSessionTTL,
			SQLitePath: "./quiz.db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		Quiz: QuizConfig{
			DefaultSource: "questions.json",
		},
		OpenAI: OpenAIConfig{
			LogDir: "log",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path if it is not
// empty, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config %s: %w", path, err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.SessionSecret = getEnv("SESSION_SECRET", cfg.Server.SessionSecret)
	cfg.Server.SecureCookies = getEnvAsBool("SECURE_COOKIES", cfg.Server.SecureCookies)
	cfg.Store.Backend = strings.ToLower(getEnv("STORE_BACKEND", cfg.Store.Backend))
	cfg.Store.TTL = getEnvAsDuration("SESSION_TTL", cfg.Store.TTL)
	cfg.Store.SQLitePath = getEnv("DB_PATH", cfg.Store.SQLitePath)
	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnv("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Quiz.DefaultSource = getEnv("QUIZ_SOURCE", cfg.Quiz.DefaultSource)
	cfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.Model = getEnv("OPENAI_MODEL", cfg.OpenAI.Model)
	cfg.OpenAI.LogDir = getEnv("OPENAI_LOG_DIR", cfg.OpenAI.LogDir)
	cfg.Verbose = getEnvAsBool("VERBOSE", cfg.Verbose)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if len(c.Server.SessionSecret) < 16 {
		return fmt.Errorf("session secret must be at least 16 bytes")
	}
	for _, src := range c.Quiz.Sources {
		if src.Name == "" || src.Ref == "" {
			return fmt.Errorf("quiz source needs both name and ref: %+v", src)
		}
	}
	return nil
}

// SourceRef resolves a source name from the home page to its reference. Unknown names
// resolve to the default source.
func (c *Config) SourceRef(name string) string {
	for _, src := range c.Quiz.Sources {
		if src.Name == name {
			return src.Ref
		}
	}
	return c.Quiz.DefaultSource
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
