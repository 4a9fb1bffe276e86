package config

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Store      Store      `yaml:"store"`
	Generation Generation `yaml:"generation"`
	Server     Server     `yaml:"server"`
	Auth       Auth       `yaml:"auth"`
	Output     Output     `yaml:"output"`
	Logging    Logging    `yaml:"logging"`
}

type Store struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Path   string `yaml:"path"`
}

type Generation struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	OllamaURL   string  `yaml:"ollama_url"`
	OpenAIModel string  `yaml:"openai_model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Auth configures validation of identity provider tokens.
type Auth struct {
	SecretEnv string `yaml:"secret_env"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for startopia.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "startopia")
}

// DataDir returns the XDG data directory for startopia.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "startopia")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/startopia/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'startopia init' to create a default config",
		xdgConfig,
	)
}

// LoadEnv reads .env files into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	log.Printf("Loaded environment from %v", existing)
	return nil
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Store: Store{Driver: "sqlite"},
		Generation: Generation{
			Provider:    "openai",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   1024,
			Temperature: 0.7,
		},
		Server: Server{Host: "127.0.0.1", Port: 8000},
		Auth: Auth{SecretEnv: "STARTOPIA_JWT_SECRET"},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q (want sqlite or postgres)", c.Store.Driver)
	}
	if c.Generation.MaxTokens <= 0 {
		return fmt.Errorf("generation.max_tokens must be positive, got %d", c.Generation.MaxTokens)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// StorePath returns the SQLite file used when the sqlite driver is selected.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.GetDataDir(), "startopia.db")
}

// AuthSecret returns the token signing secret from the environment.
func (c *Config) AuthSecret() string {
	return os.Getenv(c.Auth.SecretEnv)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
