package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Page    PageConfig
	Ollama  OllamaConfig
	Storage StorageConfig
	Respond RespondConfig
	Publish PublishConfig
	API     APIConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type PageConfig struct {
	// AccessToken is the user access token used to resolve manageable pages.
	AccessToken string
	// ID optionally pins the page to resolve; empty means "first manageable page".
	ID string
	// BaseURL of the graph-style API.
	BaseURL string
}

type OllamaConfig struct {
	BaseURL string
	// Model used for reply generation. Empty disables the generative
	// backend; replies fall back to a static acknowledgment.
	Model string
}

type StorageConfig struct {
	DataDir string
}

type RespondConfig struct {
	MaxReplies  int
	PostsToScan int
	// ReplyDelay is the fixed pause after each posted reply, e.g. "2s".
	ReplyDelay string
	// Cron expression for scheduled respond runs in serve mode.
	// Empty disables scheduling.
	Cron string
}

type PublishConfig struct {
	// Delay is the fixed pause between published posts, e.g. "5s".
	Delay string
}

type APIConfig struct {
	// Token protects the management HTTP endpoints (bearer auth).
	Token string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Page: PageConfig{
			BaseURL: "https://graph.facebook.com/v19.0",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Respond: RespondConfig{
			MaxReplies:  10,
			PostsToScan: 5,
			ReplyDelay:  "2s",
			Cron:        "",
		},
		Publish: PublishConfig{
			Delay: "5s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/pagebot/config.json, then applies PAGEBOT_* environment
// overrides. A .env file in the working directory is loaded first so local
// deployments can keep tokens out of the shell profile.
//
// Secrets (page access token, API bearer token) are env-only and never
// written to the config file.
func Load() (Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Page.AccessToken == "" {
		return Config{}, fmt.Errorf(
			"missing required config: page access token. Set it via environment variable PAGEBOT_ACCESS_TOKEN or a .env file")
	}

	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "pagebot-data"
		}
	}
	return filepath.Join(dir, "pagebot")
}
