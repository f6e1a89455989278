package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PAGEBOT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "page.access_token", typ: kString, env: "PAGEBOT_ACCESS_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Page.AccessToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Page.AccessToken },
	},
	{
		key: "page.id", typ: kString, env: "PAGEBOT_PAGE_ID",
		apply:   func(cfg *Config, v any) { cfg.Page.ID = v.(string) },
		extract: func(cfg Config) any { return cfg.Page.ID },
	},
	{
		key: "page.base_url", typ: kString, env: "PAGEBOT_PAGE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Page.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Page.BaseURL },
	},
	{
		key: "ollama.base_url", typ: kString, env: "PAGEBOT_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "PAGEBOT_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PAGEBOT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "respond.max_replies", typ: kInt, env: "PAGEBOT_RESPOND_MAX_REPLIES",
		apply:   func(cfg *Config, v any) { cfg.Respond.MaxReplies = v.(int) },
		extract: func(cfg Config) any { return cfg.Respond.MaxReplies },
	},
	{
		key: "respond.posts_to_scan", typ: kInt, env: "PAGEBOT_RESPOND_POSTS_TO_SCAN",
		apply:   func(cfg *Config, v any) { cfg.Respond.PostsToScan = v.(int) },
		extract: func(cfg Config) any { return cfg.Respond.PostsToScan },
	},
	{
		key: "respond.reply_delay", typ: kString, env: "PAGEBOT_RESPOND_REPLY_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Respond.ReplyDelay = v.(string) },
		extract: func(cfg Config) any { return cfg.Respond.ReplyDelay },
	},
	{
		key: "respond.cron", typ: kString, env: "PAGEBOT_RESPOND_CRON",
		apply:   func(cfg *Config, v any) { cfg.Respond.Cron = v.(string) },
		extract: func(cfg Config) any { return cfg.Respond.Cron },
	},
	{
		key: "publish.delay", typ: kString, env: "PAGEBOT_PUBLISH_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Publish.Delay = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.Delay },
	},
	{
		key: "api.token", typ: kString, env: "PAGEBOT_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
	{
		key: "log.level", typ: kString, env: "PAGEBOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
