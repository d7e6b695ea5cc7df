package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/formpilot/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"FORMPILOT_RUNTIME_PATH" envDefault:".formpilot"`

	// Transport flags
	ListenAddr string `env:"FORMPILOT_LISTEN_ADDR" envDefault:"127.0.0.1:8796"`
	EnableHTTP bool   `env:"FORMPILOT_ENABLE_HTTP" envDefault:"true"`
	EnableMCP  bool   `env:"FORMPILOT_ENABLE_MCP" envDefault:"false"`

	// Session history retention. Zero keeps everything.
	SessionRetention time.Duration `env:"FORMPILOT_SESSION_RETENTION" envDefault:"0"`

	// Matching behaviour
	StrictTransitions bool `env:"FORMPILOT_STRICT_TRANSITIONS" envDefault:"false"`
	MemoryTokenBudget int  `env:"FORMPILOT_MEMORY_TOKEN_BUDGET" envDefault:"2000"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	if filepath.IsAbs(c.RuntimePath) {
		return c.RuntimePath
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, c.RuntimePath)
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.GetRuntimePath(), "formpilot.db")
}

func (c AppConfig) GetListenAddr() string {
	return c.ListenAddr
}
