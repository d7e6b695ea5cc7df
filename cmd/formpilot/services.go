package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/sandevgo/formpilot/internal/config"
	"github.com/sandevgo/formpilot/internal/fingerprint"
	"github.com/sandevgo/formpilot/internal/providers/llm"
	"github.com/sandevgo/formpilot/internal/service/capture"
	"github.com/sandevgo/formpilot/internal/service/detect"
	"github.com/sandevgo/formpilot/internal/service/matcher"
	"github.com/sandevgo/formpilot/internal/service/preview"
	"github.com/sandevgo/formpilot/internal/service/session"
	"github.com/sandevgo/formpilot/internal/service/sitectx"
	"github.com/sandevgo/formpilot/internal/service/vault"
	"github.com/sandevgo/formpilot/internal/storage/sqlite"
	"github.com/sandevgo/formpilot/internal/transport/httpapi"
	"github.com/sandevgo/formpilot/internal/transport/mcpsrv"
	"github.com/sandevgo/formpilot/pkg/log"
	"github.com/sandevgo/formpilot/pkg/srv"
)

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// init env
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	providerCfg := config.NewProviderConfig(ctx)

	// 2. Storage
	db, err := initStorage(ctx, appCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	services = append(services, srv.NewCleanup(db.Close))

	memoriesRepo := sqlite.NewMemoryRepo(db)
	sessionsRepo := sqlite.NewSessionRepo(db)
	vaultRepo := sqlite.NewVaultRepo(db)

	// 3. Key Vault
	broker := fingerprint.NewBroker()
	services = append(services, srv.NewCleanup(func() error {
		broker.Close()
		return nil
	}))
	keyVault := vault.New(vaultRepo, broker)

	// 4. AI Provider. A missing key disables matching but never blocks
	// startup: capture falls back to the keyword categorizer.
	var categorizer capture.Categorizer
	aiProvider, err := llm.NewProvider(ctx, providerCfg, keyVault)
	if err != nil {
		logger.Warn().Err(err).Msg("llm provider unavailable, using keyword categorizer")
		aiProvider = llm.NewUnavailable(err)
		categorizer = capture.KeywordCategorizer{}
	} else {
		categorizer = capture.NewLLMCategorizer(aiProvider)
	}

	// 5. Pipeline services
	var sessionOpts []session.Option
	if appCfg.StrictTransitions {
		sessionOpts = append(sessionOpts, session.WithStrictTransitions())
	}
	sessions := session.NewManager(sessionsRepo, sessionOpts...)

	if appCfg.SessionRetention > 0 {
		services = append(services, session.NewJanitor(sessionsRepo, appCfg.SessionRetention))
	}

	detector := detect.NewDetector(sitectx.NewExtractor())
	match := matcher.NewMatcher(aiProvider, matcher.WithTokenBudget(appCfg.MemoryTokenBudget))
	captureSvc := capture.NewService(memoriesRepo, categorizer)
	previews := preview.NewCoordinator()

	// 6. Transports
	if appCfg.EnableHTTP {
		services = append(services, httpapi.NewServer(appCfg.GetListenAddr(), httpapi.Services{
			Detector: detector,
			Sessions: sessions,
			Matcher:  match,
			Capture:  captureSvc,
			Preview:  previews,
			Memories: memoriesRepo,
		}))
	}
	if appCfg.EnableMCP {
		services = append(services, mcpsrv.NewServer(mcpsrv.Services{
			Detector: detector,
			Matcher:  match,
			Capture:  captureSvc,
			Memories: memoriesRepo,
		}))
	}

	return services
}

func initStorage(ctx context.Context, cfg *config.AppConfig) (*sql.DB, error) {
	return sqlite.NewDB(ctx, cfg.GetDatabasePath())
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
