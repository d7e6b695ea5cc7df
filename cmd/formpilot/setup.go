package main

import (
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sandevgo/formpilot/internal/config"
	"github.com/sandevgo/formpilot/internal/service/installer"
	"github.com/sandevgo/formpilot/pkg/log"
)

var setupCmd = &cobra.Command{
	Use:           "setup",
	Short:         "Configure FormPilot interactively",
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Setup logger
		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting setup")

		state, err := installer.RunWizard()
		if err != nil {
			return err
		}

		// Load the newly created .env so the vault sees the runtime config
		runtimePath := config.GetRuntimePath()
		envPath := filepath.Join(runtimePath, ".env")
		if err := godotenv.Load(envPath); err != nil {
			logger.Warn().Err(err).Str("path", envPath).Msg("failed to load .env file")
		}

		// The wizard keeps the key in memory; it lands encrypted in the vault
		if state.APIKey != "" {
			stores, err := openStores(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()

			if err := stores.Vault.StoreKey(ctx, state.Provider, state.APIKey); err != nil {
				return err
			}
			logger.Info().Str("provider", state.Provider).Msg("api key stored in vault")
		}

		logger.Info().Msgf("initialized runtime directory at: %s", runtimePath)
		logger.Info().Msg("Setup complete! You can now run 'formpilot start'.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
