package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage provider API keys in the encrypted vault",
}

var keySetCmd = &cobra.Command{
	Use:          "set <provider>",
	Short:        "Store an API key for a provider",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		provider := strings.ToLower(args[0])

		fmt.Printf("Enter API key for %s: ", provider)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return err
		}
		apiKey := strings.TrimSpace(string(raw))
		if apiKey == "" {
			return fmt.Errorf("empty key")
		}

		stores, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer stores.Close()

		if err := stores.Vault.StoreKey(ctx, provider, apiKey); err != nil {
			return err
		}
		fmt.Printf("key for %s stored\n", provider)
		return nil
	},
}

var keyRmCmd = &cobra.Command{
	Use:          "rm <provider>",
	Short:        "Delete a provider's API key",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		stores, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer stores.Close()

		provider := strings.ToLower(args[0])
		if err := stores.Vault.DeleteKey(ctx, provider); err != nil {
			return err
		}
		fmt.Printf("key for %s deleted\n", provider)
		return nil
	},
}

var keyStatusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Show which providers have a usable key",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		stores, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer stores.Close()

		providers, err := stores.Vault.Providers(ctx)
		if err != nil {
			return err
		}
		if len(providers) == 0 {
			fmt.Println("no keys stored, run 'formpilot setup' or 'formpilot key set <provider>'")
			return nil
		}

		for _, p := range providers {
			// HasKey decrypts, so a fingerprint change shows up here
			state := "ok"
			if !stores.Vault.HasKey(ctx, p) {
				state = "undecryptable (device changed?)"
			}
			fmt.Printf("%-12s %s\n", p, state)
		}
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd, keyRmCmd, keyStatusCmd)
	rootCmd.AddCommand(keyCmd)
}
