package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/normanking/cortexcompanion/internal/config"
)

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: "Cortex Companion - a talking, emoting 3D companion",
	Long: `Cortex Companion answers your messages with a voiced reply and drives a
3D avatar that lip-syncs and emotes while the reply plays. Frames are
streamed to a renderer over a websocket.

Configuration:
  The companion looks for configuration in:
  1. --config flag (explicit path)
  2. $HOME/.cortexcompanion/config.yaml
  3. ./config.yaml (current directory)

Environment Variables:
  DEEPINFRA_API_KEY   - OpenAI-compatible chat key
  GEMINI_API_KEY      - Gemini chat key
  INWORLD_API_KEY     - Inworld TTS credentials
  ELEVENLABS_API_KEY  - ElevenLabs TTS key
  COMPANION_*         - any config key, e.g. COMPANION_STREAM_ADDR`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnv(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cortexcompanion/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with API keys")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(creditsCmd)

	creditsCmd.AddCommand(creditsBalanceCmd)
	creditsCmd.AddCommand(creditsGrantCmd)
	creditsCmd.AddCommand(creditsHistoryCmd)
	creditsCmd.AddCommand(creditsPackagesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEnv reads a dotenv file without overriding variables already set. A
// missing file is fine.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadConfig() (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return loader, cfg, nil
}
