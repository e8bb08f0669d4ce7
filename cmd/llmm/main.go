package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bitdruid/llmm/internal/api"
)

var version = api.AppVersion

var (
	noColor      bool
	outputFormat string
	serverURL    string
)

var rootCmd = &cobra.Command{
	Use:   "llmm",
	Short: "Manage and chat with local Ollama models",
	Long: `llmm serves a dashboard API in front of a local Ollama instance and talks
to it from the terminal: list, pull, update and delete models, chat, and
browse the action history.

Examples:
  llmm serve
  llmm models list -o yaml
  llmm models pull llama3:8b
  llmm chat llama3:8b "Summarise this" --attach notes.pdf
  llmm tui`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stdout.Fd())) {
			noColor = true
		}
		switch outputFormat {
		case formatTable, formatJSON, formatYAML:
			return nil
		default:
			return fmt.Errorf("unknown output format %q (want table, json or yaml)", outputFormat)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "dashboard URL including base path (default from config)")

	rootCmd.AddCommand(serveCmd, mcpCmd, statusCmd, tuiCmd)
	rootCmd.AddCommand(modelsCmd, chatCmd, generateCmd, historyCmd)
	rootCmd.AddCommand(configCmd, themeCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
