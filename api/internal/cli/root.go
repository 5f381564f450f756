// Package cli implements the ecovision command-line tool.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ecovision/api/internal/app"
	"ecovision/api/internal/bootstrap"
	"ecovision/api/internal/config"
	"ecovision/api/internal/logging"
	"ecovision/api/internal/session"
)

var (
	envFile      string
	providerFlag string
	scopeFlag    string
	formatFlag   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:          "ecovision",
	Short:        "Environmental pollution analysis from images",
	Long:         "Analyze photos for air, water and land pollution, keep a local history and export reports.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load if present")
	RootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "Analysis provider (default: $ANALYSIS_PROVIDER or stub)")
	RootCmd.PersistentFlags().StringVarP(&scopeFlag, "scope", "s", "", "History scope (empty: shared default history)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Output format: json or text")
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg := config.Load()
	if providerFlag != "" {
		cfg.AnalysisProvider = providerFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSession собирает рантайм и возвращает контроллер выбранного scope.
func openSession(cmd *cobra.Command) (*bootstrap.Runtime, *app.Controller, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := logging.NewWithWriter(cmd.ErrOrStderr(), "ecovision-cli", cfg.LogLevel)
	rt, err := bootstrap.Build(cmd.Context(), cfg, log, "ecovision-cli")
	if err != nil {
		return nil, nil, err
	}
	return rt, rt.Sessions.Get(scopeFlag), nil
}

// readImage читает файл и кладёт его в сессию; тип определяется по содержимому.
func readImage(c *app.Controller, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, session.MaxImageBytes+1))
	if err != nil {
		return err
	}
	_, err = c.SetImage(data, "")
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonOutput() bool { return formatFlag == "json" }

func checkFormat() error {
	switch formatFlag {
	case "json", "text":
		return nil
	}
	return fmt.Errorf("unknown format %q (json or text)", formatFlag)
}
