package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/analysis/gemini"
	"ecovision/api/internal/config"
	"ecovision/api/internal/logging"
	"ecovision/api/internal/util"
)

func init() {
	cmd := &cobra.Command{
		Use:   "demo <image>",
		Short: "Send one image to Gemini and print the raw model text",
		Long:  "One-shot generateContent call. Prints the first candidate text, \"no candidates\", or logs the API error.",
		Args:  cobra.ExactArgs(1),
		RunE:  runDemo,
	}
	RootCmd.AddCommand(cmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	// демо нужен только ключ Gemini, полная валидация конфига не делается
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg := config.Load()
	log := logging.NewWithWriter(cmd.ErrOrStderr(), "ecovision-cli", cfg.LogLevel)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("load image: %w", err)
	}
	eng := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	if cfg.GeminiBaseURL != "" {
		eng.BaseURL = cfg.GeminiBaseURL
	}
	img := analysis.Image{Data: data, MediaType: util.PickMIME("", "", data)}

	txt, err := eng.RawText(cmd.Context(), img)
	switch {
	case analysis.ReasonOf(err) == analysis.ReasonNoCandidates:
		fmt.Fprintln(cmd.OutOrStdout(), "no candidates")
		return nil
	case errors.Is(err, analysis.ErrUnavailable):
		log.Error("gemini request failed", "reason", analysis.ReasonOf(err), "error", err)
		return err
	case err != nil:
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), txt)
	return nil
}
