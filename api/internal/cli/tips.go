package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ecovision/api/internal/config"
	"ecovision/api/internal/tips"
)

func init() {
	cmd := &cobra.Command{
		Use:   "tips",
		Short: "Show random eco tips",
		Args:  cobra.NoArgs,
		RunE:  runTips,
	}
	cmd.Flags().IntP("count", "n", tips.DefaultCount, "Number of tips")
	cmd.Flags().String("file", "", "YAML tips catalog (default: $TIPS_FILE or built-in)")
	RootCmd.AddCommand(cmd)
}

func runTips(cmd *cobra.Command, args []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	n, _ := cmd.Flags().GetInt("count")
	if n < 1 {
		return fmt.Errorf("count must be positive, got %d", n)
	}
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		file = config.Load().TipsFile
	}

	catalog := tips.DefaultCatalog()
	if file != "" {
		c, err := tips.LoadCatalog(file)
		if err != nil {
			return err
		}
		catalog = c
	}

	picked := tips.Pick(catalog, n, nil)
	if jsonOutput() {
		return printJSON(cmd.OutOrStdout(), picked)
	}
	for _, t := range picked {
		fmt.Fprintf(cmd.OutOrStdout(), "* %s\n  %s\n", t.Title, t.Description)
	}
	return nil
}
