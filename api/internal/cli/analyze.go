package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ecovision/api/internal/app"
)

func init() {
	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Analyze an image and save the result to history",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	RootCmd.AddCommand(cmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	rt, c, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := readImage(c, args[0]); err != nil {
		return fmt.Errorf("load image: %w", err)
	}
	v, err := c.Analyze(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput() {
		return printJSON(cmd.OutOrStdout(), v.Dashboard)
	}
	writeDashboard(cmd.OutOrStdout(), v.Dashboard)
	return nil
}

func writeDashboard(w io.Writer, d *app.DashboardView) {
	if d == nil || d.Empty {
		fmt.Fprintln(w, "No analysis yet.")
		return
	}
	res := d.Result
	if len(d.Cards) == 0 {
		fmt.Fprintln(w, "No pollution detected")
	}
	for _, c := range d.Cards {
		fmt.Fprintf(w, "%-20s %s RISK\n", c.Name, strings.ToUpper(string(c.RiskLevel)))
	}
	fmt.Fprintf(w, "Confidence: %d%%\n%s\n", res.Confidence, res.Summary)
	if len(res.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, r := range res.Recommendations {
			fmt.Fprintln(w, "  - "+r)
		}
	}
}
