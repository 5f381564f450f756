package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "poster <id>",
		Short: "Render the PNG report for a history entry",
		Args:  cobra.ExactArgs(1),
		RunE:  runPoster,
	}
	cmd.Flags().StringP("out", "o", "ecovision-report.png", "Output file")
	cmd.Flags().Bool("publish", false, "Also upload the poster to object storage")
	RootCmd.AddCommand(cmd)
}

func runPoster(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	publish, _ := cmd.Flags().GetBool("publish")

	rt, c, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := c.ViewHistoryEntry(cmd.Context(), args[0]); err != nil {
		return err
	}
	png, err := c.Poster(cmd.Context())
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "poster written to %s\n", out)

	if publish {
		url, err := c.PublishPoster(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
	}
	return nil
}
