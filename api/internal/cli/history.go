package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, delete and export saved analyses",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List history entries, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}
	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a history entry (no error if it does not exist)",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryRm,
	}
	export := &cobra.Command{
		Use:   "export",
		Short: "Export history as an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE:  runHistoryExport,
	}
	export.Flags().StringP("out", "o", "ecovision-history.xlsx", "Output file")

	cmd.AddCommand(list, rm, export)
	RootCmd.AddCommand(cmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	rt, c, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	entries := c.History(cmd.Context())
	if jsonOutput() {
		// изображения в data URI слишком большие для консоли
		type row struct {
			ID     string `json:"id"`
			Date   string `json:"date"`
			Result any    `json:"results"`
		}
		rows := make([]row, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, row{ID: string(e.ID), Date: e.Date.Format("2006-01-02T15:04:05Z07:00"), Result: e.Result})
		}
		return printJSON(cmd.OutOrStdout(), rows)
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No analysis history yet.")
		return nil
	}
	for _, e := range entries {
		cats := make([]string, 0, len(e.Result.Categories))
		for _, c := range e.Result.Categories {
			cats = append(cats, string(c))
		}
		if len(cats) == 0 {
			cats = append(cats, "none")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-6s  %3d%%  %s\n",
			e.ID, e.Date.Local().Format("2006-01-02 15:04"), e.Result.RiskLevel, e.Result.Confidence, strings.Join(cats, ","))
	}
	return nil
}

func runHistoryRm(cmd *cobra.Command, args []string) error {
	rt, c, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := c.DeleteHistoryEntry(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q}`+"\n", args[0])
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	rt, c, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := c.ExportHistory(cmd.Context(), f); err != nil {
		f.Close()
		return fmt.Errorf("export history: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s\n", len(c.History(cmd.Context())), out)
	return nil
}
