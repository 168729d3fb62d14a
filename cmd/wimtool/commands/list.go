package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wimtool/wimtool/internal/config"
	"github.com/wimtool/wimtool/pkg/db"
	"github.com/wimtool/wimtool/pkg/errors"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List servicing history",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.SQLitePath, "", "", ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	records, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	out := cmd.OutOrStdout()

	if len(records) == 0 {
		fmt.Fprintln(out, "No servicing records found")
		return nil
	}

	fmt.Fprintf(out, "%-40s %-8s %-6s %-10s %-9s %-20s\n", "IMAGE", "KIND", "INDEX", "STATUS", "PACKAGES", "UPDATED")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------------------------")

	for _, rec := range records {
		pkgs := "-"
		if rec.ImageKind == "install" {
			pkgs = fmt.Sprintf("%d", rec.PackagesApplied)
		}

		fmt.Fprintf(out, "%-40s %-8s %-6d %-10s %-9s %-20s\n",
			rec.ImagePath, rec.ImageKind, rec.ImageIndex, rec.Status, pkgs, rec.UpdatedAt)
	}

	return nil
}
