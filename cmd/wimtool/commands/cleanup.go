package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/wimtool/wimtool/internal/config"
	"github.com/wimtool/wimtool/pkg/db"
	"github.com/wimtool/wimtool/pkg/errors"
)

var (
	cleanupAll     bool
	cleanupStaging bool
	cleanupMounts  bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up staged packages and stale mount directories",
	Long: `Clean up servicing resources:
  --all        Clean staging and stale mount slots
  --staging    Remove staged update packages (staging persists across runs by design)
  --mounts     Remove leftover mount directories from interrupted runs`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Clean all resources")
	cleanupCmd.Flags().BoolVar(&cleanupStaging, "staging", false, "Clean the package staging directory")
	cleanupCmd.Flags().BoolVar(&cleanupMounts, "mounts", false, "Clean stale mount directories")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if !cleanupAll && !cleanupStaging && !cleanupMounts {
		return fmt.Errorf("must specify --all, --staging, or --mounts")
	}

	out := cmd.OutOrStdout()

	if cleanupAll || cleanupStaging {
		if err := cleanStagingDir(cfg.StagingDir); err != nil {
			return err
		}
		fmt.Fprintf(out, "✅ Cleaned staging: %s\n", cfg.StagingDir)
	}

	if cleanupAll || cleanupMounts {
		removed, err := cleanMountSlots(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✅ Removed %d stale mount directories\n", removed)
	}

	return nil
}

func cleanStagingDir(stagingDir string) error {
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to list staging directory")
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(stagingDir, entry.Name())); err != nil {
			return errors.Wrap(err, "failed to remove staged package")
		}
	}
	return nil
}

// cleanMountSlots removes leftover mount directories and marks any servicing
// records stuck in the mounted state as cleaned. A directory left behind by
// a killed run holds no live mount; the external tool reconciles or reports
// an already-mounted image on its next invocation.
func cleanMountSlots(cfg *config.Config) (int, error) {
	removed := 0

	mountsDir := filepath.Join(cfg.WorkDir, "mounts")
	if entries, err := os.ReadDir(mountsDir); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if err := os.RemoveAll(filepath.Join(mountsDir, entry.Name())); err != nil {
				fmt.Printf("⚠️  Failed to remove mount slot %s: %v\n", entry.Name(), err)
				continue
			}
			removed++
		}
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return removed, errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	stuck, err := repo.ListByStatus(db.StatusMounted)
	if err != nil {
		return removed, errors.Wrap(err, "failed to list interrupted records")
	}
	for _, rec := range stuck {
		if err := repo.UpdateStatus(rec.ID, db.StatusCleaned, "mount slot removed by cleanup"); err != nil {
			fmt.Printf("⚠️  Failed to mark record %d cleaned: %v\n", rec.ID, err)
		}
	}

	return removed, nil
}
