package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/superfly/fsm"
	"github.com/wimtool/wimtool/internal/config"
	"github.com/wimtool/wimtool/pkg/db"
	"github.com/wimtool/wimtool/pkg/dism"
	"github.com/wimtool/wimtool/pkg/errors"
	"github.com/wimtool/wimtool/pkg/packages"
	"github.com/wimtool/wimtool/pkg/security"
	"github.com/wimtool/wimtool/pkg/servicing"
	"github.com/wimtool/wimtool/pkg/storage"
)

var serviceCmd = &cobra.Command{
	Use:   "service <install-image>",
	Short: "Inject drivers and updates into an install image and its boot image",
	Long: `Stages the update packages, then services each selected install-image
index (mount, inject drivers, apply updates, commit) followed by the two
boot-image indexes (drivers only). The run halts on the first index that
fails to commit.`,
	Args: cobra.ExactArgs(1),
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(serviceCmd)

	serviceCmd.Flags().Int("index", 6, "Install-image edition index to service")
	serviceCmd.Flags().Bool("all-indexes", false, "Service every install-image index")
	serviceCmd.Flags().String("package-path", "", "Local update package to stage")
	serviceCmd.Flags().String("package-url", "", "Update package URL (http(s):// or s3://)")
	serviceCmd.Flags().Bool("verify", false, "Pause for operator verification before each commit")
	serviceCmd.Flags().String("boot-image", "./Downloads/boot.wim", "Boot image path")
	serviceCmd.Flags().String("driver-dir", "./drivers", "Driver source directory")

	viper.BindPFlag("index", serviceCmd.Flags().Lookup("index"))
	viper.BindPFlag("all-indexes", serviceCmd.Flags().Lookup("all-indexes"))
	viper.BindPFlag("package-path", serviceCmd.Flags().Lookup("package-path"))
	viper.BindPFlag("package-url", serviceCmd.Flags().Lookup("package-url"))
	viper.BindPFlag("verify", serviceCmd.Flags().Lookup("verify"))
	viper.BindPFlag("boot-image", serviceCmd.Flags().Lookup("boot-image"))
	viper.BindPFlag("driver-dir", serviceCmd.Flags().Lookup("driver-dir"))
}

func runService(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	installPath := args[0]

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	// A run without any package source is a configuration error, reported
	// before anything touches the filesystem.
	if cfg.PackageURL == "" && cfg.PackagePath == "" {
		return packages.ErrMissingInput
	}

	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath, cfg.WorkDir, cfg.StagingDir); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	var store packages.ObjectStore
	if strings.HasPrefix(cfg.PackageURL, "s3://") {
		s3Client, err := storage.NewClient(ctx, cfg.S3Region)
		if err != nil {
			return errors.Wrap(err, "S3 client failed")
		}
		store = s3Client
	}

	validator := security.NewValidator(cfg.MaxPackageSize)
	acquirer := packages.New(cfg.StagingDir, store, validator)

	packageSet, err := acquirer.Acquire(ctx, cfg.PackageURL, cfg.PackagePath)
	if err != nil {
		return errors.Wrap(err, "package acquisition failed")
	}

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := servicing.NewMachine(
		dism.NewCLI(cfg.ToolPath),
		repo,
		cfg.WorkDir,
		cfg.DriverDir,
		packageSet,
		cfg.Verify,
		nil,
	)

	servicer, err := servicing.NewFSMServicer(ctx, manager, machine)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	runner := servicing.NewRunner(
		servicer,
		servicing.NewReporter(cmd.OutOrStdout()),
		servicing.ImageRef{Path: installPath, Kind: servicing.KindInstall},
		servicing.ImageRef{Path: cfg.BootImagePath, Kind: servicing.KindBoot},
		cfg.EditionIndex,
		cfg.AllIndexes,
		cfg.MaxInstallIndexes,
	)

	slog.Info("servicing_run_start",
		"install_image", installPath,
		"boot_image", cfg.BootImagePath,
		"all_indexes", cfg.AllIndexes,
		"package_count", len(packageSet),
		"verify", cfg.Verify,
	)

	if err := runner.Run(ctx); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "All image indexes serviced successfully")
	return nil
}
