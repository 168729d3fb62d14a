package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "wimtool",
	Short: "Offline Windows image servicing",
	Long: `Services Windows disk-image containers offline: injects drivers and
cumulative update packages into an installation image and mirrors driver
injection into the pre-boot recovery image.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/servicing.db", "Servicing history database path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm.db", "FSM BoltDB path")
	rootCmd.PersistentFlags().String("work-dir", ".artifacts/work", "Working directory for mount slots")
	rootCmd.PersistentFlags().String("staging-dir", ".artifacts/staging", "Update package staging directory")
	rootCmd.PersistentFlags().String("tool-path", "dism", "Image-servicing tool binary")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region for s3:// package URLs")
	rootCmd.PersistentFlags().Int("max-install-indexes", 11, "Upper bound of install-image indexes for --all-indexes")
	rootCmd.PersistentFlags().Int64("max-package-size", 4*1024*1024*1024, "Max update package size in bytes")

	viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("work-dir", rootCmd.PersistentFlags().Lookup("work-dir"))
	viper.BindPFlag("staging-dir", rootCmd.PersistentFlags().Lookup("staging-dir"))
	viper.BindPFlag("tool-path", rootCmd.PersistentFlags().Lookup("tool-path"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("max-install-indexes", rootCmd.PersistentFlags().Lookup("max-install-indexes"))
	viper.BindPFlag("max-package-size", rootCmd.PersistentFlags().Lookup("max-package-size"))
}
