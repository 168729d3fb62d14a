package commands

import (
	"os"
	"path/filepath"

	"github.com/wimtool/wimtool/pkg/errors"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(sqlitePath, fsmDBPath, workDir, stagingDir string) error {
	// Create database directory
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	// Create FSM database directory (only needed for the service command)
	if fsmDBPath != "" {
		if err := os.MkdirAll(filepath.Dir(fsmDBPath), 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	// Create work directory (mount slots live under it)
	if workDir != "" {
		if err := os.MkdirAll(workDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create work directory")
		}
	}

	// Create staging directory (persists across runs)
	if stagingDir != "" {
		if err := os.MkdirAll(stagingDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create staging directory")
		}
	}

	return nil
}
