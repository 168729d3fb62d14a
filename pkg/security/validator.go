// Package security validates artifacts entering the staging area: file names
// derived from remote URLs and the update-package files themselves.
package security

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// PackageExtensions are the update-package file types the servicing tool accepts.
var PackageExtensions = []string{".msu", ".cab"}

// Validator provides security validation for staged update packages.
type Validator struct {
	maxPackageSize int64
}

// NewValidator creates a validator with the given package size ceiling.
func NewValidator(maxPackageSize int64) *Validator {
	slog.Info("security_validator_init", "max_package_size_mb", maxPackageSize/1024/1024)

	return &Validator{maxPackageSize: maxPackageSize}
}

// ValidateStagingName checks a file name about to be created inside the
// staging directory. Names come from the path component of a user-supplied
// URL, so traversal and separator smuggling must be rejected.
func (v *Validator) ValidateStagingName(name string) error {
	if name == "" || name == "." || name == ".." {
		slog.Error("security_staging_name_rejected", "name", name, "reason", "empty_or_dot")
		return fmt.Errorf("security: invalid staging file name: %q", name)
	}

	if strings.ContainsAny(name, `/\`) || filepath.Base(filepath.Clean(name)) != name {
		slog.Error("security_staging_name_rejected", "name", name, "reason", "path_separator")
		return fmt.Errorf("security: staging file name must be a bare name: %q", name)
	}

	if !HasPackageExtension(name) {
		slog.Error("security_staging_name_rejected", "name", name, "reason", "extension")
		return fmt.Errorf("security: %q is not an update package (%s)", name, strings.Join(PackageExtensions, ", "))
	}

	return nil
}

// ValidatePackageSize rejects empty files and files above the configured ceiling.
func (v *Validator) ValidatePackageSize(size int64) error {
	if size == 0 {
		slog.Error("security_package_size_rejected", "reason", "empty_file")
		return fmt.Errorf("security: package file is empty")
	}
	if size > v.maxPackageSize {
		slog.Error("security_package_size_rejected",
			"size_mb", size/1024/1024,
			"max_package_size_mb", v.maxPackageSize/1024/1024)
		return fmt.Errorf("security: package size %d exceeds max %d", size, v.maxPackageSize)
	}
	return nil
}

// HasPackageExtension reports whether name carries a known package extension.
func HasPackageExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range PackageExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
