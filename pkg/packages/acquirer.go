// Package packages implements the artifact acquirer: it resolves the ordered
// set of update-package files to apply by downloading an optional URL and/or
// copying a local file into the staging directory, then listing what is there.
package packages

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/wimtool/wimtool/pkg/errors"
	"github.com/wimtool/wimtool/pkg/security"
	"github.com/wimtool/wimtool/pkg/storage"
)

// zoneIdentifierStream is the NTFS alternate data stream browsers and
// download tools attach to fetched files. The servicing tool refuses
// packages that still carry it.
const zoneIdentifierStream = ":Zone.Identifier"

var (
	// ErrMissingInput means neither a package URL nor a local package path
	// was supplied. Reported before any filesystem or network activity.
	ErrMissingInput = stderrors.New("no update package source: provide a package URL or a local package path")

	// ErrInputNotFound means the supplied local package path does not exist.
	ErrInputNotFound = stderrors.New("local package path does not exist")

	// ErrNoPackagesFound means the staging directory holds no update packages.
	ErrNoPackagesFound = stderrors.New("no update packages found in staging directory")
)

// DownloadError reports a failed package download. Downloads are not
// retried; the run aborts.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s failed: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ObjectStore downloads one object addressed by an S3 reference.
type ObjectStore interface {
	Download(ctx context.Context, ref storage.ObjectRef, localPath string) (*storage.DownloadResult, error)
}

// Acquirer stages update packages and produces the ordered package set.
type Acquirer struct {
	stagingDir string
	httpClient *http.Client
	store      ObjectStore
	validator  *security.Validator
}

// New creates an acquirer for the given staging directory. store may be nil
// when s3:// URLs are not in play.
func New(stagingDir string, store ObjectStore, validator *security.Validator) *Acquirer {
	return &Acquirer{
		stagingDir: stagingDir,
		httpClient: http.DefaultClient,
		store:      store,
		validator:  validator,
	}
}

// Acquire resolves the non-empty ordered package set: ensures the staging
// directory exists, downloads packageURL and/or copies localPath into it,
// clears download safety markers, and lists the staged packages in
// deterministic (lexical) order.
func (a *Acquirer) Acquire(ctx context.Context, packageURL, localPath string) ([]string, error) {
	if packageURL == "" && localPath == "" {
		return nil, ErrMissingInput
	}

	if err := os.MkdirAll(a.stagingDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create staging directory")
	}

	if packageURL != "" {
		if err := a.download(ctx, packageURL); err != nil {
			return nil, err
		}
	}

	if localPath != "" {
		if err := a.copyLocal(localPath); err != nil {
			return nil, err
		}
	}

	a.clearSafetyMarkers()

	return a.listStaged()
}

// download fetches packageURL into the staging directory, deriving the
// destination name from the URL's path component.
func (a *Acquirer) download(ctx context.Context, packageURL string) error {
	name, err := a.destName(packageURL)
	if err != nil {
		return err
	}
	dest := filepath.Join(a.stagingDir, name)

	slog.Info("package_download_start", "url", packageURL, "dest", dest)

	var size int64
	if strings.HasPrefix(packageURL, "s3://") {
		ref, err := storage.ParseURL(packageURL)
		if err != nil {
			return &DownloadError{URL: packageURL, Err: err}
		}
		if a.store == nil {
			return &DownloadError{URL: packageURL, Err: stderrors.New("no S3 client configured")}
		}

		result, err := a.store.Download(ctx, ref, dest)
		if err != nil {
			return &DownloadError{URL: packageURL, Err: err}
		}
		size = result.Size
	} else {
		fetched, err := a.fetchHTTP(ctx, packageURL, dest)
		if err != nil {
			return &DownloadError{URL: packageURL, Err: err}
		}
		size = fetched
	}

	if err := a.validator.ValidatePackageSize(size); err != nil {
		return &DownloadError{URL: packageURL, Err: err}
	}

	slog.Info("package_download_complete", "url", packageURL, "dest", dest, "size_mb", size/1024/1024)
	return nil
}

// destName derives and validates the staging file name from the URL path.
func (a *Acquirer) destName(packageURL string) (string, error) {
	u, err := url.Parse(packageURL)
	if err != nil {
		return "", &DownloadError{URL: packageURL, Err: err}
	}

	name := path.Base(u.Path)
	if err := a.validator.ValidateStagingName(name); err != nil {
		return "", errors.Wrap(err, "bad package URL")
	}
	return name, nil
}

func (a *Acquirer) fetchHTTP(ctx context.Context, packageURL, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, packageURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("unexpected HTTP status %s", resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hash), resp.Body)
	if err != nil {
		return 0, err
	}

	slog.Info("http_download_complete", "url", packageURL, "sha256", hex.EncodeToString(hash.Sum(nil))[:16]+"...")
	return size, nil
}

// copyLocal copies the supplied package file into staging, overwriting any
// same-named file.
func (a *Acquirer) copyLocal(localPath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrInputNotFound, localPath)
		}
		return errors.Wrap(err, "failed to stat local package")
	}

	if err := a.validator.ValidatePackageSize(info.Size()); err != nil {
		return errors.Wrap(err, "bad local package")
	}

	src, err := os.Open(localPath)
	if err != nil {
		return errors.Wrap(err, "failed to open local package")
	}
	defer src.Close()

	dest := filepath.Join(a.stagingDir, filepath.Base(localPath))
	dst, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to create staged package")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrap(err, "failed to copy local package")
	}

	slog.Info("package_copied", "source", localPath, "dest", dest)
	return nil
}

// clearSafetyMarkers removes the download safety marker from every staged
// package. Failures here are cosmetic, so they are logged and skipped —
// the only non-fatal errors in the pipeline.
func (a *Acquirer) clearSafetyMarkers() {
	entries, err := os.ReadDir(a.stagingDir)
	if err != nil {
		slog.Warn("staging_list_for_unblock_failed", "staging_dir", a.stagingDir, "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !security.HasPackageExtension(entry.Name()) {
			continue
		}

		marker := filepath.Join(a.stagingDir, entry.Name()) + zoneIdentifierStream
		if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
			slog.Warn("safety_marker_removal_failed", "package", entry.Name(), "error", err)
		}
	}
}

// listStaged lists staged packages in lexical order.
func (a *Acquirer) listStaged() ([]string, error) {
	entries, err := os.ReadDir(a.stagingDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list staging directory")
	}

	var staged []string
	for _, entry := range entries {
		if entry.IsDir() || !security.HasPackageExtension(entry.Name()) {
			continue
		}
		staged = append(staged, filepath.Join(a.stagingDir, entry.Name()))
	}

	if len(staged) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPackagesFound, a.stagingDir)
	}

	slog.Info("package_set_resolved", "staging_dir", a.stagingDir, "package_count", len(staged))
	return staged, nil
}
