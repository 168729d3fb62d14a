package packages

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/wimtool/wimtool/pkg/security"
	"github.com/wimtool/wimtool/pkg/storage"
)

func newTestAcquirer(t *testing.T) (*Acquirer, string) {
	t.Helper()

	staging := filepath.Join(t.TempDir(), "staging")
	return New(staging, nil, security.NewValidator(1024*1024)), staging
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestAcquire_MissingInput(t *testing.T) {
	a, staging := newTestAcquirer(t)

	_, err := a.Acquire(context.Background(), "", "")
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}

	// Nothing may be touched before the configuration check.
	if _, statErr := os.Stat(staging); !os.IsNotExist(statErr) {
		t.Error("staging directory must not be created when input is missing")
	}
}

func TestAcquire_LocalCopy(t *testing.T) {
	a, staging := newTestAcquirer(t)

	local := filepath.Join(t.TempDir(), "kb5031356.msu")
	writeFile(t, local, "update payload")

	got, err := a.Acquire(context.Background(), "", local)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	want := filepath.Join(staging, "kb5031356.msu")
	if len(got) != 1 || got[0] != want {
		t.Errorf("package set = %v, want [%s]", got, want)
	}

	data, err := os.ReadFile(want)
	if err != nil || string(data) != "update payload" {
		t.Errorf("staged copy wrong: %q, %v", data, err)
	}
}

func TestAcquire_LocalCopyOverwrites(t *testing.T) {
	a, staging := newTestAcquirer(t)

	writeFile(t, filepath.Join(staging, "kb1.msu"), "stale contents")
	local := filepath.Join(t.TempDir(), "kb1.msu")
	writeFile(t, local, "fresh contents")

	if _, err := a.Acquire(context.Background(), "", local); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(staging, "kb1.msu"))
	if string(data) != "fresh contents" {
		t.Errorf("same-named staged file not overwritten: %q", data)
	}
}

func TestAcquire_InputNotFound(t *testing.T) {
	a, _ := newTestAcquirer(t)

	_, err := a.Acquire(context.Background(), "", filepath.Join(t.TempDir(), "absent.msu"))
	if !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("expected ErrInputNotFound, got %v", err)
	}
}

func TestAcquire_HTTPDownload(t *testing.T) {
	a, staging := newTestAcquirer(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("downloaded payload"))
	}))
	defer srv.Close()

	got, err := a.Acquire(context.Background(), srv.URL+"/updates/kb5031356.msu", "")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	want := filepath.Join(staging, "kb5031356.msu")
	if len(got) != 1 || got[0] != want {
		t.Errorf("package set = %v, want [%s]", got, want)
	}
}

func TestAcquire_HTTPFailureIsDownloadError(t *testing.T) {
	a, _ := newTestAcquirer(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := a.Acquire(context.Background(), srv.URL+"/kb.msu", "")

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
}

func TestAcquire_BadURLName(t *testing.T) {
	a, _ := newTestAcquirer(t)

	// URL path resolves to a non-package name; rejected before any fetch.
	_, err := a.Acquire(context.Background(), "http://updates.example/latest/", "")
	if err == nil {
		t.Fatal("expected error for URL without a package file name")
	}
}

func TestAcquire_NoPackagesFound(t *testing.T) {
	a, staging := newTestAcquirer(t)

	// A local input that is not a package extension never reaches staging
	// listing as a package.
	local := filepath.Join(t.TempDir(), "notes.txt")
	writeFile(t, local, "not a package")
	writeFile(t, filepath.Join(staging, "readme.md"), "also not a package")

	_, err := a.Acquire(context.Background(), "", local)
	if !errors.Is(err, ErrNoPackagesFound) {
		t.Fatalf("expected ErrNoPackagesFound, got %v", err)
	}
}

func TestAcquire_OrderIsDeterministic(t *testing.T) {
	a, staging := newTestAcquirer(t)

	writeFile(t, filepath.Join(staging, "b-kb2.msu"), "2")
	writeFile(t, filepath.Join(staging, "c-kb3.cab"), "3")
	local := filepath.Join(t.TempDir(), "a-kb1.msu")
	writeFile(t, local, "1")

	got, err := a.Acquire(context.Background(), "", local)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	want := []string{
		filepath.Join(staging, "a-kb1.msu"),
		filepath.Join(staging, "b-kb2.msu"),
		filepath.Join(staging, "c-kb3.cab"),
	}
	if len(got) != len(want) {
		t.Fatalf("package set = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("package[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestAcquire_S3WithoutClient(t *testing.T) {
	a, _ := newTestAcquirer(t)

	_, err := a.Acquire(context.Background(), "s3://updates/kb5031356.msu", "")

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError without an S3 client, got %v", err)
	}
}

type fakeStore struct {
	payload string
	err     error
	gotRef  storage.ObjectRef
}

func (f *fakeStore) Download(_ context.Context, ref storage.ObjectRef, localPath string) (*storage.DownloadResult, error) {
	f.gotRef = ref
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(localPath, []byte(f.payload), 0644); err != nil {
		return nil, err
	}
	return &storage.DownloadResult{LocalPath: localPath, Size: int64(len(f.payload))}, nil
}

func TestAcquire_S3Download(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "staging")
	store := &fakeStore{payload: "s3 payload"}
	a := New(staging, store, security.NewValidator(1024*1024))

	got, err := a.Acquire(context.Background(), "s3://updates/2023/kb5031356.msu", "")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if store.gotRef.Bucket != "updates" || store.gotRef.Key != "2023/kb5031356.msu" {
		t.Errorf("wrong object ref: %+v", store.gotRef)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "kb5031356.msu" {
		t.Errorf("package set = %v", got)
	}
}
