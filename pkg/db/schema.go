package db

// Schema defines the SQLite schema for servicing history: one row per
// (image, index) servicing attempt, updated as the pipeline advances.
const Schema = `
CREATE TABLE IF NOT EXISTS servicing_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    image_path TEXT NOT NULL,
    image_kind TEXT NOT NULL CHECK(image_kind IN ('install', 'boot')),
    image_index INTEGER NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('pending', 'mounted', 'committed', 'discarded', 'failed', 'cleaned')),
    packages_applied INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_servicing_image_path ON servicing_records(image_path);
CREATE INDEX IF NOT EXISTS idx_servicing_status ON servicing_records(status);
CREATE INDEX IF NOT EXISTS idx_servicing_created_at ON servicing_records(created_at);
`

// Status constants
const (
	StatusPending   = "pending"
	StatusMounted   = "mounted"
	StatusCommitted = "committed"
	StatusDiscarded = "discarded"
	StatusFailed    = "failed"
	StatusCleaned   = "cleaned"
)

// Record represents one index servicing attempt.
type Record struct {
	ID              int64
	ImagePath       string
	ImageKind       string
	ImageIndex      int
	Status          string
	PackagesApplied int
	ErrorMessage    string
	CreatedAt       string
	UpdatedAt       string
}
