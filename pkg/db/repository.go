package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/wimtool/wimtool/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for servicing records
type Repository struct {
	db *sql.DB
}

// NewRepository opens the database and ensures the schema exists
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new servicing record
func (r *Repository) Create(rec *Record) error {
	slog.Info("database_create_record",
		"image_path", rec.ImagePath, "image_kind", rec.ImageKind, "image_index", rec.ImageIndex, "status", rec.Status)

	query := `
		INSERT INTO servicing_records (image_path, image_kind, image_index, status, packages_applied, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		rec.ImagePath, rec.ImageKind, rec.ImageIndex,
		rec.Status, rec.PackagesApplied, rec.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "image_path", rec.ImagePath, "error", err)
		return errors.Wrap(err, "failed to insert servicing record")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "image_path", rec.ImagePath, "error", err)
		return errors.Wrap(err, "failed to get last insert id")
	}
	rec.ID = id

	return nil
}

// Get retrieves a servicing record by ID
func (r *Repository) Get(id int64) (*Record, error) {
	query := `
		SELECT id, image_path, image_kind, image_index, status,
		       packages_applied, error_message, created_at, updated_at
		FROM servicing_records WHERE id = ?
	`
	var rec Record
	var errorMessage sql.NullString

	err := r.db.QueryRow(query, id).Scan(
		&rec.ID, &rec.ImagePath, &rec.ImageKind, &rec.ImageIndex, &rec.Status,
		&rec.PackagesApplied, &errorMessage, &rec.CreatedAt, &rec.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "record_id", id, "error", err)
		return nil, errors.Wrap(err, "failed to query servicing record")
	}

	rec.ErrorMessage = errorMessage.String
	return &rec, nil
}

// Update updates an existing servicing record
func (r *Repository) Update(rec *Record) error {
	slog.Info("database_update_record", "record_id", rec.ID, "status", rec.Status)

	query := `
		UPDATE servicing_records
		SET status = ?, packages_applied = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query, rec.Status, rec.PackagesApplied, rec.ErrorMessage, rec.ID)
	if err != nil {
		slog.Error("database_update_failed", "record_id", rec.ID, "error", err)
		return errors.Wrap(err, "failed to update servicing record")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_record_not_found_for_update", "record_id", rec.ID)
		return fmt.Errorf("servicing record not found: id=%d", rec.ID)
	}

	return nil
}

// UpdateStatus updates only the status and error message
func (r *Repository) UpdateStatus(id int64, status, errorMessage string) error {
	slog.Info("database_update_status", "record_id", id, "status", status)

	query := `UPDATE servicing_records SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.db.Exec(query, status, errorMessage, id)
	if err != nil {
		slog.Error("database_status_update_failed", "record_id", id, "error", err)
		return errors.Wrap(err, "failed to update status")
	}
	return nil
}

// List returns all servicing records, newest first
func (r *Repository) List() ([]*Record, error) {
	query := `
		SELECT id, image_path, image_kind, image_index, status,
		       packages_applied, error_message, created_at, updated_at
		FROM servicing_records ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("database_list_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list servicing records")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var errorMessage sql.NullString

		if err := rows.Scan(
			&rec.ID, &rec.ImagePath, &rec.ImageKind, &rec.ImageIndex, &rec.Status,
			&rec.PackagesApplied, &errorMessage, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan servicing record")
		}

		rec.ErrorMessage = errorMessage.String
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "record_count", len(records))
	return records, nil
}

// ListByStatus returns records in the given status
func (r *Repository) ListByStatus(status string) ([]*Record, error) {
	query := `
		SELECT id, image_path, image_kind, image_index, status,
		       packages_applied, error_message, created_at, updated_at
		FROM servicing_records WHERE status = ? ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(query, status)
	if err != nil {
		slog.Error("database_list_by_status_failed", "status", status, "error", err)
		return nil, errors.Wrap(err, "failed to list servicing records by status")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var errorMessage sql.NullString

		if err := rows.Scan(
			&rec.ID, &rec.ImagePath, &rec.ImageKind, &rec.ImageIndex, &rec.Status,
			&rec.PackagesApplied, &errorMessage, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan servicing record")
		}

		rec.ErrorMessage = errorMessage.String
		records = append(records, &rec)
	}

	return records, rows.Err()
}
