package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/alanblu/radxa-flash-tool/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for firmware artifacts
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Create schema
	slog.Info("database_create_schema", "db_path", dbPath)
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

// Create inserts a new artifact record
func (r *Repository) Create(art *Artifact) error {
	slog.Info("database_create_artifact", "s3_key", art.S3Key, "status", art.Status)

	query := `
		INSERT INTO artifacts (s3_key, sha256, local_path, size_bytes, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		art.S3Key, art.SHA256, art.LocalPath, art.SizeBytes, art.Status, art.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "s3_key", art.S3Key, "error", err)
		return errors.Wrap(err, "failed to insert artifact")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "s3_key", art.S3Key, "error", err)
		return errors.Wrap(err, "failed to get last insert id")
	}
	art.ID = id

	slog.Info("database_artifact_created", "s3_key", art.S3Key, "artifact_id", art.ID, "status", art.Status)
	return nil
}

// GetByS3Key retrieves an artifact by S3 key
func (r *Repository) GetByS3Key(s3Key string) (*Artifact, error) {
	slog.Info("database_query_artifact", "s3_key", s3Key)

	query := `
		SELECT id, s3_key, sha256, local_path, size_bytes, status, error_message, created_at, updated_at
		FROM artifacts WHERE s3_key = ?
	`
	var art Artifact
	var localPath, errorMessage sql.NullString

	err := r.db.QueryRow(query, s3Key).Scan(
		&art.ID, &art.S3Key, &art.SHA256,
		&localPath, &art.SizeBytes, &art.Status, &errorMessage,
		&art.CreatedAt, &art.UpdatedAt)

	if err == sql.ErrNoRows {
		slog.Info("database_artifact_not_found", "s3_key", s3Key)
		return nil, nil // Not found
	}
	if err != nil {
		slog.Error("database_query_failed", "s3_key", s3Key, "error", err)
		return nil, errors.Wrap(err, "failed to query artifact")
	}

	// Handle nullable fields
	art.LocalPath = localPath.String
	art.ErrorMessage = errorMessage.String

	slog.Info("database_artifact_found", "s3_key", s3Key, "artifact_id", art.ID, "status", art.Status)
	return &art, nil
}

// Update updates an existing artifact record
func (r *Repository) Update(art *Artifact) error {
	slog.Info("database_update_artifact", "artifact_id", art.ID, "s3_key", art.S3Key, "status", art.Status)

	query := `
		UPDATE artifacts
		SET sha256 = ?, local_path = ?, size_bytes = ?, status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		art.SHA256, art.LocalPath, art.SizeBytes, art.Status, art.ErrorMessage, art.ID)
	if err != nil {
		slog.Error("database_update_failed", "artifact_id", art.ID, "s3_key", art.S3Key, "error", err)
		return errors.Wrap(err, "failed to update artifact")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		slog.Error("database_rows_affected_failed", "artifact_id", art.ID, "error", err)
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_artifact_not_found_for_update", "artifact_id", art.ID)
		return fmt.Errorf("artifact not found: id=%d", art.ID)
	}

	slog.Info("database_artifact_updated", "artifact_id", art.ID, "s3_key", art.S3Key, "status", art.Status)
	return nil
}

// UpdateStatus updates only the status field
func (r *Repository) UpdateStatus(id int64, status, errorMessage string) error {
	slog.Info("database_update_status", "artifact_id", id, "status", status)

	query := `UPDATE artifacts SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.db.Exec(query, status, errorMessage, id)
	if err != nil {
		slog.Error("database_status_update_failed", "artifact_id", id, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}

	slog.Info("database_status_updated", "artifact_id", id, "status", status)
	return nil
}

// List retrieves all artifacts
func (r *Repository) List() ([]*Artifact, error) {
	slog.Info("database_list_artifacts")

	query := `
		SELECT id, s3_key, sha256, local_path, size_bytes, status, error_message, created_at, updated_at
		FROM artifacts ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list artifacts")
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		var art Artifact
		var localPath, errorMessage sql.NullString

		err := rows.Scan(
			&art.ID, &art.S3Key, &art.SHA256,
			&localPath, &art.SizeBytes, &art.Status, &errorMessage,
			&art.CreatedAt, &art.UpdatedAt)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}

		art.LocalPath = localPath.String
		art.ErrorMessage = errorMessage.String

		artifacts = append(artifacts, &art)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "artifact_count", len(artifacts))
	return artifacts, nil
}

// Delete deletes an artifact by ID
func (r *Repository) Delete(id int64) error {
	slog.Info("database_delete_artifact", "artifact_id", id)

	query := `DELETE FROM artifacts WHERE id = ?`
	_, err := r.db.Exec(query, id)
	if err != nil {
		slog.Error("database_delete_failed", "artifact_id", id, "error", err)
		return errors.Wrap(err, "failed to delete artifact")
	}

	slog.Info("database_artifact_deleted", "artifact_id", id)
	return nil
}
