package db

// Schema defines the SQLite database schema for cached firmware
// artifacts. Loader binaries and system images fetched from object
// storage are tracked here so repeated runs reuse the local copies.
const Schema = `
CREATE TABLE IF NOT EXISTS artifacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    s3_key TEXT NOT NULL UNIQUE,
    sha256 TEXT NOT NULL,
    local_path TEXT,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL CHECK(status IN ('pending', 'downloading', 'ready', 'failed')),
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_artifacts_s3_key ON artifacts(s3_key);
CREATE INDEX IF NOT EXISTS idx_artifacts_status ON artifacts(status);
CREATE INDEX IF NOT EXISTS idx_artifacts_created_at ON artifacts(created_at);
`

// Status constants
const (
	StatusPending     = "pending"
	StatusDownloading = "downloading"
	StatusReady       = "ready"
	StatusFailed      = "failed"
)

// Artifact represents a cached firmware artifact record
type Artifact struct {
	ID           int64
	S3Key        string
	SHA256       string
	LocalPath    string
	SizeBytes    int64
	Status       string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}
