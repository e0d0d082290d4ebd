// Package uploads stores user database files and cleans them up when
// they age out.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/thavelick/insight-magician-sub000/internal/observability"
	"github.com/thavelick/insight-magician-sub000/internal/userdb"
)

// sqliteHeader is the 16-byte magic prefix of every SQLite file.
var sqliteHeader = []byte("SQLite format 3\x00")

var allowedExtensions = []string{".db", ".sqlite", ".sqlite3"}

var (
	ErrInvalidFilename = errors.New("invalid database filename")
	ErrUnsupportedType = errors.New("unsupported file type (expected .db, .sqlite, or .sqlite3)")
	ErrFileTooLarge    = errors.New("file exceeds the upload size limit")
	ErrNotSQLite       = errors.New("file is not a valid SQLite database")
)

// StoredDatabase describes an accepted upload.
type StoredDatabase struct {
	Filename  string   `json:"filename"`
	Tables    []string `json:"tables"`
	SizeBytes int64    `json:"sizeBytes"`
}

// Config configures the upload manager.
type Config struct {
	Dir       string
	MaxSizeMB int64
	Logger    *observability.Logger
}

// Manager accepts uploaded database files into the uploads directory.
type Manager struct {
	dir      string
	maxBytes int64
	logger   *observability.Logger
	reader   *userdb.SchemaReader

	now func() time.Time
}

// NewManager creates the uploads directory if needed and returns a
// manager over it.
func NewManager(cfg Config, reader *userdb.SchemaReader) (*Manager, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("uploads directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	maxBytes := cfg.MaxSizeMB * 1024 * 1024
	if maxBytes <= 0 {
		maxBytes = 50 * 1024 * 1024
	}
	return &Manager{
		dir:      cfg.Dir,
		maxBytes: maxBytes,
		logger:   cfg.Logger.WithFields("component", "uploads"),
		reader:   reader,
		now:      time.Now,
	}, nil
}

// Dir returns the uploads root.
func (m *Manager) Dir() string {
	return m.dir
}

// MaxBytes returns the per-file size cap.
func (m *Manager) MaxBytes() int64 {
	return m.maxBytes
}

// Store validates and persists one uploaded file. The original name is
// only used for its extension; the stored name is generated so uploads
// never collide or escape the uploads directory.
func (m *Manager) Store(ctx context.Context, originalName string, r io.Reader) (*StoredDatabase, error) {
	if !hasAllowedExtension(originalName) {
		return nil, ErrUnsupportedType
	}

	tmp, err := os.CreateTemp(m.dir, "incoming-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	// Copy at most one byte past the cap so oversize uploads are
	// detected without buffering the whole stream.
	written, err := io.Copy(tmp, io.LimitReader(r, m.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if written > m.maxBytes {
		return nil, ErrFileTooLarge
	}

	if err := verifySQLiteHeader(tmpPath); err != nil {
		return nil, err
	}
	schema, err := m.reader.ReadAll(ctx, tmpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSQLite, err)
	}

	filename := fmt.Sprintf("database_%d.db", m.now().UnixMilli())
	if err := os.Rename(tmpPath, filepath.Join(m.dir, filename)); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	m.logger.Info(ctx, "database uploaded",
		"filename", filename,
		"size_bytes", written,
		"tables", len(schema.TableNames))

	return &StoredDatabase{
		Filename:  filename,
		Tables:    schema.TableNames,
		SizeBytes: written,
	}, nil
}

// Resolve maps a client-supplied database filename to a path strictly
// inside the uploads directory. Names carrying path separators or
// traversal sequences are rejected.
func (m *Manager) Resolve(filename string) (string, error) {
	if err := CheckFilename(filename); err != nil {
		return "", err
	}
	return filepath.Join(m.dir, filename), nil
}

// CheckFilename rejects names that could escape the uploads directory.
func CheckFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return ErrInvalidFilename
	}
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return ErrInvalidFilename
	}
	if filepath.Base(filename) != filename {
		return ErrInvalidFilename
	}
	return nil
}

func hasAllowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func verifySQLiteHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	header := make([]byte, len(sqliteHeader))
	if _, err := io.ReadFull(f, header); err != nil {
		return ErrNotSQLite
	}
	if !bytes.Equal(header, sqliteHeader) {
		return ErrNotSQLite
	}
	return nil
}
