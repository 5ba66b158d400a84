package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Upload is a stored sensor log file. Payloads are kept gzipped and
// deduplicated by the hash of the uncompressed bytes.
type Upload struct {
	ID           int64
	ReceivedAt   time.Time
	Source       string // "upload", "ftp"
	Filename     string
	SizeBytes    int64
	PayloadHash  string
	Rows         sql.NullInt64
	QualityScore sql.NullInt64
	QualityFlags sql.NullString
}

// StoreUpload stores a compressed file payload. When an identical payload
// already exists its record is returned with duplicate set.
func (s *Store) StoreUpload(source, filename string, payload []byte) (*Upload, bool, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return nil, false, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, false, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)
	hashHex := hex.EncodeToString(hash[:])

	res, err := s.db.Exec(`
		INSERT INTO uploads (received_at, source, filename, size_bytes, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, time.Now().UTC(), source, filename, len(payload), buf.Bytes(), hashHex)
	if err != nil {
		return nil, false, fmt.Errorf("insert upload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	u, err := s.GetUploadByHash(hashHex)
	if err != nil {
		return nil, false, err
	}
	if u == nil {
		return nil, false, fmt.Errorf("upload %s: %w", hashHex, ErrNotFound)
	}
	return u, n == 0, nil
}

// SetUploadQuality records the audit of a parsed upload.
func (s *Store) SetUploadQuality(id int64, rows, score int, flags string) error {
	res, err := s.db.Exec(`
		UPDATE uploads SET rows = ?, quality_score = ?, quality_flags = ?
		WHERE id = ?
	`, rows, score, sql.NullString{String: flags, Valid: flags != ""}, id)
	if err != nil {
		return err
	}
	return expectOne(res, fmt.Sprintf("upload %d", id))
}

// GetUploadPayload retrieves and decompresses a stored payload by ID.
func (s *Store) GetUploadPayload(id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT payload_compressed FROM uploads WHERE id = ?`, id).
		Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("upload %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

const uploadColumns = `id, received_at, source, filename, size_bytes, payload_hash, rows, quality_score, quality_flags`

func scanUpload(sc scanner) (*Upload, error) {
	var u Upload
	err := sc.Scan(&u.ID, &u.ReceivedAt, &u.Source, &u.Filename, &u.SizeBytes,
		&u.PayloadHash, &u.Rows, &u.QualityScore, &u.QualityFlags)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUploadByHash looks an upload up by payload hash. It returns nil when
// there is none.
func (s *Store) GetUploadByHash(hash string) (*Upload, error) {
	u, err := scanUpload(s.db.QueryRow(`SELECT `+uploadColumns+` FROM uploads WHERE payload_hash = ?`, hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// ListUploads returns the most recent uploads first.
func (s *Store) ListUploads(limit int) ([]Upload, error) {
	rows, err := s.db.Query(`SELECT `+uploadColumns+` FROM uploads ORDER BY received_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UploadStats contains storage statistics for uploads.
type UploadStats struct {
	TotalCount     int
	TotalSizeBytes int64
	CountBySource  map[string]int
	SizeBySource   map[string]int64
}

func (s *Store) GetUploadStats() (*UploadStats, error) {
	stats := &UploadStats{
		CountBySource: make(map[string]int),
		SizeBySource:  make(map[string]int64),
	}

	rows, err := s.db.Query(`
		SELECT source, COUNT(*), SUM(LENGTH(payload_compressed))
		FROM uploads
		GROUP BY source
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count int
		var size int64
		if err := rows.Scan(&source, &count, &size); err != nil {
			return nil, err
		}
		stats.CountBySource[source] = count
		stats.SizeBySource[source] = size
		stats.TotalCount += count
		stats.TotalSizeBytes += size
	}
	return stats, rows.Err()
}

// CleanupOldUploads deletes uploads older than retentionDays and returns how
// many were removed.
func (s *Store) CleanupOldUploads(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := s.db.Exec(`DELETE FROM uploads WHERE received_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
