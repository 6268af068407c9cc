package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

// Backup is the on-disk artifact written before a collection is dropped.
type Backup struct {
	CollectionName string          `json:"collection_name"`
	OldDimension   int             `json:"old_dimension"`
	NewDimension   int             `json:"new_dimension"`
	Timestamp      int64           `json:"timestamp"`
	RecordCount    int             `json:"record_count"`
	Records        []vector.Record `json:"records"`
}

// BackupFileName returns memory_backup_<collection>_<old>to<new>_<unix>.json.
func BackupFileName(collection string, oldDim, newDim int, ts time.Time) string {
	return fmt.Sprintf("memory_backup_%s_%dto%d_%d.json", collection, oldDim, newDim, ts.Unix())
}

// WriteBackup writes b under dir and returns its path. The file is written
// to a temporary name and renamed, so the final name only ever holds a
// complete artifact.
func WriteBackup(dir string, b *Backup) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory %s: %w", dir, err)
	}

	b.RecordCount = len(b.Records)
	name := BackupFileName(b.CollectionName, b.OldDimension, b.NewDimension, time.Unix(b.Timestamp, 0))
	final := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating backup temp file: %w", err)
	}
	tmpPath := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("encoding backup: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("syncing backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing backup: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming backup into place: %w", err)
	}
	return final, nil
}

// ReadBackup loads an artifact written by WriteBackup.
func ReadBackup(path string) (*Backup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading backup %s: %w", path, err)
	}
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: decoding backup %s: %w", vector.ErrValidation, path, err)
	}
	if b.RecordCount != len(b.Records) {
		return nil, fmt.Errorf("%w: backup %s declares %d records but holds %d",
			vector.ErrValidation, path, b.RecordCount, len(b.Records))
	}
	return &b, nil
}
