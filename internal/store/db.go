package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"parcel/internal/model"
)

const (
	BucketUploads  = "uploads"
	BucketStats    = "stats"
	DbName         = "parcel.db"
	KeyGlobalStats = "global"
)

var ErrNotFound = errors.New("not found")

// GlobalStats stores cumulative upload statistics
type GlobalStats struct {
	TotalUploaded  int64     `json:"totalUploaded"`  // File bytes accepted by the host (all time)
	CompletedTasks int64     `json:"completedTasks"` // Uploads the host confirmed
	FailedTasks    int64     `json:"failedTasks"`    // Uploads that ended in error
	LastUpdated    time.Time `json:"lastUpdated"`
}

type DB struct {
	db *bbolt.DB
}

// New opens (or creates) the history database inside dataDir.
func New(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := bbolt.Open(filepath.Join(dataDir, DbName), 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketUploads)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketStats)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) SaveUpload(rec *model.UploadRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("save upload: empty id")
	}
	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketUploads))
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.ID), data)
	})
}

func (d *DB) GetUpload(id string) (*model.UploadRecord, error) {
	var rec model.UploadRecord
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketUploads))
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListUploads returns records newest first. An empty status matches all;
// limit <= 0 means no limit.
func (d *DB) ListUploads(status model.UploadStatus, limit int) ([]*model.UploadRecord, error) {
	var out []*model.UploadRecord
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketUploads))
		return b.ForEach(func(k, v []byte) error {
			var rec model.UploadRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // Skip malformed
			}
			if status == "" || rec.Status == status {
				out = append(out, &rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *DB) DeleteUpload(id string) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketUploads))
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

// ResetStuckUploads marks records left queued or uploading by a previous
// run as failed with reason and returns how many were changed.
func (d *DB) ResetStuckUploads(reason string) (int, error) {
	count := 0
	err := d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketUploads))
		stale := map[string][]byte{}
		err := b.ForEach(func(k, v []byte) error {
			var rec model.UploadRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			if rec.Status != model.StatusUploading && rec.Status != model.StatusQueued {
				return nil
			}
			if err := rec.TransitionTo(model.StatusError); err != nil {
				return nil
			}
			rec.Error = reason
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			stale[string(k)] = data
			return nil
		})
		if err != nil {
			return err
		}
		// The bucket must not change while ForEach walks it.
		for k, data := range stale {
			if err := b.Put([]byte(k), data); err != nil {
				return err
			}
		}
		count = len(stale)
		return nil
	})
	return count, err
}

// CountByStatus returns the number of records per status.
func (d *DB) CountByStatus() (map[model.UploadStatus]int, error) {
	counts := map[model.UploadStatus]int{}
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketUploads))
		return b.ForEach(func(k, v []byte) error {
			var rec model.UploadRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			counts[rec.Status]++
			return nil
		})
	})
	return counts, err
}

// GetStats returns cumulative upload statistics
func (d *DB) GetStats() (*GlobalStats, error) {
	var stats GlobalStats
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketStats))
		data := b.Get([]byte(KeyGlobalStats))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &stats)
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// UpdateStats atomically updates cumulative statistics
func (d *DB) UpdateStats(fn func(*GlobalStats)) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketStats))
		var stats GlobalStats

		data := b.Get([]byte(KeyGlobalStats))
		if data != nil {
			if err := json.Unmarshal(data, &stats); err != nil {
				return err
			}
		}

		fn(&stats)
		stats.LastUpdated = time.Now()

		newData, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return b.Put([]byte(KeyGlobalStats), newData)
	})
}

// AddCompleted records a finished upload of size bytes.
func (d *DB) AddCompleted(bytes int64) error {
	return d.UpdateStats(func(s *GlobalStats) {
		s.TotalUploaded += bytes
		s.CompletedTasks++
	})
}

func (d *DB) AddFailed() error {
	return d.UpdateStats(func(s *GlobalStats) {
		s.FailedTasks++
	})
}
