// Package roomindex is a small bbolt-backed side table of room
// metadata (last-active time, last sequence seen) used only by the
// admin "/rooms" listing. It never participates in the per-room
// serialization domain and a failure here never fails a room op —
// the per-room JSON snapshot in package store remains the sole
// authority for committed-history durability.
package roomindex

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"
)

var bucketName = []byte("rooms")

// Record is one entry in the directory index.
type Record struct {
	RoomID       string    `json:"roomId"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	LastSeq      uint64    `json:"lastSeq"`
}

// Index wraps a bbolt database file.
type Index struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and
// ensures the rooms bucket exists.
func Open(path string) (*Index, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database file.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Touch upserts a room's last-active time and last known sequence.
func (idx *Index) Touch(roomID string, seq uint64) error {
	rec := Record{RoomID: roomID, LastActiveAt: time.Now(), LastSeq: seq}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return idx.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(roomID), data)
	})
}

// List returns every known room, in no particular order.
func (idx *Index) List() ([]Record, error) {
	var records []Record
	err := idx.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				// A corrupted entry is skipped, not fatal — this
				// index is observational only.
				return nil
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}
