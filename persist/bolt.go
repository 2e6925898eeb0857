package persist

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var updatesBucket = []byte("updates")

// Bolt is an UpdateLog in a local bbolt file. Each document gets a nested
// bucket keyed by the bucket's big-endian sequence number, so a cursor walk
// returns updates in append order.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates the log file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open update log %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(updatesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize update log: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Append implements UpdateLog. The peer ID is not stored; the update itself
// carries its authors.
func (b *Bolt) Append(_ context.Context, docID, _ string, update []byte) error {
	if docID == "" {
		return ErrEmptyDocID
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		doc, err := tx.Bucket(updatesBucket).CreateBucketIfNotExists([]byte(docID))
		if err != nil {
			return fmt.Errorf("failed to create bucket for %s: %w", docID, err)
		}
		seq, err := doc.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return doc.Put(key, update)
	})
}

// Load implements UpdateLog.
func (b *Bolt) Load(_ context.Context, docID string) ([][]byte, error) {
	var updates [][]byte
	err := b.db.View(func(tx *bolt.Tx) error {
		doc := tx.Bucket(updatesBucket).Bucket([]byte(docID))
		if doc == nil {
			return nil
		}
		return doc.ForEach(func(_, v []byte) error {
			// Values are only valid for the life of the transaction.
			updates = append(updates, append([]byte(nil), v...))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load updates for %s: %w", docID, err)
	}
	return updates, nil
}

// Close implements UpdateLog.
func (b *Bolt) Close() error {
	return b.db.Close()
}
