package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	rowsBucket   = "rows"
	schemaBucket = "schema"
	headerKey    = "header"
)

// boltStore keeps rows in a local BoltDB file. Keys come from the bucket
// sequence, so cursor order is insertion order.
type boltStore struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (*boltStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(rowsBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(schemaBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}
	return &boltStore{db: db}, nil
}

// ReadAll returns the stored header and every row in insertion order.
func (b *boltStore) ReadAll(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot := &Snapshot{}
	err := b.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket([]byte(schemaBucket)).Get([]byte(headerKey)); raw != nil {
			if err := json.Unmarshal(raw, &snapshot.Header); err != nil {
				return fmt.Errorf("decode header: %w", err)
			}
		}

		return tx.Bucket([]byte(rowsBucket)).ForEach(func(k, v []byte) error {
			var row Row
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("decode row %d: %w", binary.BigEndian.Uint64(k), err)
			}
			snapshot.Rows = append(snapshot.Rows, row)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// InitializeSchema stores the header.
func (b *boltStore) InitializeSchema(ctx context.Context, header []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(schemaBucket)).Put([]byte(headerKey), raw)
	})
}

// AppendRows writes all rows in one transaction.
func (b *boltStore) AppendRows(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(rowsBucket))
		for _, row := range rows {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			raw, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("encode row: %w", err)
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, seq)
			if err := bucket.Put(key, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
