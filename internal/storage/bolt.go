package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"docstress/internal/store"
)

const (
	BucketRuns = "runs"

	// rows read per transaction while scanning
	boltPageSize = 256
)

// BoltStore keeps report rows in a local bbolt file. Keys are the bucket
// sequence, big-endian, so cursor order is insertion order.
type BoltStore struct {
	db       *bbolt.DB
	filePath string
}

// DefaultBoltPath is ~/.docstress/results.db.
func DefaultBoltPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".docstress", "results.db"), nil
}

func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// Initialize Buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{
		db:       db,
		filePath: path,
	}, nil
}

func (s *BoltStore) Path() string { return s.filePath }

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Append(_ context.Context, rows []store.Doc) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))

		for _, row := range rows {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := b.Put(itob(seq), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Scan pages through the bucket so that no read transaction stays open
// while the caller consumes rows.
func (s *BoltStore) Scan(ctx context.Context, f Filter) iter.Seq2[store.Doc, error] {
	return func(yield func(store.Doc, error) bool) {
		var after []byte
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, last, err := s.page(after)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, row := range page {
				if f.Match(row) && !yield(row, nil) {
					return
				}
			}

			if last == nil {
				return
			}
			after = last
		}
	}
}

// page reads up to boltPageSize rows after key. last is nil once the bucket
// is exhausted.
func (s *BoltStore) page(after []byte) ([]store.Doc, []byte, error) {
	var (
		rows []store.Doc
		last []byte
	)

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()

		var k, v []byte
		if after == nil {
			k, v = c.First()
		} else {
			k, v = c.Seek(after)
			if k != nil && string(k) == string(after) {
				k, v = c.Next()
			}
		}

		for ; k != nil; k, v = c.Next() {
			var row store.Doc
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("decode row %d: %w", binary.BigEndian.Uint64(k), err)
			}
			rows = append(rows, row)

			if len(rows) == boltPageSize {
				last = append([]byte(nil), k...)
				break
			}
		}
		return nil
	})

	return rows, last, err
}

func (s *BoltStore) Clear(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(BucketRuns)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(BucketRuns))
		return err
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
