package storage

import (
	"context"
	"iter"

	"docstress/internal/store"
)

// CollectionStore keeps report rows in a collection of the target store,
// next to the data collection the run writes.
type CollectionStore struct {
	conn       store.Conn
	collection string
}

// NewCollectionStore takes ownership of conn; Close closes it.
func NewCollectionStore(conn store.Conn, collection string) *CollectionStore {
	if collection == "" {
		collection = DefaultReportCollection
	}
	return &CollectionStore{conn: conn, collection: collection}
}

func (s *CollectionStore) Append(ctx context.Context, rows []store.Doc) error {
	for _, row := range rows {
		if err := s.conn.Write(ctx, s.collection, row); err != nil {
			return err
		}
	}
	return nil
}

func (s *CollectionStore) Scan(ctx context.Context, f Filter) iter.Seq2[store.Doc, error] {
	return func(yield func(store.Doc, error) bool) {
		for row, err := range s.conn.Scan(ctx, s.collection) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !f.Match(row) {
				continue
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

func (s *CollectionStore) Clear(ctx context.Context) error {
	return s.conn.Clear(ctx, s.collection)
}

func (s *CollectionStore) Close() error {
	return s.conn.Close()
}
