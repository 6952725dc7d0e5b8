package store

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlScanBatch = 500

// SQL keeps documents as JSON rows of a single MySQL table, one row per
// document, tagged with their collection name.
type SQL struct {
	opts   Options
	schema migration
}

// NewSQL returns a MySQL-backed adapter.
func NewSQL(opts Options) *SQL {
	return &SQL{opts: opts.withDefaults()}
}

func (s *SQL) Name() string { return "sql" }

type documentRow struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Collection string `gorm:"size:191;index"`
	Body       string `gorm:"type:longtext"`
}

func (documentRow) TableName() string { return "documents" }

func sqlDSN(opts Options, host string, port int) string {
	q := url.Values{}
	q.Set("charset", "utf8mb4")
	q.Set("parseTime", "True")
	q.Set("loc", "Local")
	q.Set("timeout", opts.ConnectTimeout.String())

	return fmt.Sprintf("%s:%s@tcp(%s)/%s?%s",
		opts.Username, opts.Password, Addr(host, port), opts.Database, q.Encode())
}

func (s *SQL) Connect(ctx context.Context, host string, port int) (Conn, error) {
	db, err := gorm.Open(mysql.Open(sqlDSN(s.opts, host, port)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, connectError(host, port, err)
	}

	err = s.schema.run(func() error {
		return db.WithContext(ctx).AutoMigrate(&documentRow{})
	})
	if err != nil {
		closeGorm(db)
		return nil, connectError(host, port, fmt.Errorf("migrate: %w", err))
	}

	s.opts.Logger.Debug("sql.connect", "server", Addr(host, port), "db", s.opts.Database)

	// Every statement is acknowledged by MySQL; the write concern has no
	// stronger mode to map onto.
	return &sqlConn{db: db}, nil
}

// migration runs a schema change once per adapter. Connects racing on it
// wait for the first one; a failed attempt is retried by the next Connect.
type migration struct {
	mu   sync.Mutex
	done bool
}

func (m *migration) run(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	m.done = true
	return nil
}

type sqlConn struct {
	db *gorm.DB
}

func (c *sqlConn) Write(ctx context.Context, collection string, doc Doc) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return writeError(collection, err)
	}

	row := documentRow{Collection: collection, Body: string(body)}
	if err := c.db.WithContext(ctx).Create(&row).Error; err != nil {
		return writeError(collection, err)
	}
	return nil
}

func (c *sqlConn) Clear(ctx context.Context, collection string) error {
	err := c.db.WithContext(ctx).
		Where("collection = ?", collection).
		Delete(&documentRow{}).Error
	if err != nil {
		return writeError(collection, err)
	}
	return nil
}

func (c *sqlConn) Scan(ctx context.Context, collection string) iter.Seq2[Doc, error] {
	return func(yield func(Doc, error) bool) {
		var lastID uint64
		for {
			var rows []documentRow
			err := c.db.WithContext(ctx).
				Where("collection = ? AND id > ?", collection, lastID).
				Order("id").
				Limit(sqlScanBatch).
				Find(&rows).Error
			if err != nil {
				yield(nil, err)
				return
			}

			for _, row := range rows {
				var doc Doc
				if err := json.Unmarshal([]byte(row.Body), &doc); err != nil {
					yield(nil, fmt.Errorf("decode row %d: %w", row.ID, err))
					return
				}
				if !yield(doc, nil) {
					return
				}
				lastID = row.ID
			}

			if len(rows) < sqlScanBatch {
				return
			}
		}
	}
}

func (c *sqlConn) Close() error {
	return closeGorm(c.db)
}

func closeGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
