package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"golang.org/x/exp/slices"

	"github.com/kitewallet/kite/pkg/dbutil"
)

// Backing is the durable substrate under a Store. Implementations must be
// safe for concurrent use.
type Backing interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List returns every key beginning with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// SQLiteBacking stores records in a single table.
type SQLiteBacking struct {
	db *sqlx.DB
}

func NewSQLiteBacking(ctx context.Context, db *sqlx.DB) (*SQLiteBacking, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS records (
		k TEXT NOT NULL,
		v BLOB NOT NULL,
		PRIMARY KEY(k)
	);`); err != nil {
		return nil, err
	}
	return &SQLiteBacking{db: db}, nil
}

func (b *SQLiteBacking) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	if err := b.db.GetContext(ctx, &value, `SELECT v FROM records WHERE k = ?`, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (b *SQLiteBacking) Put(ctx context.Context, key string, value []byte) error {
	return dbutil.DoTx(ctx, b.db, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO records (k, v) VALUES (?, ?)
			ON CONFLICT(k) DO UPDATE SET v = excluded.v`, key, value)
		return err
	})
}

func (b *SQLiteBacking) Delete(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM records WHERE k = ?`, key)
	return err
}

func (b *SQLiteBacking) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.SelectContext(ctx, &keys,
		`SELECT k FROM records WHERE k >= ? AND k < ? ORDER BY k`,
		prefix, prefix+"\xff")
	return keys, err
}

func (b *SQLiteBacking) Close() error {
	return b.db.Close()
}

// LevelDBBacking stores records in a leveldb database.
type LevelDBBacking struct {
	db *leveldb.DB
}

func NewLevelDBBacking(path string) (*LevelDBBacking, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBBacking{db: db}, nil
}

func (b *LevelDBBacking) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := b.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (b *LevelDBBacking) Put(ctx context.Context, key string, value []byte) error {
	return b.db.Put([]byte(key), value, nil)
}

func (b *LevelDBBacking) Delete(ctx context.Context, key string) error {
	return b.db.Delete([]byte(key), nil)
}

func (b *LevelDBBacking) List(ctx context.Context, prefix string) ([]string, error) {
	iter := b.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	return keys, iter.Error()
}

func (b *LevelDBBacking) Close() error {
	return b.db.Close()
}

// MemBacking is an in-memory Backing for tests and ephemeral runs.
type MemBacking struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemBacking() *MemBacking {
	return &MemBacking{data: make(map[string][]byte)}
}

func (b *MemBacking) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	value, ok := b.data[key]
	return value, ok, nil
}

func (b *MemBacking) Put(ctx context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte{}, value...)
	return nil
}

func (b *MemBacking) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *MemBacking) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var keys []string
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (b *MemBacking) Close() error { return nil }
