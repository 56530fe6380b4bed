// Package kvstore is a namespace-partitioned, codec-validated key/value
// store over a pluggable durable backing.
//
// Records live under "<namespace>.<key>". Reads of missing or undecodable
// records report absence, never an error: every cached value is re-derivable
// from the network, so a record that stopped decoding across a schema bump
// is simply "not synced yet". Writes are validated before commit; a value
// that fails validation is a programming error and panics rather than being
// persisted.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/brendoncarroll/stdctx/logctx"
)

const versionKey = "format-version"

type Store struct {
	b Backing
}

// Open prepares a Store over b. If the backing carries a different format
// version than version, every record is wiped and the stamp rewritten; all
// cached state is re-derivable so a full resync is cheaper than migration.
func Open(ctx context.Context, b Backing, version int) (*Store, error) {
	raw, ok, err := b.Get(ctx, versionKey)
	if err != nil {
		return nil, err
	}
	if !ok || string(raw) != strconv.Itoa(version) {
		if ok {
			logctx.Warnf(ctx, "kvstore: format version %s != %d, wiping", raw, version)
		}
		keys, err := b.List(ctx, "")
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if err := b.Delete(ctx, k); err != nil {
				return nil, err
			}
		}
		if err := b.Put(ctx, versionKey, []byte(strconv.Itoa(version))); err != nil {
			return nil, err
		}
	}
	return &Store{b: b}, nil
}

func (s *Store) Close() error { return s.b.Close() }

// Namespace is a typed view over one key partition of a Store.
type Namespace[T any] struct {
	s     *Store
	name  string
	check func(*T) error
}

// NewNamespace creates a typed namespace. check validates values before
// every write; a nil check skips validation.
func NewNamespace[T any](s *Store, name string, check func(*T) error) *Namespace[T] {
	if strings.Contains(name, ".") {
		panic(fmt.Sprintf("kvstore: invalid namespace %q", name))
	}
	return &Namespace[T]{s: s, name: name, check: check}
}

func (n *Namespace[T]) Name() string { return n.name }

func (n *Namespace[T]) recordKey(key string) string {
	return n.name + "." + key
}

// Get returns the value at key. Missing, undecodable, and invalid records
// all report absence.
func (n *Namespace[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	raw, ok, err := n.s.b.Get(ctx, n.recordKey(key))
	if err != nil {
		logctx.Errorf(ctx, "kvstore: read %s.%s: %v", n.name, key, err)
		return zero, false
	}
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		logctx.Warnf(ctx, "kvstore: undecodable record %s.%s: %v", n.name, key, err)
		return zero, false
	}
	if n.check != nil {
		if err := n.check(&v); err != nil {
			logctx.Warnf(ctx, "kvstore: invalid record %s.%s: %v", n.name, key, err)
			return zero, false
		}
	}
	return v, true
}

// Put validates v and writes it through to the backing. A validation
// failure panics: it means the in-memory value diverged from its
// serializable contract, and persisting it would corrupt the store.
func (n *Namespace[T]) Put(ctx context.Context, key string, v T) error {
	if n.check != nil {
		if err := n.check(&v); err != nil {
			panic(fmt.Sprintf("kvstore: writing invalid value to %s.%s: %v", n.name, key, err))
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("kvstore: unserializable value for %s.%s: %v", n.name, key, err))
	}
	return n.s.b.Put(ctx, n.recordKey(key), raw)
}

// Delete removes the durable record at key.
func (n *Namespace[T]) Delete(ctx context.Context, key string) error {
	return n.s.b.Delete(ctx, n.recordKey(key))
}

// Keys lists every key present in the namespace.
func (n *Namespace[T]) Keys(ctx context.Context) ([]string, error) {
	prefix := n.name + "."
	raw, err := n.s.b.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, prefix))
	}
	return keys, nil
}

// PutRaw writes a record without codec validation, addressed by its full
// "<namespace>.<key>" form.
func (s *Store) PutRaw(ctx context.Context, recordKey string, raw []byte) error {
	return s.b.Put(ctx, recordKey, raw)
}
