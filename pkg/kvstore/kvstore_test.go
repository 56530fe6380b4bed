package kvstore

import (
	"context"
	"errors"
	"testing"

	"github.com/brendoncarroll/stdctx/logctx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kitewallet/kite/pkg/dbutil"
)

var ctx = logctx.WithFmtLogger(context.Background(), logrus.StandardLogger())

type testRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (r *testRecord) check() error {
	if r.Count < 0 {
		return errors.New("negative count")
	}
	return nil
}

func newTestNamespace(t *testing.T, b Backing) *Namespace[testRecord] {
	s, err := Open(ctx, b, 1)
	require.NoError(t, err)
	return NewNamespace(s, "records", (*testRecord).check)
}

func TestRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		b    Backing
	}{
		{"mem", NewMemBacking()},
		{"sqlite", newSQLite(t)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ns := newTestNamespace(t, tc.b)
			_, ok := ns.Get(ctx, "a")
			require.False(t, ok)
			require.NoError(t, ns.Put(ctx, "a", testRecord{Name: "x", Count: 2}))
			v, ok := ns.Get(ctx, "a")
			require.True(t, ok)
			require.Equal(t, testRecord{Name: "x", Count: 2}, v)

			// A fresh Store over the same backing sees the committed value.
			s2, err := Open(ctx, tc.b, 1)
			require.NoError(t, err)
			ns2 := NewNamespace(s2, "records", (*testRecord).check)
			v, ok = ns2.Get(ctx, "a")
			require.True(t, ok)
			require.Equal(t, testRecord{Name: "x", Count: 2}, v)
		})
	}
}

func TestDelete(t *testing.T) {
	ns := newTestNamespace(t, NewMemBacking())
	require.NoError(t, ns.Put(ctx, "a", testRecord{Count: 1}))
	require.NoError(t, ns.Delete(ctx, "a"))
	_, ok := ns.Get(ctx, "a")
	require.False(t, ok)
}

func TestKeysScopedToNamespace(t *testing.T) {
	b := NewMemBacking()
	s, err := Open(ctx, b, 1)
	require.NoError(t, err)
	nsA := NewNamespace[testRecord](s, "aaa", nil)
	nsB := NewNamespace[testRecord](s, "bbb", nil)
	require.NoError(t, nsA.Put(ctx, "k1", testRecord{}))
	require.NoError(t, nsA.Put(ctx, "k2", testRecord{}))
	require.NoError(t, nsB.Put(ctx, "k1", testRecord{}))
	keys, err := nsA.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"k1", "k2"}, keys)
	keys, err = nsB.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"k1"}, keys)
}

func TestCorruptRecordReadsAbsent(t *testing.T) {
	b := NewMemBacking()
	s, err := Open(ctx, b, 1)
	require.NoError(t, err)
	ns := NewNamespace(s, "records", (*testRecord).check)
	require.NoError(t, ns.Put(ctx, "a", testRecord{Count: 1}))

	require.NoError(t, s.PutRaw(ctx, "records.a", []byte("{not json")))
	_, ok := ns.Get(ctx, "a")
	require.False(t, ok)

	// A record that decodes but fails validation also reads as absent.
	require.NoError(t, s.PutRaw(ctx, "records.a", []byte(`{"name":"x","count":-1}`)))
	_, ok = ns.Get(ctx, "a")
	require.False(t, ok)

	// The key is still writable afterwards.
	require.NoError(t, ns.Put(ctx, "a", testRecord{Count: 3}))
	v, ok := ns.Get(ctx, "a")
	require.True(t, ok)
	require.Equal(t, 3, v.Count)
}

func TestInvalidWritePanics(t *testing.T) {
	ns := newTestNamespace(t, NewMemBacking())
	require.Panics(t, func() {
		_ = ns.Put(ctx, "a", testRecord{Count: -5})
	})
	// Nothing was persisted.
	_, ok := ns.Get(ctx, "a")
	require.False(t, ok)
}

func TestVersionBumpWipes(t *testing.T) {
	b := NewMemBacking()
	ns := newTestNamespace(t, b)
	require.NoError(t, ns.Put(ctx, "a", testRecord{Count: 1}))
	require.NoError(t, ns.Put(ctx, "b", testRecord{Count: 2}))

	s2, err := Open(ctx, b, 2)
	require.NoError(t, err)
	ns2 := NewNamespace(s2, "records", (*testRecord).check)
	_, ok := ns2.Get(ctx, "a")
	require.False(t, ok)
	_, ok = ns2.Get(ctx, "b")
	require.False(t, ok)
	keys, err := ns2.Keys(ctx)
	require.NoError(t, err)
	require.Empty(t, keys)

	// Same version again does not wipe.
	require.NoError(t, ns2.Put(ctx, "c", testRecord{Count: 3}))
	s3, err := Open(ctx, b, 2)
	require.NoError(t, err)
	ns3 := NewNamespace(s3, "records", (*testRecord).check)
	_, ok = ns3.Get(ctx, "c")
	require.True(t, ok)
}

func newSQLite(t *testing.T) Backing {
	db := dbutil.NewTestDB(t)
	b, err := NewSQLiteBacking(context.Background(), db)
	require.NoError(t, err)
	return b
}
