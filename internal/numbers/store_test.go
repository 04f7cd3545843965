package numbers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "numbers.db"))
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	t.Cleanup(func() { s.Close() })
	return s
}

func numbersOf(list []Number) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.Number
	}
	return out
}

func TestUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, Number{Number: "+15550001", FriendlyName: "(555) 0001", SID: "PN1"}))
	n, err := s.Get(ctx, "+15550001")
	require.NoError(t, err)
	assert.Equal(t, "PN1", n.SID)
	assert.False(t, n.IsDefault)
	assert.Equal(t, "+15550001", n.DisplayName())
	assert.Equal(t, int64(1700000000), n.CreatedAt.Unix())

	require.NoError(t, s.Upsert(ctx, Number{Number: "+15550001", Nickname: "Office", SID: "PN1b"}))
	n, err = s.Get(ctx, "+15550001")
	require.NoError(t, err)
	assert.Equal(t, "Office", n.DisplayName())
	assert.Equal(t, "PN1b", n.SID)

	_, err = s.Get(ctx, "+1999")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Error(t, s.Upsert(ctx, Number{}))
}

func TestListOrdering(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, Number{Number: "+3", Nickname: "b"}))
	require.NoError(t, s.Upsert(ctx, Number{Number: "+2", Nickname: "a"}))
	require.NoError(t, s.Upsert(ctx, Number{Number: "+1"}))
	require.NoError(t, s.Upsert(ctx, Number{Number: "+4", Nickname: "z"}))
	require.NoError(t, s.SetDefault(ctx, "+4"))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"+4", "+1", "+2", "+3"}, numbersOf(list))
	assert.True(t, list[0].IsDefault)
}

func TestSetDefaultIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Default(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Upsert(ctx, Number{Number: "+1"}))
	require.NoError(t, s.Upsert(ctx, Number{Number: "+2"}))

	require.NoError(t, s.SetDefault(ctx, "+1"))
	require.NoError(t, s.SetDefault(ctx, "+2"))

	def, err := s.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, "+2", def.Number)

	list, err := s.List(ctx)
	require.NoError(t, err)
	defaults := 0
	for _, n := range list {
		if n.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestSetDefaultUnknownKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, Number{Number: "+1"}))
	require.NoError(t, s.SetDefault(ctx, "+1"))

	assert.ErrorIs(t, s.SetDefault(ctx, "+9"), ErrNotFound)

	def, err := s.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, "+1", def.Number, "failed transaction rolled back")
}

func TestUpsertKeepsDefault(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, Number{Number: "+1"}))
	require.NoError(t, s.SetDefault(ctx, "+1"))
	require.NoError(t, s.Upsert(ctx, Number{Number: "+1", Nickname: "Home"}))

	def, err := s.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Home", def.Nickname)
}

func TestDeleteAndNickname(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, Number{Number: "+1"}))
	require.NoError(t, s.SetNickname(ctx, "+1", "Cell"))
	assert.Equal(t, "Cell", s.Resolve(ctx, "+1"))
	assert.Equal(t, "+2", s.Resolve(ctx, "+2"))
	assert.ErrorIs(t, s.SetNickname(ctx, "+2", "x"), ErrNotFound)

	require.NoError(t, s.Delete(ctx, "+1"))
	assert.ErrorIs(t, s.Delete(ctx, "+1"), ErrNotFound)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSyncPreservesLocalFields(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, Number{Number: "+2", Nickname: "Mine", SID: "old"}))

	n, err := s.Sync(ctx, []Number{
		{Number: "+1", FriendlyName: "One", SID: "PN1"},
		{Number: "+2", FriendlyName: "Two", SID: "PN2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	two, err := s.Get(ctx, "+2")
	require.NoError(t, err)
	assert.Equal(t, "Mine", two.Nickname)
	assert.Equal(t, "PN2", two.SID)
	assert.Equal(t, "Two", two.FriendlyName)

	def, err := s.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, "+1", def.Number, "first synced number becomes default")

	_, err = s.Sync(ctx, []Number{{Number: "+2"}})
	require.NoError(t, err)
	def, err = s.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, "+1", def.Number, "existing default kept")
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "numbers.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, Number{Number: "+1"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDisplayNames(t *testing.T) {
	n := Number{Number: "+15551234567"}
	assert.Equal(t, "+15551234567", n.DisplayName())
	assert.Equal(t, "+15551234567", n.FormattedDisplay())

	n.Nickname = "Office"
	assert.Equal(t, "Office", n.DisplayName())
	assert.Equal(t, "Office (+15551234567)", n.FormattedDisplay())
}
