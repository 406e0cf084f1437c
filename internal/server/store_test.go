package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artcritique/brushup/pkg/notify"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	st.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return st
}

func TestStoreCreateAndList(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.Create(ctx, NewNotification{UserID: 1, Type: "critique", Title: "New critique", URL: "/artworks/3/", TargetID: 3})
	require.NoError(t, err)
	second, err := st.Create(ctx, NewNotification{UserID: 1, Title: "Reaction"})
	require.NoError(t, err)
	_, err = st.Create(ctx, NewNotification{UserID: 2, Title: "Someone else"})
	require.NoError(t, err)

	list, err := st.List(ctx, 1, 20)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "most recent first")
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, notify.ID(3), list[1].TargetID)
	assert.Equal(t, "critique", list[1].Type)
	assert.True(t, list[1].CreatedAt.Equal(first.CreatedAt.Time))
	assert.False(t, list[0].Read)

	limited, err := st.List(ctx, 1, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	empty, err := st.List(ctx, 99, 20)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestStoreMarkRead(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	n, err := st.Create(ctx, NewNotification{UserID: 1, Title: "New critique"})
	require.NoError(t, err)
	_, err = st.Create(ctx, NewNotification{UserID: 1, Title: "Reaction"})
	require.NoError(t, err)

	count, err := st.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, st.MarkRead(ctx, 1, n.ID))
	require.NoError(t, st.MarkRead(ctx, 1, n.ID), "marking twice succeeds")
	assert.ErrorIs(t, st.MarkRead(ctx, 2, n.ID), ErrNotFound, "other users cannot mark it")
	assert.ErrorIs(t, st.MarkRead(ctx, 1, 999), ErrNotFound)

	count, err = st.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	changed, err := st.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	count, err = st.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStoreOrdersByCreatedAtNotInsertOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	at := []time.Duration{10 * time.Second, 5*time.Second + 500*time.Millisecond, 10*time.Second + 250*time.Millisecond, 10 * time.Second}
	next := 0
	st.now = func() time.Time {
		d := at[next]
		next++
		return base.Add(d)
	}

	titles := []string{"ten", "five and a half", "ten and a quarter", "ten again"}
	for _, title := range titles {
		_, err := st.Create(ctx, NewNotification{UserID: 1, Title: title})
		require.NoError(t, err)
	}

	list, err := st.List(ctx, 1, 20)
	require.NoError(t, err)
	require.Len(t, list, 4)
	got := make([]string, 0, len(list))
	for _, n := range list {
		got = append(got, n.Title)
	}
	assert.Equal(t, []string{"ten and a quarter", "ten again", "ten", "five and a half"}, got)
	assert.True(t, list[0].CreatedAt.Equal(base.Add(10*time.Second+250*time.Millisecond)))
}

func TestStoreMigratesSchema(t *testing.T) {
	st := newTestStore(t)

	m := st.db.Migrator()
	assert.True(t, m.HasTable("notifications"))
	assert.True(t, m.HasIndex(&NotificationRecord{}, "idx_notifications_user_created"))
	for _, col := range []string{"user_id", "type", "title", "message", "url", "target_id", "created_at", "is_read"} {
		assert.True(t, m.HasColumn(&NotificationRecord{}, col), col)
	}
}
