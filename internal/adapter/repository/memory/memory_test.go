package memory

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medchat/internal/domain/entity"
	"medchat/pkg/errors"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestConversationUpdateIsAtomic(t *testing.T) {
	store := NewStore()
	repo := NewConversationRepository(store)
	ctx := context.Background()

	conv := entity.NewConversation([]string{"b", "a"}, nil, t0)
	require.NoError(t, repo.Create(ctx, conv))
	require.NotEmpty(t, conv.ID)

	_, err := repo.Update(ctx, conv.ID, func(c *entity.Conversation) error {
		c.UnreadCounts["a"] = 7
		return stderrors.New("abort")
	})
	require.Error(t, err)

	got, err := repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadFor("a"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, conv.ID, func(c *entity.Conversation) error {
				c.UnreadCounts["a"]++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err = repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.UnreadFor("a"))

	_, err = repo.Update(ctx, "missing", func(*entity.Conversation) error { return nil })
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestFindByParticipantsMatchesActiveSetOnly(t *testing.T) {
	store := NewStore()
	repo := NewConversationRepository(store)
	ctx := context.Background()

	conv := entity.NewConversation([]string{"a", "b"}, nil, t0)
	require.NoError(t, repo.Create(ctx, conv))

	found, err := repo.FindByParticipants(ctx, []string{"b", "a", "a"})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, found.ID)

	_, err = repo.Update(ctx, conv.ID, func(c *entity.Conversation) error {
		c.Remove("b")
		return nil
	})
	require.NoError(t, err)

	_, err = repo.FindByParticipants(ctx, []string{"a", "b"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	involving, err := repo.ListInvolving(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, involving, 1)
	active, err := repo.ListByParticipant(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestConversationDeleteDropsMessages(t *testing.T) {
	store := NewStore()
	convs := NewConversationRepository(store)
	msgs := NewMessageRepository(store)
	ctx := context.Background()

	conv := entity.NewConversation([]string{"a", "b"}, nil, t0)
	require.NoError(t, convs.Create(ctx, conv))
	require.NoError(t, msgs.Create(ctx, &entity.Message{ID: "m1", ConversationID: conv.ID, Sender: "a", Timestamp: t0}))

	require.NoError(t, convs.Delete(ctx, conv.ID))

	_, err := convs.GetByID(ctx, conv.ID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	_, err = convs.FindByParticipants(ctx, []string{"a", "b"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	assert.Empty(t, store.messages[conv.ID])

	err = convs.Delete(ctx, conv.ID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestMessagesOrderingAndBulkMarks(t *testing.T) {
	store := NewStore()
	convs := NewConversationRepository(store)
	msgs := NewMessageRepository(store)
	ctx := context.Background()

	conv := entity.NewConversation([]string{"a", "b"}, nil, t0)
	require.NoError(t, convs.Create(ctx, conv))

	err := msgs.Create(ctx, &entity.Message{ConversationID: "missing", Sender: "a"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	for i, sender := range []string{"a", "b", "a"} {
		require.NoError(t, msgs.Create(ctx, &entity.Message{
			ID:             string(rune('x' + i)),
			ConversationID: conv.ID,
			Sender:         sender,
			Timestamp:      t0.Add(time.Duration(i) * time.Second),
			ReadBy:         []string{sender},
		}))
	}

	recent, err := msgs.ListRecent(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "z", recent[0].ID)
	assert.Equal(t, "y", recent[1].ID)

	before, err := msgs.ListBefore(ctx, conv.ID, t0.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, "x", before[0].ID)

	n, err := msgs.MarkReadBy(ctx, conv.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = msgs.MarkReadBy(ctx, conv.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = msgs.MarkDeletedFor(ctx, conv.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	latestFromB, err := msgs.FindLatest(ctx, conv.ID, func(m *entity.Message) bool { return m.Sender == "b" })
	require.NoError(t, err)
	assert.Equal(t, "y", latestFromB.ID)

	_, err = msgs.FindLatest(ctx, conv.ID, func(m *entity.Message) bool { return m.Sender == "c" })
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestWatchDeliversOnlyChanges(t *testing.T) {
	store := NewStore()
	users := NewUserRepository(store)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, users.Create(ctx, &entity.User{ID: "u", Role: entity.RolePatient}))

	var mu sync.Mutex
	var seen []entity.Presence
	done := make(chan error, 1)
	go func() {
		done <- users.WatchPresence(ctx, "u", func(p entity.Presence) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, p)
		})
	}()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(seen)
	}
	require.Eventually(t, func() bool { return count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, users.SetPresence(ctx, "u", true, t0))
	require.Eventually(t, func() bool { return count() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, users.Create(ctx, &entity.User{ID: "other"}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, count())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not return after cancel")
	}
}
