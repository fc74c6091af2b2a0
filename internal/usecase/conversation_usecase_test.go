package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medchat/internal/domain/entity"
	"medchat/internal/domain/repository"
	"medchat/internal/infrastructure/attachment"
	"medchat/pkg/errors"
)

func TestCreateOrReuse_NewConversation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	id := env.startChat(t)

	conv := env.conv(t, id)
	assert.Equal(t, []string{doctorID, patientID}, conv.Participants)
	assert.Empty(t, conv.RemovedParticipants)
	assert.Empty(t, conv.Muted)
	assert.Equal(t, map[string]int{doctorID: 1, patientID: 0}, conv.UnreadCounts)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "Hello", conv.LastMessage.Content)
	assert.Equal(t, patientID, conv.LastMessage.Sender)

	assert.Equal(t, "Dr. Grey", conv.ParticipantDetails[doctorID].DisplayName)
	assert.Equal(t, "Cardiology", conv.ParticipantDetails[doctorID].Specialty)
	assert.Equal(t, "1990-04-12", conv.ParticipantDetails[patientID].DOB)

	msgs, err := env.messages.ListRecent(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, entity.MessageStatusDelivered, msgs[0].Status)
	assert.Equal(t, []string{patientID}, msgs[0].ReadBy)
	assert.Empty(t, msgs[0].DeletedFor)
}

func TestCreateOrReuse_ReturnsSameConversation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first := env.startChat(t)
	second, err := env.conversation.CreateOrReuse(ctx, patientID, []string{doctorID, patientID}, "hi")
	require.NoError(t, err)
	third, err := env.conversation.CreateOrReuse(ctx, doctorID, []string{patientID}, "hi")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)

	msgs, err := env.messages.ListRecent(ctx, first, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestCreateOrReuse_ReactivatesSoftDeletedOneToOne(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	id := env.startChat(t)
	require.NoError(t, env.conversation.SoftDelete(ctx, id, doctorID))

	again, err := env.conversation.CreateOrReuse(ctx, patientID, []string{doctorID}, "Are you there?")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	conv := env.conv(t, id)
	assert.Equal(t, []string{doctorID, patientID}, conv.Participants)
	assert.Empty(t, conv.RemovedParticipants)
}

func TestCreateOrReuse_GroupIsNotReusedForPair(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	group, err := env.conversation.CreateOrReuse(ctx, patientID, []string{doctorID, nurseID}, "Hi all")
	require.NoError(t, err)

	pair, err := env.conversation.CreateOrReuse(ctx, patientID, []string{doctorID}, "Just us")
	require.NoError(t, err)
	assert.NotEqual(t, group, pair)

	// A group with a third member among the removed is never reduced to a 1:1.
	require.NoError(t, env.conversation.SoftDelete(ctx, pair, doctorID))
	require.NoError(t, env.conversation.SoftDelete(ctx, group, doctorID))
	require.NoError(t, env.conversation.SoftDelete(ctx, group, nurseID))

	again, err := env.conversation.CreateOrReuse(ctx, patientID, []string{doctorID}, "Hello again")
	require.NoError(t, err)
	assert.Equal(t, pair, again)
	assert.Equal(t, []string{patientID}, env.conv(t, group).Participants)
}

func TestCreateOrReuse_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.conversation.CreateOrReuse(ctx, patientID, []string{patientID}, "hi")
	assert.True(t, errors.Is(err, errors.CodeBadRequest))

	_, err = env.conversation.CreateOrReuse(ctx, patientID, []string{doctorID}, "  ")
	assert.True(t, errors.Is(err, errors.CodeBadRequest))
}

func TestCreateOrReuse_MissingProfileIsNotFatal(t *testing.T) {
	env := newTestEnv(t, nil)

	id, err := env.conversation.CreateOrReuse(context.Background(), patientID, []string{"ghost"}, "hello?")
	require.NoError(t, err)

	conv := env.conv(t, id)
	assert.Equal(t, entity.ParticipantDetail{}, conv.ParticipantDetails["ghost"])
	assert.Equal(t, 1, conv.UnreadFor("ghost"))
}

func TestSend_UnreadAccounting(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	id, err := env.conversation.CreateOrReuse(ctx, patientID, []string{doctorID, nurseID}, "Hi all")
	require.NoError(t, err)

	senders := []string{doctorID, doctorID, nurseID, patientID, doctorID}
	for _, sender := range senders {
		before := env.conv(t, id).UnreadCounts
		env.send(t, id, sender, "update from "+sender)
		after := env.conv(t, id).UnreadCounts

		for _, p := range []string{doctorID, patientID, nurseID} {
			if p == sender {
				assert.Equal(t, 0, after[p], "sender %s", sender)
				continue
			}
			assert.Equal(t, before[p]+1, after[p], "participant %s after send by %s", p, sender)
		}
	}
}

func TestMarkRead_ResetsCountAndRecordsReader(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	id := env.startChat(t)
	env.send(t, id, patientID, "second")
	env.send(t, id, patientID, "third")
	mine := env.send(t, id, doctorID, "doctor reply")
	env.send(t, id, patientID, "fourth")
	require.Equal(t, 1, env.conv(t, id).UnreadFor(doctorID))

	require.NoError(t, env.conversation.MarkRead(ctx, id, doctorID))
	assert.Equal(t, 0, env.conv(t, id).UnreadFor(doctorID))

	msgs, err := env.messages.ListRecent(ctx, id, 0)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.ID == mine {
			assert.Equal(t, []string{doctorID}, m.ReadBy)
			assert.Equal(t, entity.MessageStatusDelivered, m.Status)
			continue
		}
		assert.True(t, m.Read)
		assert.ElementsMatch(t, []string{patientID, doctorID}, m.ReadBy)
		assert.Equal(t, entity.MessageStatusRead, m.Status)
	}

	// Marking again changes nothing and still leaves zero.
	require.NoError(t, env.conversation.MarkRead(ctx, id, doctorID))
	assert.Equal(t, 0, env.conv(t, id).UnreadFor(doctorID))
}

func TestMarkRead_NonParticipantIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	id := env.startChat(t)
	before := env.conv(t, id)

	require.NoError(t, env.conversation.MarkRead(ctx, id, nurseID))
	assert.Equal(t, before.UnreadCounts, env.conv(t, id).UnreadCounts)

	err := env.conversation.MarkRead(ctx, "missing", doctorID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestMarkUnreadAndMute(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	id := env.startChat(t)
	require.NoError(t, env.conversation.MarkUnread(ctx, id, patientID))
	assert.Equal(t, 1, env.conv(t, id).UnreadFor(patientID))

	require.NoError(t, env.conversation.ToggleMute(ctx, id, doctorID, true))
	assert.True(t, env.conv(t, id).IsMutedFor(doctorID))
	require.NoError(t, env.conversation.ToggleMute(ctx, id, doctorID, false))
	_, present := env.conv(t, id).Muted[doctorID]
	assert.False(t, present)

	err := env.conversation.MarkUnread(ctx, id, nurseID)
	assert.True(t, errors.Is(err, errors.CodeNotAParticipant))
	err = env.conversation.ToggleMute(ctx, id, nurseID, true)
	assert.True(t, errors.Is(err, errors.CodeNotAParticipant))
}

func TestListConversationsAndCountUnread(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first := env.startChat(t)
	second, err := env.conversation.CreateOrReuse(ctx, nurseID, []string{doctorID}, "Shift notes")
	require.NoError(t, err)
	env.send(t, second, nurseID, "More notes")

	views, err := env.conversation.ListConversations(ctx, doctorID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, second, views[0].ID)
	assert.Equal(t, 2, views[0].UnreadCount)
	assert.Equal(t, first, views[1].ID)
	assert.Equal(t, 1, views[1].UnreadCount)

	total, err := env.conversation.CountUnread(ctx, doctorID)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	require.NoError(t, env.conversation.ToggleMute(ctx, second, doctorID, true))
	total, err = env.conversation.CountUnread(ctx, doctorID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	views, err = env.conversation.ListConversations(ctx, doctorID)
	require.NoError(t, err)
	assert.True(t, views[0].IsMuted)
}

func TestSoftDelete_RoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	id := env.startChat(t)
	old := env.send(t, id, doctorID, "How can I help?")

	require.NoError(t, env.conversation.SoftDelete(ctx, id, patientID))
	conv := env.conv(t, id)
	assert.Equal(t, []string{doctorID}, conv.Participants)
	assert.Equal(t, []string{patientID}, conv.RemovedParticipants)
	assert.Equal(t, 0, conv.UnreadFor(patientID))

	// The doctor still sees everything.
	seen, err := env.message.FetchRecent(ctx, id, doctorID, 0)
	require.NoError(t, err)
	assert.Len(t, seen, 2)

	views, err := env.conversation.ListConversations(ctx, patientID)
	require.NoError(t, err)
	assert.Empty(t, views)

	fresh := env.send(t, id, doctorID, "Following up on your results")

	conv = env.conv(t, id)
	assert.Equal(t, []string{doctorID, patientID}, conv.Participants)
	assert.Empty(t, conv.RemovedParticipants)
	assert.Equal(t, 1, conv.UnreadFor(patientID))

	seen, err = env.message.FetchRecent(ctx, id, patientID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{fresh}, ids(seen))
	assert.NotContains(t, ids(seen), old)
}

func TestSoftDelete_SenderReactivatesThemselves(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	id, err := env.conversation.CreateOrReuse(ctx, patientID, []string{doctorID, nurseID}, "Hi all")
	require.NoError(t, err)
	require.NoError(t, env.conversation.SoftDelete(ctx, id, nurseID))
	require.NoError(t, env.conversation.SoftDelete(ctx, id, doctorID))

	env.send(t, id, doctorID, "Back again")

	conv := env.conv(t, id)
	assert.Equal(t, []string{doctorID, patientID}, conv.Participants)
	assert.Equal(t, []string{nurseID}, conv.RemovedParticipants)
	assert.Equal(t, 0, conv.UnreadFor(nurseID))
}

func TestSoftDelete_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	err := env.conversation.SoftDelete(ctx, "missing", doctorID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	id := env.startChat(t)
	err = env.conversation.SoftDelete(ctx, id, nurseID)
	assert.True(t, errors.Is(err, errors.CodeNotAParticipant))
}

func TestSubscribeTyping_StaleEntriesDisappear(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	id := env.startChat(t)

	var mu sync.Mutex
	var latest map[string]time.Time
	deliveries := 0
	sub, err := env.conversation.SubscribeTyping(ctx, id, doctorID, func(typers map[string]time.Time) {
		mu.Lock()
		defer mu.Unlock()
		latest = typers
		deliveries++
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	current := func() map[string]time.Time {
		mu.Lock()
		defer mu.Unlock()
		return latest
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries > 0 && len(latest) == 0
	}, time.Second, 5*time.Millisecond)

	env.conversation.SetTyping(ctx, id, patientID, true)
	env.conversation.SetTyping(ctx, id, doctorID, true)
	require.Eventually(t, func() bool {
		_, ok := current()[patientID]
		return ok
	}, time.Second, 5*time.Millisecond)
	_, selfReported := current()[doctorID]
	assert.False(t, selfReported)

	env.clock.Advance(11 * time.Second)
	require.Eventually(t, func() bool {
		return len(current()) == 0
	}, time.Second, 5*time.Millisecond)

	sub.Unsubscribe()
	sub.Wait()
}

func TestSetTyping_ClearAndSend(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	id := env.startChat(t)

	env.conversation.SetTyping(ctx, id, patientID, true)
	assert.Len(t, env.conv(t, id).ActiveTypers(doctorID, env.clock.Now(), DefaultTypingStaleAfter), 1)

	env.conversation.SetTyping(ctx, id, patientID, false)
	assert.Empty(t, env.conv(t, id).ActiveTypers(doctorID, env.clock.Now(), DefaultTypingStaleAfter))

	env.conversation.SetTyping(ctx, id, patientID, true)
	env.send(t, id, patientID, "done typing")
	assert.Empty(t, env.conv(t, id).ActiveTypers(doctorID, env.clock.Now(), DefaultTypingStaleAfter))

	// Best effort: an unknown conversation is only logged.
	env.conversation.SetTyping(ctx, "missing", patientID, true)
}

func TestSetTyping_OnlyActiveParticipants(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	id := env.startChat(t)

	env.conversation.SetTyping(ctx, id, nurseID, true)
	conv := env.conv(t, id)
	assert.NotContains(t, conv.TypingUsers, nurseID)
	assert.Empty(t, conv.ActiveTypers(doctorID, env.clock.Now(), DefaultTypingStaleAfter))

	require.NoError(t, env.conversation.SoftDelete(ctx, id, patientID))
	env.conversation.SetTyping(ctx, id, patientID, true)
	assert.Empty(t, env.conv(t, id).ActiveTypers(doctorID, env.clock.Now(), DefaultTypingStaleAfter))
}

func TestActiveTypers_IgnoresNonMembers(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	id := env.startChat(t)

	// Written straight to the store, bypassing the usecase check.
	at := env.clock.Now()
	require.NoError(t, env.conversations.SetTyping(ctx, id, nurseID, &at))
	require.NoError(t, env.conversations.SetTyping(ctx, id, patientID, &at))

	typers := env.conv(t, id).ActiveTypers(doctorID, env.clock.Now(), DefaultTypingStaleAfter)
	assert.Contains(t, typers, patientID)
	assert.NotContains(t, typers, nurseID)
}

// failingMessageRepository refuses every new message.
type failingMessageRepository struct {
	repository.MessageRepository
}

func (failingMessageRepository) Create(ctx context.Context, msg *entity.Message) error {
	return errors.Internal("Failed to create message", nil)
}

func TestCreateOrReuse_RollsBackWhenFirstMessageFails(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	broken := failingMessageRepository{MessageRepository: env.messages}
	messages := NewMessageUseCase(env.conversations, broken, env.users, nil, nil, Options{Clock: env.clock.Now})
	conversations := NewConversationUseCase(env.conversations, broken, env.users, messages, Options{Clock: env.clock.Now})

	_, err := conversations.CreateOrReuse(ctx, patientID, []string{doctorID}, "Hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeInternal))

	_, err = env.conversations.FindByParticipants(ctx, []string{doctorID, patientID})
	assert.True(t, errors.Is(err, errors.CodeNotFound), "the empty conversation is removed")

	id := env.startChat(t)
	conv := env.conv(t, id)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "Hello", conv.LastMessage.Content)
}

func TestSubscribeConversations(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var latest []*ConversationView
	sub := env.conversation.SubscribeConversations(ctx, doctorID, func(views []*ConversationView) {
		mu.Lock()
		defer mu.Unlock()
		latest = views
	})

	id := env.startChat(t)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latest) == 1 && latest[0].ID == id && latest[0].UnreadCount == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop")
	}
}

func TestScenario_DoctorPatientExchange(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	id := env.startChat(t)
	conv := env.conv(t, id)
	assert.Equal(t, map[string]int{doctorID: 1, patientID: 0}, conv.UnreadCounts)
	assert.Equal(t, "Hello", conv.LastMessage.Content)

	require.NoError(t, env.conversation.MarkRead(ctx, id, doctorID))
	assert.Equal(t, 0, env.conv(t, id).UnreadFor(doctorID))

	_, err := env.message.Send(ctx, SendMessageInput{
		ConversationID: id,
		SenderID:       doctorID,
		Attachment: &attachment.Attachment{
			Name:     "scan.png",
			MimeType: "image/png",
			Data:     make([]byte, 2*1024*1024),
		},
	})
	assert.True(t, errors.Is(err, errors.CodeFileTooLarge))

	msgs, err := env.messages.ListRecent(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	img := noisePNG(t, 420, 420)
	require.Greater(t, len(img), 400*1024)
	require.Less(t, len(img), 1024*1024)

	_, err = env.message.Send(ctx, SendMessageInput{
		ConversationID: id,
		SenderID:       doctorID,
		Attachment: &attachment.Attachment{
			Name:     "scan.png",
			MimeType: "image/png",
			Data:     img,
		},
	})
	require.NoError(t, err)

	conv = env.conv(t, id)
	assert.Equal(t, "Sent a image", conv.LastMessage.Content)
	assert.Equal(t, 1, conv.UnreadFor(patientID))
	assert.Equal(t, 0, conv.UnreadFor(doctorID))
}
