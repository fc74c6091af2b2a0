package usecase

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"medchat/internal/adapter/repository/memory"
	"medchat/internal/domain/entity"
	"medchat/internal/domain/repository"
	"medchat/internal/domain/service"
	"medchat/internal/infrastructure/attachment"
)

const (
	doctorID  = "doctor-1"
	patientID = "patient-1"
	nurseID   = "nurse-1"
)

// testClock moves forward by a millisecond on every read so writes never
// share a timestamp.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	clock         *testClock
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	users         repository.UserRepository
	conversation  *ConversationUseCase
	message       *MessageUseCase
	presence      *PresenceUseCase
	directory     *DirectoryUseCase
}

func newTestEnv(t *testing.T, fileStorage service.FileStorage) *testEnv {
	t.Helper()

	store := memory.NewStore()
	clock := newTestClock()
	opts := Options{
		Clock:                 clock.Now,
		TypingRefreshInterval: 5 * time.Millisecond,
	}

	env := &testEnv{
		clock:         clock,
		conversations: memory.NewConversationRepository(store),
		messages:      memory.NewMessageRepository(store),
		users:         memory.NewUserRepository(store),
	}
	env.message = NewMessageUseCase(env.conversations, env.messages, env.users, attachment.NewEncoder(0, 0), fileStorage, opts)
	env.conversation = NewConversationUseCase(env.conversations, env.messages, env.users, env.message, opts)
	env.presence = NewPresenceUseCase(env.users, opts)
	env.directory = NewDirectoryUseCase(env.users)

	ctx := context.Background()
	for _, u := range []*entity.User{
		{ID: doctorID, DisplayName: "Dr. Grey", Role: entity.RoleDoctor, Specialty: "Cardiology"},
		{ID: patientID, DisplayName: "Pat Doe", Role: entity.RolePatient, DOB: "1990-04-12"},
		{ID: nurseID, DisplayName: "Nina Nurse", Role: entity.RoleDoctor, Specialty: "Triage"},
	} {
		require.NoError(t, env.users.Create(ctx, u))
	}
	return env
}

func (env *testEnv) conv(t *testing.T, id string) *entity.Conversation {
	t.Helper()
	c, err := env.conversations.GetByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (env *testEnv) send(t *testing.T, convID, sender, content string) string {
	t.Helper()
	id, err := env.message.Send(context.Background(), SendMessageInput{
		ConversationID: convID,
		SenderID:       sender,
		Content:        content,
	})
	require.NoError(t, err)
	return id
}

// startChat opens a doctor/patient conversation with a first message from the patient.
func (env *testEnv) startChat(t *testing.T) string {
	t.Helper()
	id, err := env.conversation.CreateOrReuse(context.Background(), patientID, []string{doctorID}, "Hello")
	require.NoError(t, err)
	return id
}

func ids(messages []*entity.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

// noisePNG encodes random pixels so the file does not compress below its
// raw size.
func noisePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
