package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"messengerService/pkg/api"
)

func newTestStorage(t *testing.T) (*storage, *MemoryStore, time.Time) {
	t.Helper()
	store := NewMemoryStore()
	now := fixedClock(store)
	return NewStorage(store, zap.NewNop().Sugar()).(*storage), store, now
}

func TestCreateConversationFields(t *testing.T) {
	ctx := context.Background()
	s, store, now := newTestStorage(t)

	err := s.CreateConversation(ctx, "u1_u2", map[string]api.ParticipantSnapshot{
		"u2": {Id: "u2", Email: "bob@example.com", DisplayName: "Bob"},
		"u1": {Id: "u1", Email: "ann@example.com", DisplayName: "Ann", PhotoURL: "https://x/ann.png"},
	})
	require.NoError(t, err)

	doc, err := store.ReadOne(ctx, "conversations/u1_u2")
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, []string{"u1", "u2"}, doc.Fields["participantIds"])
	assert.Contains(t, doc.Fields, "lastMessagePreview")
	assert.Nil(t, doc.Fields["lastMessagePreview"])
	assert.Equal(t, now, doc.Fields["lastMessageAt"])
	assert.Equal(t, now, doc.Fields["createdAt"])

	snapshots := doc.Fields["participantsSnapshot"].(map[string]interface{})
	ann := snapshots["u1"].(map[string]interface{})
	assert.Equal(t, "u1", ann["uid"])
	assert.Equal(t, "https://x/ann.png", ann["photoURL"])
	assert.Nil(t, snapshots["u2"].(map[string]interface{})["photoURL"])

	conversation, err := s.GetConversation(ctx, "u1_u2")
	require.NoError(t, err)
	require.NotNil(t, conversation)
	assert.Equal(t, "Bob", conversation.Participants["u2"].DisplayName)
	assert.Nil(t, conversation.LastMessagePreview)
}

func TestGetConversationAbsent(t *testing.T) {
	s, _, _ := newTestStorage(t)
	conversation, err := s.GetConversation(context.Background(), "u1_u2")
	require.NoError(t, err)
	assert.Nil(t, conversation)
}

func TestCreateConversationKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s, store, now := newTestStorage(t)
	participants := map[string]api.ParticipantSnapshot{
		"u1": {Id: "u1", DisplayName: "Ann"},
		"u2": {Id: "u2", DisplayName: "Bob"},
	}
	require.NoError(t, s.CreateConversation(ctx, "u1_u2", participants))
	require.NoError(t, s.UpdatePreview(ctx, "u1_u2", "hello"))

	store.SetClock(func() time.Time { return now.Add(time.Hour) })
	err := s.CreateConversation(ctx, "u1_u2", participants)
	assert.ErrorIs(t, err, api.ErrAlreadyExists)

	conversation, err := s.GetConversation(ctx, "u1_u2")
	require.NoError(t, err)
	require.NotNil(t, conversation.LastMessagePreview)
	assert.Equal(t, "hello", *conversation.LastMessagePreview)
	assert.Equal(t, now, conversation.CreatedAt)
}

func TestRefreshParticipantsSkipsBlankSnapshot(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStorage(t)
	require.NoError(t, s.CreateConversation(ctx, "u1_u2", map[string]api.ParticipantSnapshot{
		"u1": {Id: "u1", DisplayName: "Ann"},
		"u2": {Id: "u2", Email: "bob@example.com", DisplayName: "Bob", PhotoURL: "https://x/bob.png"},
	}))

	require.NoError(t, s.RefreshParticipants(ctx, "u1_u2", map[string]api.ParticipantSnapshot{
		"u1": {Id: "u1", DisplayName: "Annie"},
		"u2": {Id: "u2"},
	}))

	conversation, err := s.GetConversation(ctx, "u1_u2")
	require.NoError(t, err)
	require.NotNil(t, conversation)
	assert.Equal(t, []string{"u1", "u2"}, conversation.ParticipantIds)
	assert.Equal(t, "Annie", conversation.Participants["u1"].DisplayName)
	assert.Equal(t, api.ParticipantSnapshot{Id: "u2", Email: "bob@example.com", DisplayName: "Bob", PhotoURL: "https://x/bob.png"}, conversation.Participants["u2"])

	require.NoError(t, s.RefreshParticipants(ctx, "u1_u2", map[string]api.ParticipantSnapshot{"u1": {Id: "u1"}, "u2": {Id: "u2"}}))
	conversation, err = s.GetConversation(ctx, "u1_u2")
	require.NoError(t, err)
	assert.Equal(t, "Annie", conversation.Participants["u1"].DisplayName)
	assert.Equal(t, "Bob", conversation.Participants["u2"].DisplayName)
}

func TestAddMessageAndPreview(t *testing.T) {
	ctx := context.Background()
	s, store, now := newTestStorage(t)
	require.NoError(t, s.CreateConversation(ctx, "u1_u2", map[string]api.ParticipantSnapshot{"u1": {}, "u2": {}}))

	text := "hi"
	messageId, err := s.AddMessage(ctx, "u1_u2", api.Message{SenderId: "u1", SenderDisplayName: "Ann", Text: &text})
	require.NoError(t, err)

	doc, err := store.ReadOne(ctx, "conversations/u1_u2/messages/"+messageId)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "hi", doc.Fields["text"])
	assert.Nil(t, doc.Fields["imageUrl"])
	assert.Nil(t, doc.Fields["senderPhotoURL"])
	assert.Equal(t, false, doc.Fields["read"])
	assert.Equal(t, now, doc.Fields["sentAt"])

	later := now.Add(time.Minute)
	store.SetClock(func() time.Time { return later })
	require.NoError(t, s.UpdatePreview(ctx, "u1_u2", "hi"))

	conversation, err := s.GetConversation(ctx, "u1_u2")
	require.NoError(t, err)
	require.NotNil(t, conversation.LastMessagePreview)
	assert.Equal(t, "hi", *conversation.LastMessagePreview)
	assert.Equal(t, later, conversation.LastMessageAt)
	assert.Equal(t, now, conversation.CreatedAt)
}

func TestUpdatePreviewMissingConversation(t *testing.T) {
	s, _, _ := newTestStorage(t)
	err := s.UpdatePreview(context.Background(), "u1_u2", "hi")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestUserRecords(t *testing.T) {
	ctx := context.Background()
	s, _, now := newTestStorage(t)

	require.NoError(t, s.SaveUser(ctx, api.User{Id: "u2", Email: "Bob@Example.com", DisplayName: "Bob"}))
	require.NoError(t, s.SaveUser(ctx, api.User{Id: "u1", Email: "ann@example.com", DisplayName: "Ann"}))

	user, err := s.GetUser(ctx, "u2")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "bob@example.com", user.Email)
	assert.Equal(t, now, user.CreatedAt)
	assert.Nil(t, user.PhotoURL)

	found, err := s.FindByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "u2", found.Id)

	photo := "https://x/bob.png"
	require.NoError(t, s.UpdateUser(ctx, "u2", api.ProfileUpdate{PhotoURL: &photo}))
	user, err = s.GetUser(ctx, "u2")
	require.NoError(t, err)
	require.NotNil(t, user.PhotoURL)
	assert.Equal(t, photo, *user.PhotoURL)
	assert.Equal(t, "Bob", user.DisplayName)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].Id)
	assert.Equal(t, "u2", users[1].Id)

	require.NoError(t, s.DeleteUser(ctx, "u2"))
	user, err = s.GetUser(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestDecodeUserLegacyTimestamp(t *testing.T) {
	user := decodeUser(Document{Id: "u1", Fields: map[string]interface{}{
		"email":     "ann@example.com",
		"createdAt": "2023-11-05T09:30:00.000Z",
	}})
	assert.True(t, time.Date(2023, 11, 5, 9, 30, 0, 0, time.UTC).Equal(user.CreatedAt))
}

func TestDecodeConversationFromFirestoreShapes(t *testing.T) {
	conversation := decodeConversation(Document{Id: "u1_u2", Fields: map[string]interface{}{
		"participantIds": []interface{}{"u1", "u2"},
		"participantsSnapshot": map[string]interface{}{
			"u1": map[string]interface{}{"uid": "u1", "displayName": "Ann", "photoURL": nil},
		},
		"lastMessagePreview": "hey",
	}})
	assert.Equal(t, []string{"u1", "u2"}, conversation.ParticipantIds)
	assert.Equal(t, "Ann", conversation.Participants["u1"].DisplayName)
	assert.Empty(t, conversation.Participants["u1"].PhotoURL)
	assert.Equal(t, "hey", *conversation.LastMessagePreview)
	assert.True(t, conversation.LastMessageAt.IsZero())
}
