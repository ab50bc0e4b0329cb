package api

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

type ChatService interface {
	GetOrCreate(ctx context.Context, session *Session, otherUserId string, other ParticipantSnapshot) (string, error)
	GetConversation(ctx context.Context, session *Session, conversationId string) (Conversation, error)
	ListForUser(ctx context.Context, userId string, onChange func([]Conversation)) (*Subscription, error)
	Send(ctx context.Context, session *Session, conversationId string, message NewMessage) (string, error)
	SubscribeMessages(ctx context.Context, session *Session, conversationId string, onChange func([]Message)) (*Subscription, error)
}

type ChatRepository interface {
	// GetConversation returns nil without error when the conversation is absent.
	GetConversation(ctx context.Context, conversationId string) (*Conversation, error)
	// CreateConversation fails with ErrAlreadyExists when the conversation is
	// present and leaves it untouched.
	CreateConversation(ctx context.Context, conversationId string, participants map[string]ParticipantSnapshot) error
	// RefreshParticipants merges the snapshots in. A snapshot with no profile
	// data does not overwrite the stored one.
	RefreshParticipants(ctx context.Context, conversationId string, participants map[string]ParticipantSnapshot) error
	AddMessage(ctx context.Context, conversationId string, message Message) (string, error)
	UpdatePreview(ctx context.Context, conversationId string, preview string) error
	ListenConversations(ctx context.Context, userId string, onChange func([]Conversation)) (*Subscription, error)
	ListenMessages(ctx context.Context, conversationId string, onChange func([]Message)) (*Subscription, error)
}

type chatService struct {
	storage ChatRepository
}

func NewChatService(storage ChatRepository) ChatService {
	return &chatService{storage: storage}
}

func (c *chatService) GetOrCreate(ctx context.Context, session *Session, otherUserId string, other ParticipantSnapshot) (string, error) {
	caller, err := session.Require()
	if err != nil {
		return "", err
	}

	conversationId, err := ConversationKey(caller.UID, otherUserId)
	if err != nil {
		return "", err
	}
	if caller.UID == otherUserId {
		return "", Invalid("cannot open a conversation with yourself")
	}

	other.Id = otherUserId
	participants := map[string]ParticipantSnapshot{
		caller.UID:  caller.Snapshot(),
		otherUserId: other,
	}

	existing, err := c.storage.GetConversation(ctx, conversationId)
	if err != nil {
		return "", err
	}

	// An existing conversation only gets its snapshots refreshed so the
	// preview and timestamps of earlier sends survive.
	if existing != nil {
		if err := c.storage.RefreshParticipants(ctx, conversationId, participants); err != nil {
			return "", err
		}
		return conversationId, nil
	}

	// The create is conditional: when another caller created the conversation
	// after the read above, fall back to refreshing it.
	err = c.storage.CreateConversation(ctx, conversationId, participants)
	if errors.Is(err, ErrAlreadyExists) {
		err = c.storage.RefreshParticipants(ctx, conversationId, participants)
	}
	if err != nil {
		return "", err
	}
	return conversationId, nil
}

func (c *chatService) GetConversation(ctx context.Context, session *Session, conversationId string) (Conversation, error) {
	caller, err := session.Require()
	if err != nil {
		return Conversation{}, err
	}

	conversation, err := c.member(ctx, caller.UID, conversationId)
	if err != nil {
		return Conversation{}, err
	}
	return *conversation, nil
}

func (c *chatService) ListForUser(ctx context.Context, userId string, onChange func([]Conversation)) (*Subscription, error) {
	if userId == "" {
		return nil, Invalid("user id is empty")
	}
	return c.storage.ListenConversations(ctx, userId, onChange)
}

func (c *chatService) Send(ctx context.Context, session *Session, conversationId string, message NewMessage) (string, error) {
	caller, err := session.Require()
	if err != nil {
		return "", err
	}

	// Blank text counts as no text; non-blank text is stored as sent.
	text := message.Text
	if strings.TrimSpace(text) == "" {
		text = ""
	}
	imageURL := strings.TrimSpace(message.ImageURL)
	if text == "" && imageURL == "" {
		return "", Invalid("message needs text or an image")
	}
	if text != "" && imageURL != "" {
		return "", Invalid("message carries either text or an image, not both")
	}

	if _, err := c.member(ctx, caller.UID, conversationId); err != nil {
		return "", err
	}

	stored := Message{
		ConversationId:    conversationId,
		SenderId:          caller.UID,
		SenderDisplayName: caller.DisplayName,
		SenderPhotoURL:    caller.PhotoURL,
	}
	preview := ImagePreview
	if text != "" {
		stored.Text = &text
		preview = text
	} else {
		stored.ImageURL = &imageURL
	}

	messageId, err := c.storage.AddMessage(ctx, conversationId, stored)
	if err != nil {
		return "", err
	}

	if err := c.storage.UpdatePreview(ctx, conversationId, preview); err != nil {
		return messageId, &PartialSendError{MessageId: messageId, Err: err}
	}

	return messageId, nil
}

func (c *chatService) SubscribeMessages(ctx context.Context, session *Session, conversationId string, onChange func([]Message)) (*Subscription, error) {
	caller, err := session.Require()
	if err != nil {
		return nil, err
	}
	if _, err := c.member(ctx, caller.UID, conversationId); err != nil {
		return nil, err
	}
	return c.storage.ListenMessages(ctx, conversationId, onChange)
}

// member loads conversationId and checks that uid takes part in it.
func (c *chatService) member(ctx context.Context, uid string, conversationId string) (*Conversation, error) {
	if conversationId == "" {
		return nil, Invalid("conversation id is empty")
	}
	conversation, err := c.storage.GetConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrNotFound
	}
	if !conversation.HasParticipant(uid) {
		return nil, ErrForbidden
	}
	return conversation, nil
}
