package api

import (
	"time"
)

// ImagePreview is the conversation preview shown for a message without text.
const ImagePreview = "📷 Photo"

// ParticipantSnapshot is a copy of a user's public fields stored inline on a
// conversation. It is written at get-or-create time and may go stale.
type ParticipantSnapshot struct {
	Id          string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

type Conversation struct {
	Id                 string                         `json:"id"`
	ParticipantIds     []string                       `json:"participantIds"`
	Participants       map[string]ParticipantSnapshot `json:"participantsSnapshot"`
	LastMessagePreview *string                        `json:"lastMessagePreview"`
	LastMessageAt      time.Time                      `json:"lastMessageAt"`
	CreatedAt          time.Time                      `json:"createdAt"`
}

// HasParticipant reports whether uid is one of the two members.
func (c Conversation) HasParticipant(uid string) bool {
	for _, id := range c.ParticipantIds {
		if id == uid {
			return true
		}
	}
	return false
}

type Message struct {
	Id                string    `json:"id"`
	ConversationId    string    `json:"conversationId"`
	SenderId          string    `json:"senderId"`
	SenderDisplayName string    `json:"senderDisplayName"`
	SenderPhotoURL    string    `json:"senderPhotoURL,omitempty"`
	Text              *string   `json:"text"`
	ImageURL          *string   `json:"imageUrl"`
	SentAt            time.Time `json:"sentAt"`
	Read              bool      `json:"read"`
}

// NewMessage is the outgoing payload of a send. Exactly one of Text and
// ImageURL must be set.
type NewMessage struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type User struct {
	Id          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	PhotoURL    *string   `json:"photoURL"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Snapshot denormalizes the user for embedding in a conversation.
func (u User) Snapshot() ParticipantSnapshot {
	snapshot := ParticipantSnapshot{
		Id:          u.Id,
		Email:       u.Email,
		DisplayName: u.DisplayName,
	}
	if u.PhotoURL != nil {
		snapshot.PhotoURL = *u.PhotoURL
	}
	return snapshot
}

type NewAccount struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type ProfileUpdate struct {
	DisplayName *string `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
}

type NewConversation struct {
	OtherUserId string               `json:"otherUserId"`
	OtherUser   *ParticipantSnapshot `json:"otherUser,omitempty"`
}

type IncomingEvent struct {
	RequestType    int                  `json:"requestType,omitempty"`
	RequestId      string               `json:"requestId,omitempty"`
	ConversationId string               `json:"conversationId,omitempty"`
	SubscriptionId string               `json:"subscriptionId,omitempty"`
	OtherUserId    string               `json:"otherUserId,omitempty"`
	OtherUser      *ParticipantSnapshot `json:"otherUser,omitempty"`
	Message        *NewMessage          `json:"message,omitempty"`
	Token          string               `json:"token,omitempty"`
}

type OutgoingEvent struct {
	RequestType    int            `json:"requestType"`
	RequestId      string         `json:"requestId,omitempty"`
	SubscriptionId string         `json:"subscriptionId,omitempty"`
	ConversationId string         `json:"conversationId,omitempty"`
	MessageId      string         `json:"messageId,omitempty"`
	Conversations  []Conversation `json:"conversations,omitempty"`
	Messages       []Message      `json:"messages,omitempty"`
	Notice         string         `json:"notice,omitempty"`
}
