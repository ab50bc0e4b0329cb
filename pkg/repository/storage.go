package repository

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"messengerService/pkg/api"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
	usersCollection         = "users"
)

type Storage interface {
	api.ChatRepository
	api.UserRepository
}

type storage struct {
	docs   DocumentStore
	logger *zap.SugaredLogger
}

func NewStorage(docs DocumentStore, logger *zap.SugaredLogger) Storage {
	return &storage{docs: docs, logger: logger}
}

func conversationPath(conversationId string) string {
	return conversationsCollection + "/" + conversationId
}

func messagesPath(conversationId string) string {
	return conversationPath(conversationId) + "/" + messagesCollection
}

func userPath(userId string) string {
	return usersCollection + "/" + userId
}

func (s *storage) GetConversation(ctx context.Context, conversationId string) (*api.Conversation, error) {
	doc, err := s.docs.ReadOne(ctx, conversationPath(conversationId))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	conversation := decodeConversation(*doc)
	return &conversation, nil
}

func (s *storage) CreateConversation(ctx context.Context, conversationId string, participants map[string]api.ParticipantSnapshot) error {
	fields := participantFields(participants, false)
	fields["lastMessagePreview"] = nil
	fields["lastMessageAt"] = ServerTimestamp
	fields["createdAt"] = ServerTimestamp

	if err := s.docs.Create(ctx, conversationPath(conversationId), fields); err != nil {
		if !errors.Is(err, api.ErrAlreadyExists) {
			s.logger.Errorf("Unable to create conversation %s: %v", conversationId, err)
		}
		return err
	}
	s.logger.Infof("Created conversation with id: %s", conversationId)
	return nil
}

func (s *storage) RefreshParticipants(ctx context.Context, conversationId string, participants map[string]api.ParticipantSnapshot) error {
	if err := s.docs.UpsertMerge(ctx, conversationPath(conversationId), participantFields(participants, true)); err != nil {
		s.logger.Errorf("Unable to refresh participants of %s: %v", conversationId, err)
		return err
	}
	return nil
}

func (s *storage) AddMessage(ctx context.Context, conversationId string, message api.Message) (string, error) {
	fields := map[string]interface{}{
		"senderId":          message.SenderId,
		"senderDisplayName": message.SenderDisplayName,
		"senderPhotoURL":    nullable(message.SenderPhotoURL),
		"text":              nil,
		"imageUrl":          nil,
		"sentAt":            ServerTimestamp,
		"read":              false,
	}
	if message.Text != nil {
		fields["text"] = *message.Text
	}
	if message.ImageURL != nil {
		fields["imageUrl"] = *message.ImageURL
	}

	messageId, err := s.docs.Append(ctx, messagesPath(conversationId), fields)
	if err != nil {
		s.logger.Errorf("Unable to add new message to %s: %v", conversationId, err)
		return "", err
	}
	s.logger.Infof("Created message document with reference #: %s", messageId)
	return messageId, nil
}

func (s *storage) UpdatePreview(ctx context.Context, conversationId string, preview string) error {
	err := s.docs.UpdateFields(ctx, conversationPath(conversationId), map[string]interface{}{
		"lastMessagePreview": preview,
		"lastMessageAt":      ServerTimestamp,
	})
	if err != nil {
		s.logger.Errorf("Unable to update preview of %s: %v", conversationId, err)
		return err
	}
	return nil
}

func (s *storage) ListenConversations(ctx context.Context, userId string, onChange func([]api.Conversation)) (*api.Subscription, error) {
	query := Query{
		Collection: conversationsCollection,
		Filters:    []Filter{{Path: "participantIds", Op: "array-contains", Value: userId}},
		Orders: []Order{
			{Path: "lastMessageAt", Desc: true},
			{Path: DocumentID},
		},
	}
	return s.docs.Listen(ctx, query, func(docs []Document) {
		conversations := make([]api.Conversation, 0, len(docs))
		for _, doc := range docs {
			conversations = append(conversations, decodeConversation(doc))
		}
		onChange(conversations)
	})
}

func (s *storage) ListenMessages(ctx context.Context, conversationId string, onChange func([]api.Message)) (*api.Subscription, error) {
	query := Query{
		Collection: messagesPath(conversationId),
		Orders: []Order{
			{Path: "sentAt"},
			{Path: DocumentID},
		},
	}
	return s.docs.Listen(ctx, query, func(docs []Document) {
		messages := make([]api.Message, 0, len(docs))
		for _, doc := range docs {
			messages = append(messages, decodeMessage(conversationId, doc))
		}
		onChange(messages)
	})
}

func (s *storage) SaveUser(ctx context.Context, user api.User) error {
	fields := map[string]interface{}{
		"uid":         user.Id,
		"email":       api.NormalizeEmail(user.Email),
		"displayName": user.DisplayName,
		"photoURL":    nil,
		"createdAt":   ServerTimestamp,
	}
	if user.PhotoURL != nil {
		fields["photoURL"] = *user.PhotoURL
	}
	if err := s.docs.UpsertMerge(ctx, userPath(user.Id), fields); err != nil {
		s.logger.Errorf("Unable to save user %s: %v", user.Id, err)
		return err
	}
	return nil
}

func (s *storage) GetUser(ctx context.Context, userId string) (*api.User, error) {
	doc, err := s.docs.ReadOne(ctx, userPath(userId))
	if err != nil || doc == nil {
		return nil, err
	}
	user := decodeUser(*doc)
	return &user, nil
}

func (s *storage) UpdateUser(ctx context.Context, userId string, update api.ProfileUpdate) error {
	fields := make(map[string]interface{})
	if update.DisplayName != nil {
		fields["displayName"] = *update.DisplayName
	}
	if update.PhotoURL != nil {
		fields["photoURL"] = nullable(*update.PhotoURL)
	}
	if len(fields) == 0 {
		return nil
	}
	return s.docs.UpdateFields(ctx, userPath(userId), fields)
}

func (s *storage) DeleteUser(ctx context.Context, userId string) error {
	return s.docs.Delete(ctx, userPath(userId))
}

func (s *storage) FindByEmail(ctx context.Context, email string) (*api.User, error) {
	docs, err := s.docs.Query(ctx, Query{
		Collection: usersCollection,
		Filters:    []Filter{{Path: "email", Op: "==", Value: email}},
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	if len(docs) > 1 {
		s.logger.Infof("Email %s matches %d users, using the first", email, len(docs))
	}
	user := decodeUser(docs[0])
	return &user, nil
}

func (s *storage) ListUsers(ctx context.Context) ([]api.User, error) {
	docs, err := s.docs.Query(ctx, Query{Collection: usersCollection})
	if err != nil {
		return nil, err
	}
	users := make([]api.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, decodeUser(doc))
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].Id < users[j].Id })
	return users, nil
}

// participantFields encodes both participants. With skipBlank a snapshot
// carrying no profile data is left out so the stored one is kept.
func participantFields(participants map[string]api.ParticipantSnapshot, skipBlank bool) map[string]interface{} {
	ids := make([]string, 0, len(participants))
	snapshots := make(map[string]interface{}, len(participants))
	for id, p := range participants {
		ids = append(ids, id)
		if skipBlank && p.Email == "" && p.DisplayName == "" && p.PhotoURL == "" {
			continue
		}
		snapshots[id] = map[string]interface{}{
			"uid":         id,
			"email":       p.Email,
			"displayName": p.DisplayName,
			"photoURL":    nullable(p.PhotoURL),
		}
	}
	sort.Strings(ids)
	fields := map[string]interface{}{"participantIds": ids}
	// An empty map merges as a value of its own and would clear the stored one.
	if len(snapshots) > 0 {
		fields["participantsSnapshot"] = snapshots
	}
	return fields
}

func decodeConversation(doc Document) api.Conversation {
	conversation := api.Conversation{
		Id:                 doc.Id,
		ParticipantIds:     stringsField(doc.Fields, "participantIds"),
		Participants:       make(map[string]api.ParticipantSnapshot),
		LastMessagePreview: optionalString(doc.Fields, "lastMessagePreview"),
		LastMessageAt:      timeField(doc.Fields, "lastMessageAt"),
		CreatedAt:          timeField(doc.Fields, "createdAt"),
	}
	if snapshots, ok := doc.Fields["participantsSnapshot"].(map[string]interface{}); ok {
		for id, raw := range snapshots {
			fields, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			conversation.Participants[id] = api.ParticipantSnapshot{
				Id:          id,
				Email:       stringField(fields, "email"),
				DisplayName: stringField(fields, "displayName"),
				PhotoURL:    stringField(fields, "photoURL"),
			}
		}
	}
	return conversation
}

func decodeMessage(conversationId string, doc Document) api.Message {
	read, _ := doc.Fields["read"].(bool)
	return api.Message{
		Id:                doc.Id,
		ConversationId:    conversationId,
		SenderId:          stringField(doc.Fields, "senderId"),
		SenderDisplayName: stringField(doc.Fields, "senderDisplayName"),
		SenderPhotoURL:    stringField(doc.Fields, "senderPhotoURL"),
		Text:              optionalString(doc.Fields, "text"),
		ImageURL:          optionalString(doc.Fields, "imageUrl"),
		SentAt:            timeField(doc.Fields, "sentAt"),
		Read:              read,
	}
}

func decodeUser(doc Document) api.User {
	return api.User{
		Id:          doc.Id,
		Email:       stringField(doc.Fields, "email"),
		DisplayName: stringField(doc.Fields, "displayName"),
		PhotoURL:    optionalString(doc.Fields, "photoURL"),
		CreatedAt:   timeField(doc.Fields, "createdAt"),
	}
}

func nullable(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func stringField(fields map[string]interface{}, key string) string {
	value, _ := fields[key].(string)
	return value
}

func optionalString(fields map[string]interface{}, key string) *string {
	value, ok := fields[key].(string)
	if !ok {
		return nil
	}
	return &value
}

// timeField accepts Firestore timestamps and the ISO strings the mobile
// client wrote for users.
func timeField(fields map[string]interface{}, key string) time.Time {
	switch value := fields[key].(type) {
	case time.Time:
		return value
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, value)
		if err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func stringsField(fields map[string]interface{}, key string) []string {
	switch values := fields[key].(type) {
	case []string:
		return append([]string{}, values...)
	case []interface{}:
		result := make([]string, 0, len(values))
		for _, v := range values {
			if s, ok := v.(string); ok {
				result = append(result, s)
			}
		}
		return result
	}
	return nil
}
