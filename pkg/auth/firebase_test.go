package auth

import (
	"context"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messengerService/pkg/api"
)

type fakeTokenClient struct {
	tokens  map[string]*auth.Token
	created []*auth.UserToCreate
	updated map[string]*auth.UserToUpdate
	deleted []string
	err     error
}

func (f *fakeTokenClient) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	token, ok := f.tokens[idToken]
	if !ok {
		return nil, errors.New("ID token has expired")
	}
	return token, nil
}

func (f *fakeTokenClient) CreateUser(_ context.Context, user *auth.UserToCreate) (*auth.UserRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, user)
	return &auth.UserRecord{UserInfo: &auth.UserInfo{UID: "new-uid"}}, nil
}

func (f *fakeTokenClient) UpdateUser(_ context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.updated == nil {
		f.updated = make(map[string]*auth.UserToUpdate)
	}
	f.updated[uid] = user
	return &auth.UserRecord{UserInfo: &auth.UserInfo{UID: uid}}, nil
}

func (f *fakeTokenClient) DeleteUser(_ context.Context, uid string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, uid)
	return nil
}

func TestVerifyIDToken(t *testing.T) {
	client := &fakeTokenClient{tokens: map[string]*auth.Token{
		"good": {UID: "u1", Claims: map[string]interface{}{
			"email":   "Ann@Example.com",
			"name":    "Ann",
			"picture": "https://x/ann.png",
		}},
	}}
	provider := NewFirebaseProvider(client)

	identity, err := provider.VerifyIDToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, api.Identity{UID: "u1", Email: "ann@example.com", DisplayName: "Ann", PhotoURL: "https://x/ann.png"}, identity)

	_, err = provider.VerifyIDToken(context.Background(), "expired")
	assert.ErrorIs(t, err, api.ErrNotAuthenticated)

	_, err = provider.VerifyIDToken(context.Background(), "")
	assert.ErrorIs(t, err, api.ErrNotAuthenticated)
}

func TestIdentityFromTokenMissingClaims(t *testing.T) {
	identity := IdentityFromToken(&auth.Token{UID: "u1", Claims: map[string]interface{}{"email": 42}})
	assert.Equal(t, api.Identity{UID: "u1"}, identity)
}

func TestCreateAccount(t *testing.T) {
	client := &fakeTokenClient{}
	provider := NewFirebaseProvider(client)

	uid, err := provider.CreateAccount(context.Background(), api.NewAccount{Email: "ann@example.com", Password: "secret1", DisplayName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "new-uid", uid)
	assert.Len(t, client.created, 1)

	client.err = errors.New("connection reset")
	_, err = provider.CreateAccount(context.Background(), api.NewAccount{Email: "bob@example.com", Password: "secret1", DisplayName: "Bob"})
	assert.ErrorIs(t, err, api.ErrBackendUnavailable)
}

func TestUpdateProfile(t *testing.T) {
	client := &fakeTokenClient{}
	provider := NewFirebaseProvider(client)

	require.NoError(t, provider.UpdateProfile(context.Background(), "u1", api.ProfileUpdate{}))
	assert.Empty(t, client.updated)

	name := "Annie"
	require.NoError(t, provider.UpdateProfile(context.Background(), "u1", api.ProfileUpdate{DisplayName: &name}))
	assert.Contains(t, client.updated, "u1")

	client.err = errors.New("quota exceeded")
	assert.ErrorIs(t, provider.UpdateProfile(context.Background(), "u1", api.ProfileUpdate{DisplayName: &name}), api.ErrBackendUnavailable)
}

func TestDeleteAccount(t *testing.T) {
	client := &fakeTokenClient{}
	provider := NewFirebaseProvider(client)

	require.NoError(t, provider.DeleteAccount(context.Background(), "u1"))
	assert.Equal(t, []string{"u1"}, client.deleted)

	client.err = errors.New("unavailable")
	assert.ErrorIs(t, provider.DeleteAccount(context.Background(), "u1"), api.ErrBackendUnavailable)
}
