package app

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	jsonPatch "github.com/evanphx/json-patch/v5"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"messengerService/pkg/api"
)

const maxImageSize = 10 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8092,
	WriteBufferSize: 8092,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type noticeResponse struct {
	Notice    string `json:"notice"`
	MessageId string `json:"messageId,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Errorf("Unable to encode response: %v", err)
	}
}

// writeError reports a failed action with a notice that carries no backend
// detail. The detail goes to the log.
func (s *Server) writeError(w http.ResponseWriter, action string, err error) {
	status := http.StatusServiceUnavailable
	response := noticeResponse{Notice: api.NoticeFor(action, err)}

	var partial *api.PartialSendError
	switch {
	case errors.As(err, &partial):
		status = http.StatusBadGateway
		response.MessageId = partial.MessageId
	case errors.Is(err, api.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, api.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, api.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, api.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, api.ErrAlreadyExists):
		status = http.StatusConflict
	}

	s.logger.Infof("Could not %s: %v", action, err)
	s.writeJSON(w, status, response)
}

func (s *Server) decode(r *http.Request, into interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return api.Invalid("request body: %v", err)
	}
	return nil
}

func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var account api.NewAccount
		if err := s.decode(r, &account); err != nil {
			s.writeError(w, "create account", err)
			return
		}

		user, err := s.userService.Register(r.Context(), account)
		if err != nil {
			s.writeError(w, "create account", err)
			return
		}

		s.writeJSON(w, http.StatusCreated, user)
		s.logger.Infof("Registered user with id: %s", user.Id)
	}
}

func (s *Server) GetProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.userService.Profile(r.Context(), api.SessionFromContext(r.Context()))
		if err != nil {
			s.writeError(w, "load profile", err)
			return
		}
		s.writeJSON(w, http.StatusOK, user)
	}
}

type profileDoc struct {
	DisplayName string  `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
}

// UpdateProfile accepts a JSON Patch (application/json-patch+json) or a JSON
// Merge Patch of {displayName, photoURL}.
func (s *Server) UpdateProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := api.SessionFromContext(r.Context())

		patchJSON, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, "update profile", api.Invalid("reading body: %v", err))
			return
		}

		current, err := s.userService.Profile(r.Context(), session)
		if err != nil {
			s.writeError(w, "update profile", err)
			return
		}

		before := profileDoc{DisplayName: current.DisplayName, PhotoURL: current.PhotoURL}
		original, err := json.Marshal(before)
		if err != nil {
			s.writeError(w, "update profile", err)
			return
		}

		var modified []byte
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json-patch+json") {
			patch, err := jsonPatch.DecodePatch(patchJSON)
			if err != nil {
				s.writeError(w, "update profile", api.Invalid("decoding json patch: %v", err))
				return
			}
			modified, err = patch.Apply(original)
			if err != nil {
				s.writeError(w, "update profile", api.Invalid("applying json patch: %v", err))
				return
			}
		} else {
			modified, err = jsonPatch.MergePatch(original, patchJSON)
			if err != nil {
				s.writeError(w, "update profile", api.Invalid("applying merge patch: %v", err))
				return
			}
		}

		var after profileDoc
		if err := json.Unmarshal(modified, &after); err != nil {
			s.writeError(w, "update profile", api.Invalid("patched profile: %v", err))
			return
		}

		user, err := s.userService.UpdateProfile(r.Context(), session, profileChanges(before, after))
		if err != nil {
			s.writeError(w, "update profile", err)
			return
		}
		s.writeJSON(w, http.StatusOK, user)
	}
}

// profileChanges keeps only the fields the patch altered. A removed photo is
// an empty PhotoURL.
func profileChanges(before, after profileDoc) api.ProfileUpdate {
	var update api.ProfileUpdate
	if after.DisplayName != before.DisplayName {
		name := after.DisplayName
		update.DisplayName = &name
	}
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	if deref(after.PhotoURL) != deref(before.PhotoURL) {
		photo := deref(after.PhotoURL)
		update.PhotoURL = &photo
	}
	return update
}

func (s *Server) DeleteAccount(hub *api.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := api.SessionFromContext(r.Context())
		identity, _ := session.Identity()

		if err := s.userService.DeleteAccount(r.Context(), session); err != nil {
			s.writeError(w, "delete account", err)
			return
		}

		hub.Disconnect(identity.UID)
		w.WriteHeader(http.StatusNoContent)
		s.logger.Infof("Deleted account of user with id: %s", identity.UID)
	}
}

func (s *Server) FindUserByEmail() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")

		user, err := s.userService.FindByEmail(r.Context(), email)
		if err != nil {
			s.writeError(w, "find user", err)
			return
		}
		if user == nil {
			s.writeError(w, "find user", api.ErrNotFound)
			return
		}
		s.writeJSON(w, http.StatusOK, user)
	}
}

func (s *Server) GetContacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := api.SessionFromContext(r.Context()).Identity()

		users, err := s.userService.ListAllExcluding(r.Context(), identity.UID)
		if err != nil {
			s.writeError(w, "load contacts", err)
			return
		}

		s.writeJSON(w, http.StatusOK, users)
		s.logger.Infof("Successfully retrieved %d contacts for user with id: %s", len(users), identity.UID)
	}
}

func (s *Server) CreateConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var newConversation api.NewConversation
		if err := s.decode(r, &newConversation); err != nil {
			s.writeError(w, "open conversation", err)
			return
		}

		var other api.ParticipantSnapshot
		if newConversation.OtherUser != nil {
			other = *newConversation.OtherUser
			if newConversation.OtherUserId == "" {
				newConversation.OtherUserId = other.Id
			}
		}

		session := api.SessionFromContext(r.Context())
		conversationId, err := s.chatService.GetOrCreate(r.Context(), session, newConversation.OtherUserId, other)
		if err != nil {
			s.writeError(w, "open conversation", err)
			return
		}

		conversation, err := s.chatService.GetConversation(r.Context(), session, conversationId)
		if err != nil {
			s.writeError(w, "open conversation", err)
			return
		}
		s.writeJSON(w, http.StatusCreated, conversation)
	}
}

func (s *Server) GetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationId := chi.URLParam(r, "conversationId")

		conversation, err := s.chatService.GetConversation(r.Context(), api.SessionFromContext(r.Context()), conversationId)
		if err != nil {
			s.writeError(w, "load conversation", err)
			return
		}

		s.writeJSON(w, http.StatusOK, conversation)
		s.logger.Infof("Successfully retrieved conversation with id: %s", conversationId)
	}
}

func (s *Server) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationId := chi.URLParam(r, "conversationId")

		var message api.NewMessage
		if err := s.decode(r, &message); err != nil {
			s.writeError(w, "send message", err)
			return
		}

		messageId, err := s.chatService.Send(r.Context(), api.SessionFromContext(r.Context()), conversationId, message)
		if err != nil {
			s.writeError(w, "send message", err)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]string{"id": messageId})
	}
}

func (s *Server) UploadImage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.images == nil {
			s.writeError(w, "upload image", api.Unavailable(errors.New("no image host configured"), "upload image"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxImageSize)
		if err := r.ParseMultipartForm(maxImageSize); err != nil {
			s.writeError(w, "upload image", api.Invalid("multipart form: %v", err))
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			s.writeError(w, "upload image", api.Invalid("file field: %v", err))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			s.writeError(w, "upload image", api.Invalid("reading file: %v", err))
			return
		}

		url, err := s.images.Upload(r.Context(), header.Filename, data)
		if err != nil {
			s.writeError(w, "upload image", err)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]string{"url": url})
	}
}

func (s *Server) ServeWs(hub *api.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := r.URL.Query().Get("uid")
		if uid == "" {
			http.Error(w, "uid in query param required", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Errorf("Upgrading websocket: %v", err)
			return
		}

		s.logger.Infof("Connected to websocket: %s", uid)
		client := api.NewClient(hub, conn, make(chan []byte, 256), uid, s.chatService, s.authProvider, s.settings.WSAuthTimeout, s.logger)
		client.Hub.Register <- client

		// Allow collection of memory referenced by the caller by doing all work in
		// new goroutines.
		go client.WritePump()
		go client.ReadPump()
	}
}
