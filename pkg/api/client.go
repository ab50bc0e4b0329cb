// Copyright 2013 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Incoming request types.
const (
	SendMessage            = 1
	OpenConversation       = 2
	SubscribeConversations = 3
	SubscribeMessages      = 4
	Authenticate           = 5
	Unsubscribe            = 6
	SignOut                = 7
)

// Outgoing event types.
const (
	ConversationsSnapshot = 101
	MessagesSnapshot      = 102
	ConversationOpened    = 103
	MessageSent           = 104
	Notice                = 105
	Authenticated         = 106
	SignedOut             = 107
)

// ConversationsSubscription is the subscription id of the conversation list.
const ConversationsSubscription = "conversations"

// MessagesSubscription is the subscription id of a conversation's messages.
func MessagesSubscription(conversationId string) string {
	return "messages:" + conversationId
}

// Client is a middleman between the ws connection and the Hub. It owns the
// live subscriptions opened through it and cancels them on teardown.
type Client struct {
	Hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Closed when the client is torn down.
	done      chan struct{}
	closeOnce sync.Once

	// ID of the user
	id string

	// Sign-in state of this connection.
	session *Session

	chatService  ChatService
	authProvider AuthProvider

	mu            sync.Mutex
	subscriptions map[string]*Subscription

	ctx    context.Context
	cancel context.CancelFunc

	authTimeout time.Duration
	logger      *zap.SugaredLogger
}

func NewClient(hub *Hub, conn *websocket.Conn, send chan []byte, id string, chatService ChatService, authProvider AuthProvider, authTimeout time.Duration, logger *zap.SugaredLogger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		Hub:           hub,
		conn:          conn,
		send:          send,
		done:          make(chan struct{}),
		id:            id,
		session:       NewSession(),
		chatService:   chatService,
		authProvider:  authProvider,
		subscriptions: make(map[string]*Subscription),
		ctx:           ctx,
		cancel:        cancel,
		authTimeout:   authTimeout,
		logger:        logger,
	}

	// Signing out drops every live query of this connection.
	c.session.Watch(func(identity *Identity) {
		if identity == nil {
			c.cancelAll()
		}
	})
	return c
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
}

// ReadPump pumps messages from the ws connection to the Hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.cancelAll()
		c.Hub.unregister <- c
		c.close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Errorf("Unable to set read deadline: %v", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Errorf("Unable to set read deadline: %v", err)
			return err
		}
		return nil
	})

	// If the user does not authenticate within the allotted time the client
	// is disconnected.
	disconnectTimer := time.AfterFunc(c.authTimeout, func() {
		if _, ok := c.session.Identity(); ok {
			return
		}
		c.push(OutgoingEvent{RequestType: Notice, Notice: "Did not authenticate in time"})
		c.close()
	})
	defer disconnectTimer.Stop()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Errorf("error: %v", err)
			}
			return
		}
		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))

		var incomingEvent IncomingEvent
		if err := json.Unmarshal(message, &incomingEvent); err != nil {
			c.logger.Errorf("Could not process message: %v", err)
			continue
		}

		c.handle(incomingEvent)
	}
}

func (c *Client) handle(event IncomingEvent) {
	if event.RequestType == Authenticate {
		c.authenticate(event)
		return
	}

	if _, ok := c.session.Identity(); !ok {
		c.notice(event, "continue", ErrNotAuthenticated)
		return
	}

	switch event.RequestType {
	case SendMessage:
		if event.Message == nil {
			c.notice(event, "send message", Invalid("message is missing"))
			return
		}
		messageId, err := c.chatService.Send(c.ctx, c.session, event.ConversationId, *event.Message)
		if err != nil {
			c.notice(event, "send message", err)
			return
		}
		c.push(OutgoingEvent{
			RequestType:    MessageSent,
			RequestId:      event.RequestId,
			ConversationId: event.ConversationId,
			MessageId:      messageId,
		})
	case OpenConversation:
		var other ParticipantSnapshot
		if event.OtherUser != nil {
			other = *event.OtherUser
		}
		conversationId, err := c.chatService.GetOrCreate(c.ctx, c.session, event.OtherUserId, other)
		if err != nil {
			c.notice(event, "open conversation", err)
			return
		}
		c.push(OutgoingEvent{
			RequestType:    ConversationOpened,
			RequestId:      event.RequestId,
			ConversationId: conversationId,
		})
	case SubscribeConversations:
		identity, _ := c.session.Identity()
		c.subscribe(ConversationsSubscription, func() (*Subscription, error) {
			return c.chatService.ListForUser(c.ctx, identity.UID, func(conversations []Conversation) {
				c.push(OutgoingEvent{
					RequestType:    ConversationsSnapshot,
					SubscriptionId: ConversationsSubscription,
					Conversations:  conversations,
				})
			})
		}, event, "load conversations")
	case SubscribeMessages:
		subscriptionId := MessagesSubscription(event.ConversationId)
		c.subscribe(subscriptionId, func() (*Subscription, error) {
			return c.chatService.SubscribeMessages(c.ctx, c.session, event.ConversationId, func(messages []Message) {
				c.push(OutgoingEvent{
					RequestType:    MessagesSnapshot,
					SubscriptionId: subscriptionId,
					ConversationId: event.ConversationId,
					Messages:       messages,
				})
			})
		}, event, "load messages")
	case Unsubscribe:
		c.unsubscribe(event.SubscriptionId)
	case SignOut:
		c.session.OnAuthStateChanged(nil)
		c.push(OutgoingEvent{RequestType: SignedOut, RequestId: event.RequestId})
	}
}

func (c *Client) authenticate(event IncomingEvent) {
	identity, err := c.authProvider.VerifyIDToken(c.ctx, event.Token)
	if err != nil {
		c.push(OutgoingEvent{RequestType: Notice, RequestId: event.RequestId, Notice: "Token not valid."})
		c.close()
		return
	}
	if identity.UID != c.id {
		c.push(OutgoingEvent{RequestType: Notice, RequestId: event.RequestId, Notice: "Token does not match Client uid"})
		c.close()
		return
	}
	c.session.OnAuthStateChanged(&identity)
	c.push(OutgoingEvent{RequestType: Authenticated, RequestId: event.RequestId})
}

// subscribe replaces any live query registered under subscriptionId.
func (c *Client) subscribe(subscriptionId string, open func() (*Subscription, error), event IncomingEvent, action string) {
	c.unsubscribe(subscriptionId)

	subscription, err := open()
	if err != nil {
		c.notice(event, action, err)
		return
	}

	c.mu.Lock()
	c.subscriptions[subscriptionId] = subscription
	c.mu.Unlock()

	go func() {
		<-subscription.Done()
		if err := subscription.Err(); err != nil {
			c.logger.Errorf("Subscription %s of user %s ended: %v", subscriptionId, c.id, err)
			c.notice(event, action, err)
		}
		c.mu.Lock()
		if c.subscriptions[subscriptionId] == subscription {
			delete(c.subscriptions, subscriptionId)
		}
		c.mu.Unlock()
	}()
}

func (c *Client) unsubscribe(subscriptionId string) {
	c.mu.Lock()
	subscription, ok := c.subscriptions[subscriptionId]
	delete(c.subscriptions, subscriptionId)
	c.mu.Unlock()

	if ok {
		subscription.Cancel()
	}
}

func (c *Client) cancelAll() {
	c.mu.Lock()
	subscriptions := c.subscriptions
	c.subscriptions = make(map[string]*Subscription)
	c.mu.Unlock()

	for _, subscription := range subscriptions {
		subscription.Cancel()
	}
}

func (c *Client) notice(event IncomingEvent, action string, err error) {
	c.logger.Infof("Request %d of user %s failed: %v", event.RequestType, c.id, err)
	c.push(OutgoingEvent{
		RequestType:    Notice,
		RequestId:      event.RequestId,
		ConversationId: event.ConversationId,
		Notice:         NoticeFor(action, err),
	})
}

// push queues event for the write pump. Events are dropped once the client
// is closed. A client whose buffer is full is closed, it has to reconnect
// and resubscribe to see current state again.
func (c *Client) push(event OutgoingEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		c.logger.Errorf("Could not process outgoing message: %v", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- message:
	default:
		c.logger.Errorf("Closing slow client %s, event %d did not fit its buffer", c.id, event.RequestType)
		c.close()
	}
}

// WritePump pumps messages from the Hub to the ws connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Flush what is already queued, e.g. the notice explaining the close.
			n := len(c.send)
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			for i := 0; i < n; i++ {
				_ = c.conn.WriteMessage(websocket.TextMessage, <-c.send)
			}
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// Add queued chat messages to the current ws message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write(newline)
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
