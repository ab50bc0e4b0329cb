package api

import (
	"go.uber.org/zap"
)

// Hub maintains the set of active clients per user.
type Hub struct {
	// Registered clients.
	clients map[string][]*Client

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Uids whose clients must be closed.
	disconnect chan string

	// Requests for the number of connected clients.
	count chan chan int

	logger *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		unregister: make(chan *Client),
		disconnect: make(chan string),
		count:      make(chan chan int),
		clients:    make(map[string][]*Client),
		logger:     logger,
	}
}

// Disconnect closes every client of uid, e.g. after the account is deleted.
func (h *Hub) Disconnect(uid string) {
	h.disconnect <- uid
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	reply := make(chan int)
	h.count <- reply
	return <-reply
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client.id] = append(h.clients[client.id], client)
		case client := <-h.unregister:
			h.remove(client)
		case uid := <-h.disconnect:
			for _, client := range h.clients[uid] {
				client.close()
			}
			delete(h.clients, uid)
			h.logger.Infof("Disconnected clients of user %s", uid)
		case reply := <-h.count:
			n := 0
			for _, clients := range h.clients {
				n += len(clients)
			}
			reply <- n
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.id]
	if !ok {
		return
	}
	for i := range clients {
		if clients[i] != client {
			continue
		}
		last := len(clients) - 1
		clients[i] = clients[last]
		clients[last] = nil
		clients = clients[:last]
		break
	}
	if len(clients) == 0 {
		delete(h.clients, client.id)
		return
	}
	h.clients[client.id] = clients
}
