package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nobilishq/nobilis-server/params"
	"github.com/redis/go-redis/v9"
)

// Subscriber is the slice of the redis client used to receive fan-out
// messages, typically a separate connection from the publisher.
type Subscriber interface {
	PSubscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type dispatch struct {
	userID  uint
	payload []byte
}

// Hub tracks connected websocket clients per user and routes published
// notifications to them. All client bookkeeping happens on the Run
// goroutine, so no locks are needed.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	messages   chan dispatch
	clients    map[uint]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		messages:   make(chan dispatch, 64),
		clients:    make(map[uint]map[*Client]struct{}),
	}
}

// Run owns the client registry until ctx is done. Clients left behind are
// closed on shutdown.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			group, ok := h.clients[client.userID]
			if !ok {
				group = make(map[*Client]struct{})
				h.clients[client.userID] = group
			}
			group[client] = struct{}{}
		case client := <-h.unregister:
			if group, ok := h.clients[client.userID]; ok {
				if _, ok := group[client]; ok {
					delete(group, client)
					close(client.send)
					if len(group) == 0 {
						delete(h.clients, client.userID)
					}
				}
			}
		case msg := <-h.messages:
			for client := range h.clients[msg.userID] {
				select {
				case client.send <- msg.payload:
				default:
					// Slow consumer, drop the connection.
					delete(h.clients[msg.userID], client)
					close(client.send)
				}
			}
		case <-ctx.Done():
			for _, group := range h.clients {
				for client := range group {
					close(client.send)
				}
			}
			return
		}
	}
}

// Dispatch queues a payload for every connection of one user.
func (h *Hub) Dispatch(userID uint, payload []byte) {
	h.messages <- dispatch{userID: userID, payload: payload}
}

// Listen consumes the redis fan-out pattern and routes each message to its
// recipient's connections. It blocks until ctx is done.
func (h *Hub) Listen(ctx context.Context, subscriber Subscriber) {
	pubsub := subscriber.PSubscribe(ctx, params.NotifyChannelPattern)
	defer pubsub.Close()
	for {
		select {
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			userID, err := recipientFromChannel(msg.Channel)
			if err != nil {
				slog.Warn("Ignoring message on unexpected channel", "channel", msg.Channel)
				continue
			}
			frame, err := json.Marshal(serverFrame{Type: "notify", Data: json.RawMessage(msg.Payload)})
			if err != nil {
				slog.Error("Could not frame notification", "error", err)
				continue
			}
			h.Dispatch(userID, frame)
		case <-ctx.Done():
			return
		}
	}
}

func recipientFromChannel(channel string) (uint, error) {
	suffix := strings.TrimPrefix(channel, params.NotifyChannelPrefix)
	id, err := strconv.ParseUint(suffix, 10, 64)
	return uint(id), err
}
