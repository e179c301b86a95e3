// Package hub owns the live connections and the single event loop through
// which every state transition in the core runs. Directives, connection
// lifecycle events, and the presence sweep are all multiplexed onto one
// goroutine, so any read-then-write sequence inside a handler is atomic with
// respect to every other one; per-room broadcast order is the order the loop
// accepted the messages.
package hub

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ompatelz/chattingapp/internal/command"
	"github.com/ompatelz/chattingapp/internal/protocol"
	"github.com/ompatelz/chattingapp/internal/service"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	// Per-connection outbound queue. Overflow drops the delivery for that
	// recipient only.
	sendQueueSize = 256
)

type eventKind int

const (
	eventRegister eventKind = iota
	eventUnregister
	eventFrame
)

type event struct {
	kind   eventKind
	client *Client
	data   []byte
}

// Hub runs the event loop and implements service.Roster: the authoritative
// map from usernames to live connections.
type Hub struct {
	events  chan event
	clients map[*Client]bool
	byUser  map[string]service.Peer

	dispatcher *command.Dispatcher
	presence   *service.PresenceService

	quit chan struct{}
	done chan struct{}
}

func New() *Hub {
	return &Hub{
		events:  make(chan event, 512),
		clients: make(map[*Client]bool),
		byUser:  make(map[string]service.Peer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Attach wires in the dispatcher and presence tracker. Both depend on the
// hub as their roster, so they cannot be constructor arguments.
func (h *Hub) Attach(dispatcher *command.Dispatcher, presence *service.PresenceService) {
	if dispatcher == nil {
		panic("Dispatcher cannot be nil for Hub")
	}
	if presence == nil {
		panic("PresenceService cannot be nil for Hub")
	}
	h.dispatcher = dispatcher
	h.presence = presence
}

// Run processes events until Stop is called. It should run in its own
// goroutine; it is the only goroutine that touches the core's shared state.
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running")

	ticker := time.NewTicker(service.SweepInterval)
	defer func() {
		ticker.Stop()
		close(h.done)
		log.Info("Hub stopped")
	}()

	ctx := context.Background()
	for {
		select {
		case <-h.quit:
			h.shutdownClients(ctx)
			return

		case ev := <-h.events:
			switch ev.kind {
			case eventRegister:
				h.registerClient(ev.client)
			case eventUnregister:
				h.unregisterClient(ctx, ev.client)
			case eventFrame:
				h.dispatcher.Dispatch(ctx, ev.client, string(ev.data))
			}

		case <-ticker.C:
			h.presence.Sweep(time.Now())
		}
	}
}

// Stop asks the loop to disconnect everyone and exit, then waits for it.
func (h *Hub) Stop() {
	close(h.quit)
	<-h.done
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}
	h.clients[client] = true
	client.Send(protocol.Info("Connected. Please login or register."))
	logrus.WithFields(logrus.Fields{
		"conn_id": client.ID(),
		"total":   len(h.clients),
	}).Info("Client registered")
}

func (h *Hub) unregisterClient(ctx context.Context, client *Client) {
	if client == nil {
		return
	}
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	h.dispatcher.Disconnected(ctx, client)
	client.closeSend()
	logrus.WithFields(logrus.Fields{
		"conn_id": client.ID(),
		"user":    client.Username(),
		"total":   len(h.clients),
	}).Info("Client unregistered")
}

func (h *Hub) shutdownClients(ctx context.Context) {
	for client := range h.clients {
		delete(h.clients, client)
		h.dispatcher.Disconnected(ctx, client)
		client.closeSend()
		client.closeConn()
	}
}

// Register queues a freshly upgraded connection for admission by the loop.
func (h *Hub) Register(client *Client) bool {
	return h.queue(event{kind: eventRegister, client: client})
}

// queue hands an event to the loop without blocking. A full queue drops the
// event; the caller's transport-level retry (or disconnect) handles the rest.
// Only frames and admissions go through here, never unregistrations.
func (h *Hub) queue(ev event) bool {
	select {
	case h.events <- ev:
		return true
	default:
		logrus.WithField("conn_id", ev.client.ID()).Warn("Hub event queue full, dropping event")
		return false
	}
}

// queueUnregister waits for a slot instead of dropping. It is the read pump's
// last act, so a dropped unregister would leave the username bound in the
// roster (and shown online) until restart. The loop always drains; once the
// hub has stopped it tears its remaining clients down itself.
func (h *Hub) queueUnregister(client *Client) {
	select {
	case h.events <- event{kind: eventUnregister, client: client}:
	case <-h.done:
	}
}

// --- service.Roster ---

func (h *Hub) Peer(username string) (service.Peer, bool) {
	client, ok := h.byUser[username]
	return client, ok
}

func (h *Hub) Bind(username string, peer service.Peer) {
	h.byUser[username] = peer
}

func (h *Hub) Unbind(username string) {
	delete(h.byUser, username)
}
