package websocket

import (
	"context"
	"encoding/json"
	"time"

	"codeberg.org/tinyurl/server/internal/bus"
	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/metrics"
	"codeberg.org/tinyurl/server/tinyurl/clicks"
)

func NewHub() *Hub {
	return &Hub{
		feeds:           make(map[int64]map[string]*Client),
		Register:        make(chan *Client),
		Unregister:      make(chan *Client),
		Broadcast:       make(chan *Message, 256),
		userConnections: make(map[int64]int),
		ipConnections:   make(map[string]int),
		feedSequences:   make(map[int64]uint64),
		shutdown:        make(chan struct{}),
		stopped:         make(chan struct{}),
	}
}

// starts the hub's main loop
func (h *Hub) Run() {
	defer close(h.stopped)

	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.Broadcast:
			h.BroadcastToFeed(message)

		case <-h.shutdown:
			h.closeAllConnections()
			return
		}
	}
}

// registerClient attaches a client to its URL's feed
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()

	if h.feeds[client.URLID] == nil {
		h.feeds[client.URLID] = make(map[string]*Client)
	}

	h.feeds[client.URLID][client.ID] = client
	h.userConnections[client.UserID]++
	h.ipConnections[client.IPAddress]++
	watchers := len(h.feeds[client.URLID])

	h.mu.Unlock()

	metrics.FeedClients.Inc()

	logger.Info("feed client registered",
		"client_id", client.ID,
		"url_id", client.URLID,
		"user_id", client.UserID,
	)

	msg, err := NewMessage(TypeSubscribed, client.URLID, SubscribedPayload{
		URLID:    client.URLID,
		Watchers: watchers,
	})
	if err == nil {
		if sendErr := client.Send(msg); sendErr != nil {
			logger.WarnErr(sendErr, "failed to confirm feed subscription", "client_id", client.ID)
		}
	}
}

// removes a client from its feed
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	feed, exists := h.feeds[client.URLID]
	if !exists {
		return
	}

	if _, exists := feed[client.ID]; !exists {
		return
	}

	delete(feed, client.ID)
	client.Close()
	metrics.FeedClients.Dec()

	h.untrack(client)

	logger.Info("feed client unregistered",
		"client_id", client.ID,
		"url_id", client.URLID,
	)

	if len(feed) == 0 {
		delete(h.feeds, client.URLID)
		delete(h.feedSequences, client.URLID)
	}
}

// must be called with lock held
func (h *Hub) untrack(client *Client) {
	h.userConnections[client.UserID]--
	if h.userConnections[client.UserID] <= 0 {
		delete(h.userConnections, client.UserID)
	}

	h.ipConnections[client.IPAddress]--
	if h.ipConnections[client.IPAddress] <= 0 {
		delete(h.ipConnections, client.IPAddress)
	}
}

// sends a message to every client watching msg.URLID
func (h *Hub) BroadcastToFeed(msg *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	feed, exists := h.feeds[msg.URLID]
	if !exists {
		return
	}

	h.feedSequences[msg.URLID]++
	msg.Sequence = h.feedSequences[msg.URLID]

	raw, err := json.Marshal(msg)
	if err != nil {
		logger.ErrorErr(err, "failed to encode feed message", "url_id", msg.URLID)
		return
	}

	for clientID, client := range feed {
		if err := client.sendRaw(raw); err != nil {
			logger.Debug("dropping feed message for client",
				"client_id", clientID,
				"url_id", msg.URLID,
				"error", err,
			)
		}
	}
}

// queues a click for the live feed of its URL. never blocks; when the hub
// is saturated the click is left out of the feed.
func (h *Hub) PublishClick(m clicks.Message) {
	if !h.IsWatched(m.URLID) {
		return
	}

	payload := ClickPayload{
		ShortCode: m.ShortCode,
		ClickedAt: m.Timestamp,
		Referrer:  m.Referrer,
	}

	if m.Location != nil {
		payload.Country = m.Location.Country
		payload.City = m.Location.City
	}

	msg, err := NewMessage(TypeClick, m.URLID, payload)
	if err != nil {
		logger.ErrorErr(err, "failed to build click feed message", "url_id", m.URLID)
		return
	}

	select {
	case h.Broadcast <- msg:
	default:
		logger.Warn("feed broadcast buffer full, dropping click", "url_id", m.URLID)
	}
}

// bus handler feeding click events into the hub
func (h *Hub) HandleClick(_ context.Context, msg bus.Message) error {
	var m clicks.Message
	if err := msg.Decode(&m); err != nil {
		return err
	}

	h.PublishClick(m)

	return nil
}

// every instance needs every click for its own clients, so the group is
// unique per instance and starts at the end of the log
func (h *Hub) FeedSubscription(group, instanceID, topic string) bus.Subscription {
	return bus.Subscription{
		Group:      group + "-click-feed-" + instanceID,
		Topics:     []string{topic},
		Handler:    h.HandleClick,
		FromLatest: true,
	}
}

// reports whether any client watches urlID
func (h *Hub) IsWatched(urlID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.feeds[urlID]) > 0
}

// returns the number of clients watching urlID
func (h *Hub) GetClientCount(urlID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.feeds[urlID])
}

func (h *Hub) GetFeedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.feeds)
}

// checks if a new connection should be allowed based on limits
func (h *Hub) CanAcceptConnection(userID int64, ipAddress string) (bool, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.userConnections[userID] >= maxConnectionsPerUser {
		return false, "maximum connections per user exceeded"
	}

	if h.ipConnections[ipAddress] >= maxConnectionsPerIP {
		return false, "maximum connections per IP address exceeded"
	}

	return true, ""
}

// stops Run after notifying and disconnecting every client
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		close(h.shutdown)
	})
}

// blocks until Run has returned
func (h *Hub) Wait() {
	<-h.stopped
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()

	logger.Info("notifying feed clients of server shutdown")

	for urlID, feed := range h.feeds {
		msg, err := NewMessage(TypeServerShutdown, urlID, ServerShutdownPayload{
			Reason: "server is shutting down",
		})
		if err != nil {
			continue
		}

		for _, client := range feed {
			client.Send(msg) //nolint:errcheck,gosec // best effort notification
		}
	}

	h.mu.Unlock()

	// give clients time to receive the shutdown message
	time.Sleep(200 * time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()

	closed := 0
	for _, feed := range h.feeds {
		for _, client := range feed {
			client.Close()
			closed++
		}
	}

	metrics.FeedClients.Sub(float64(closed))
	logger.Info("closed all feed connections", "clients", closed)

	h.feeds = make(map[int64]map[string]*Client)
	h.userConnections = make(map[int64]int)
	h.ipConnections = make(map[string]int)
	h.feedSequences = make(map[int64]uint64)
}

// unregisters a client whose send buffer overflowed
func (h *Hub) dropSlow(c *Client) {
	logger.Warn("feed client too slow, disconnecting", "client_id", c.ID, "url_id", c.URLID)
	h.unregister(c)
}

// hands c to Run for removal, unless Run has already returned
func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.stopped:
	}
}

// hands c to Run for registration. false once the hub has stopped.
func (h *Hub) Attach(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.stopped:
		return false
	}
}
