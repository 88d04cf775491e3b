package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// message types sent to feed clients
const (
	// is sent once the client is attached to a feed
	TypeSubscribed = "subscribed"

	// is sent for every click on the watched URL
	TypeClick = "click"

	// is sent when an error occurs
	TypeError = "error"

	// is sent by server before shutdown
	TypeServerShutdown = "server_shutdown"
)

// client connection constants
const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// feed clients only send control frames
	maxMessageSize = 4 * 1024

	sendBufferSize = 256
)

// hub connection limit constants
const (
	maxConnectionsPerUser = 5
	maxConnectionsPerIP   = 10
)

var ErrConnectionClosed = errors.New("connection closed")

// envelope for everything written to a feed client
type Message struct {
	Type      string          `json:"type"`
	URLID     int64           `json:"url_id"`
	Sequence  uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type SubscribedPayload struct {
	URLID    int64 `json:"url_id"`
	Watchers int   `json:"watchers"`
}

type ClickPayload struct {
	ShortCode string    `json:"short_code"`
	ClickedAt time.Time `json:"clicked_at"`
	Referrer  string    `json:"referrer,omitempty"`
	Country   string    `json:"country,omitempty"`
	City      string    `json:"city,omitempty"`
}

type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type ServerShutdownPayload struct {
	Reason string `json:"reason"`
}

// a websocket connection watching the clicks of one URL
type Client struct {
	ID        string
	URLID     int64
	UserID    int64
	IPAddress string

	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	mu     sync.RWMutex
	closed bool
}

// fans click events out to the clients watching each URL
type Hub struct {
	// url id -> client id -> client
	feeds map[int64]map[string]*Client

	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan *Message

	userConnections map[int64]int
	ipConnections   map[string]int
	feedSequences   map[int64]uint64

	mu           sync.RWMutex
	shutdown     chan struct{}
	shutdownOnce sync.Once
	stopped      chan struct{}
}
