package websocket

import (
	"encoding/json"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"

	"codeberg.org/tinyurl/server/internal/logger"
)

// returns an origin checker for the upgrader. outside production every
// origin is accepted.
func CheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if os.Getenv("ENVIRONMENT") != "production" {
			return true
		}

		origin := r.Header.Get("Origin")
		if origin == "" {
			logger.Warn("websocket connection with no origin header")
			return false
		}

		if slices.Contains(allowedOrigins, origin) {
			return true
		}

		logger.Warn("websocket origin rejected - not in allowed origins",
			"origin", origin,
			"allowed_origins", allowedOrigins,
		)

		return false
	}
}

func GenerateClientID() string {
	return uuid.NewString()
}

// creates a message with a JSON encoded payload
func NewMessage(msgType string, urlID int64, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      msgType,
		URLID:     urlID,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}
