// A development stand-in for the reward/stats collaborators: subscribes to
// the broker's lifecycle stream on Redis and tallies per-session outcomes
// the way the real ledger would.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

// Event must match the broker's stream.Event structure.
type Event struct {
	Kind      string    `json:"kind"`
	ServerID  string    `json:"server_id"`
	SessionID string    `json:"session_id,omitempty"`
	Members   []string  `json:"members,omitempty"`
	FocusTime float64   `json:"focus_time,omitempty"`
	At        time.Time `json:"at"`
}

// Coins awarded per completed focus session, matching the client's reward
// screen.
const coinsPerCompletion = 50

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func main() {
	redisAddr := getEnv("REDIS_ADDRESS", "localhost:6379")
	channel := getEnv("STREAM_CHANNEL", "match:lifecycle")
	log.Printf("Connecting to Redis at %s, channel %s", redisAddr, channel)

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx := context.Background()

	pubsub := rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Println("Ledger stand-in started. Listening for lifecycle events...")

	coins := make(map[string]int)

	for msg := range pubsub.Channel() {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf("Error decoding event: %v", err)
			continue
		}

		switch event.Kind {
		case "match_made":
			log.Printf("Session %s: matched %v for %v minutes", event.SessionID, event.Members, event.FocusTime)
		case "match_timeout":
			log.Printf("No buddy found for %v at %v minutes", event.Members, event.FocusTime)
		case "session_completed":
			for _, member := range event.Members {
				coins[member] += coinsPerCompletion
				log.Printf("Session %s: %s completed, %d coins total", event.SessionID, member, coins[member])
			}
		case "session_ended":
			log.Printf("Session %s ended", event.SessionID)
		default:
			log.Printf("Unknown event kind %q, skipped", event.Kind)
		}
	}
}
