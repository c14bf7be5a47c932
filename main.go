package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/rachelchenchi/focuser/config"
	"github.com/rachelchenchi/focuser/matching"
	"github.com/rachelchenchi/focuser/metrics"
	"github.com/rachelchenchi/focuser/presence"
	"github.com/rachelchenchi/focuser/server"
	"github.com/rachelchenchi/focuser/stream"
	"github.com/rachelchenchi/focuser/websocket"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize config
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	if err := config.Initialize(env); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	cfg := config.Get()

	// Generate a unique ID for this broker instance
	serverID := uuid.New().String()
	log.Printf("Starting broker instance with ID: %s", serverID)

	// A shared Redis client serves the presence store, the redis stream
	// backend and JWT revocation checks. Only created when something
	// needs it.
	var redisClient *redis.Client
	needsRedis := cfg.Presence.Enabled || strings.ToLower(cfg.Stream.Type) == "redis" || cfg.Auth.Enabled
	if needsRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Address,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			PoolTimeout: time.Duration(cfg.Redis.PoolTimeout) * time.Second,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
	}

	// Presence store
	var presenceStore presence.Store
	if cfg.Presence.Enabled {
		presenceStore = presence.NewRedisStore(redisClient, time.Duration(cfg.Presence.TTL)*time.Second)
		log.Println("Presence tracking in Redis is ENABLED.")
	} else {
		presenceStore = presence.NewMemoryStore()
	}

	// --- Dynamic Stream Initialization ---
	var publisher stream.Publisher
	var err error

	log.Printf("Initializing lifecycle stream of type: %s", cfg.Stream.Type)
	switch strings.ToLower(cfg.Stream.Type) {
	case "none":
		publisher = stream.NewNoopPublisher()
	case "redis":
		publisher = stream.NewRedisPublisher(redisClient, cfg.Stream.Channel)
	case "kafka":
		publisher, err = stream.NewKafkaPublisher(cfg.Stream.Kafka.Brokers, cfg.Stream.Kafka.Topic)
		if err != nil {
			log.Fatalf("Failed to create Kafka publisher: %v", err)
		}
	default:
		// This should be caught by config validation, but we check again as a safeguard.
		log.Fatalf("Invalid stream type specified: %s", cfg.Stream.Type)
	}
	defer publisher.Close()
	// --- End of Stream Initialization ---

	// Auth Initialization
	var jwtValidator *websocket.JWTValidator
	if cfg.Auth.Enabled {
		jwtValidator = websocket.NewJWTValidator(&cfg.Auth, redisClient)
		log.Println("JWT Authentication is ENABLED.")
	} else {
		log.Println("JWT Authentication is DISABLED.")
	}

	// Create client manager and the matching broker; the manager doubles
	// as the broker's notifier.
	clientManager := websocket.NewClientManager(presenceStore, serverID)
	broker := matching.New(matching.Config{
		WaitTimeout: time.Duration(cfg.Matching.WaitTimeout) * time.Millisecond,
		ServerID:    serverID,
	}, clientManager, publisher)

	// Initialize handlers
	handler := websocket.NewHandler(clientManager, broker, jwtValidator, &cfg.Auth, &cfg.WebSocket)

	// Metrics
	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// Create and configure server
	port := ":" + strconv.Itoa(cfg.Server.Port)
	srv := server.NewServer(port, handler.HandleWebSocket)

	go srv.Start()
	log.Println("Matchmaking broker started on " + port)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received")

	// Graceful shutdown
	srv.Shutdown(ctx, clientManager, broker)
}
