package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	if c.Matching.WaitTimeout < 1 {
		return errors.New("matching.waitTimeout must be positive")
	}

	// Validate auth config
	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "default-secret" {
			return errors.New("auth.jwtSecret must be set to a strong secret when auth is enabled")
		}
		if c.Auth.TokenQueryParam == "" {
			return errors.New("auth.tokenQueryParam must be configured when auth is enabled")
		}
	}

	// Validate stream configuration
	switch strings.ToLower(c.Stream.Type) {
	case "none":
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("redis address must be specified for redis stream")
		}
		if c.Stream.Channel == "" {
			return errors.New("stream.channel must be configured for redis stream")
		}
	case "kafka":
		if len(c.Stream.Kafka.Brokers) == 0 {
			return errors.New("kafka brokers must be specified for kafka stream")
		}
		if c.Stream.Kafka.Topic == "" {
			return errors.New("stream.kafka.topic must be specified for kafka stream")
		}
	default:
		return fmt.Errorf("invalid stream type: %s. Must be 'none', 'redis' or 'kafka'", c.Stream.Type)
	}

	if c.Presence.Enabled && c.Redis.Address == "" {
		return errors.New("redis address must be specified when presence is enabled")
	}

	if c.WebSocket.MaxConnections < 1 {
		return errors.New("max connections must be positive")
	}

	if c.WebSocket.HandshakeTimeout < 1 {
		return errors.New("handshake timeout must be at least 1 second")
	}

	if c.WebSocket.PingInterval >= c.WebSocket.ActivityTimeout {
		return errors.New("ping interval should be less than activity timeout")
	}

	return nil
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "MATCHBROKER_PORT")

	// Matching
	viper.BindEnv("matching.waitTimeout", "MATCHBROKER_WAIT_TIMEOUT")

	// Auth
	viper.BindEnv("auth.enabled", "MATCHBROKER_AUTH_ENABLED")
	viper.BindEnv("auth.jwtSecret", "MATCHBROKER_AUTH_JWT_SECRET")
	viper.BindEnv("auth.tokenQueryParam", "MATCHBROKER_AUTH_TOKEN_PARAM")
	viper.BindEnv("auth.revocationListKey", "MATCHBROKER_AUTH_REVOCATION_KEY")

	// Redis
	viper.BindEnv("redis.address", "MATCHBROKER_REDIS_ADDRESS")
	viper.BindEnv("redis.password", "MATCHBROKER_REDIS_PASSWORD")

	// Presence
	viper.BindEnv("presence.enabled", "MATCHBROKER_PRESENCE_ENABLED")

	// Stream
	viper.BindEnv("stream.type", "MATCHBROKER_STREAM_TYPE")
	viper.BindEnv("stream.channel", "MATCHBROKER_STREAM_CHANNEL")
	viper.BindEnv("stream.kafka.brokers", "MATCHBROKER_KAFKA_BROKERS")
	viper.BindEnv("stream.kafka.topic", "MATCHBROKER_KAFKA_TOPIC")

	// WebSocket
	viper.BindEnv("websocket.maxConnections", "MATCHBROKER_MAX_CONNECTIONS")
	viper.BindEnv("websocket.handshakeTimeout", "MATCHBROKER_HANDSHAKE_TIMEOUT")
	viper.BindEnv("websocket.pingInterval", "MATCHBROKER_PING_INTERVAL")
	viper.BindEnv("websocket.activityTimeout", "MATCHBROKER_ACTIVITY_TIMEOUT")
	viper.BindEnv("websocket.writeTimeout", "MATCHBROKER_WRITE_TIMEOUT")
}
