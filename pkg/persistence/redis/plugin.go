package redis

import (
	"context"
	"encoding/json"

	"github.com/QualityUnit/flowbatch/internal/repository"
	"github.com/QualityUnit/flowbatch/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis-specific configuration
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
}

// Plugin implements PluginPersistence for Redis/KVRocks
type Plugin struct {
	client    *redis.Client
	batchRepo repository.BatchRepository
}

// NewPlugin creates a new Redis persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	var cfg Config
	if err := json.Unmarshal(config.Config, &cfg); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})

	return &Plugin{
		client:    client,
		batchRepo: repository.NewBatchRepository(client),
	}, nil
}

// BatchStorage returns the batch storage implementation
func (p *Plugin) BatchStorage() persistence.BatchStorage {
	return newBatchStorageAdapter(p.batchRepo)
}

// Health pings the Redis server
func (p *Plugin) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (p *Plugin) Close() error {
	return p.client.Close()
}

func init() {
	persistence.RegisterProvider("redis", NewPlugin)
}
