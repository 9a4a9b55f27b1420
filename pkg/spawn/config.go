package spawn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultConfigTTL = 5 * time.Minute

// ConfigProvider looks up the SpawnConfig of a route or depot, ErrConfigMissing when there is none
type ConfigProvider interface {
	GetSpawnConfig(ctx context.Context, entityRef string) (*ctdf.SpawnConfig, error)
}

type MongoConfigProvider struct {
	Collection *mongo.Collection
}

func NewMongoConfigProvider() *MongoConfigProvider {
	return &MongoConfigProvider{
		Collection: database.GetCollection(database.SpawnConfigsCollection),
	}
}

func (m *MongoConfigProvider) GetSpawnConfig(ctx context.Context, entityRef string) (*ctdf.SpawnConfig, error) {
	var config *ctdf.SpawnConfig
	err := m.Collection.FindOne(ctx, bson.M{"entityref": entityRef}).Decode(&config)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrConfigMissing, entityRef)
	}

	return config, err
}

// Import upserts configs by entity
func (m *MongoConfigProvider) Import(ctx context.Context, configs []*ctdf.SpawnConfig) error {
	if len(configs) == 0 {
		return nil
	}

	var operations []mongo.WriteModel
	for _, config := range configs {
		operations = append(operations, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"entityref": config.EntityRef}).
			SetReplacement(config).
			SetUpsert(true))
	}

	result, err := m.Collection.BulkWrite(ctx, operations, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return err
	}

	log.Info().
		Int64("inserted", result.UpsertedCount).
		Int64("modified", result.ModifiedCount).
		Msg("Imported spawn configs")

	return nil
}

type StaticConfigProvider struct {
	mutex   sync.RWMutex
	configs map[string]*ctdf.SpawnConfig
}

func NewStaticConfigProvider(configs ...*ctdf.SpawnConfig) *StaticConfigProvider {
	provider := &StaticConfigProvider{configs: map[string]*ctdf.SpawnConfig{}}
	for _, config := range configs {
		provider.configs[config.EntityRef] = config
	}

	return provider
}

func (s *StaticConfigProvider) GetSpawnConfig(_ context.Context, entityRef string) (*ctdf.SpawnConfig, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	config, exists := s.configs[entityRef]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrConfigMissing, entityRef)
	}

	copied := *config
	return &copied, nil
}

func (s *StaticConfigProvider) Set(config *ctdf.SpawnConfig) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.configs[config.EntityRef] = config
}

const missingConfigMarker = "N/A"

// CachedConfigProvider keeps configs in redis for a TTL so a refresh cycle sees a fixed config.
// Missing configs are cached too.
type CachedConfigProvider struct {
	Provider ConfigProvider
	Cache    *cache.Cache[string]
}

func NewCachedConfigProvider(provider ConfigProvider, client *redis.Client, ttl time.Duration) *CachedConfigProvider {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}

	redisStore := redisstore.NewRedis(client, store.WithExpiration(ttl))

	return &CachedConfigProvider{
		Provider: provider,
		Cache:    cache.New[string](redisStore),
	}
}

func SpawnConfigCacheKey(entityRef string) string {
	return fmt.Sprintf("ridership:spawnconfig:%s", entityRef)
}

func (c *CachedConfigProvider) GetSpawnConfig(ctx context.Context, entityRef string) (*ctdf.SpawnConfig, error) {
	cacheKey := SpawnConfigCacheKey(entityRef)

	cachedValue, err := c.Cache.Get(ctx, cacheKey)
	if err == nil {
		if cachedValue == missingConfigMarker {
			return nil, fmt.Errorf("%w: %s", ErrConfigMissing, entityRef)
		}

		var config *ctdf.SpawnConfig
		if err := json.Unmarshal([]byte(cachedValue), &config); err == nil && config != nil {
			return config, nil
		}
	}

	config, err := c.Provider.GetSpawnConfig(ctx, entityRef)
	if errors.Is(err, ErrConfigMissing) {
		c.Cache.Set(ctx, cacheKey, missingConfigMarker)
		return nil, err
	} else if err != nil {
		return nil, err
	}

	configJSON, err := json.Marshal(config)
	if err == nil {
		c.Cache.Set(ctx, cacheKey, string(configJSON))
	}

	return config, nil
}

// Invalidate drops a cached config so the next lookup reads the provider
func (c *CachedConfigProvider) Invalidate(ctx context.Context, entityRef string) error {
	return c.Cache.Delete(ctx, SpawnConfigCacheKey(entityRef))
}
