package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/domain"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/logging"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedProvider caches holiday calendars in redis with an in-memory
// fallback. Holiday calendars change rarely; a stale year is harmless
// within the configured TTL. A nil redis client degrades to memory only.
type CachedProvider struct {
	source domain.HolidayProvider
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger

	mu     sync.RWMutex
	memory map[string]memoryEntry
}

type memoryEntry struct {
	holidays  []models.Holiday
	expiresAt time.Time
}

func NewCachedProvider(source domain.HolidayProvider, client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *CachedProvider {
	base := logging.Component(logger, "holiday-cache")
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedProvider{
		source: source,
		client: client,
		ttl:    ttl,
		log:    base,
		memory: make(map[string]memoryEntry),
	}
}

func cacheKey(year int, countryCode, stateCode string) string {
	return fmt.Sprintf("holidays:%d:%s:%s", year, countryCode, stateCode)
}

// GetHolidays serves from redis, then memory, then the source; fetched
// calendars populate both caches.
func (p *CachedProvider) GetHolidays(ctx context.Context, year int, countryCode, stateCode string) ([]models.Holiday, error) {
	key := cacheKey(year, countryCode, stateCode)

	if holidays, ok := p.fromRedis(ctx, key); ok {
		return holidays, nil
	}
	if holidays, ok := p.fromMemory(key); ok {
		return holidays, nil
	}

	holidays, err := p.source.GetHolidays(ctx, year, countryCode, stateCode)
	if err != nil {
		return nil, err
	}

	p.store(ctx, key, holidays)
	return holidays, nil
}

func (p *CachedProvider) fromRedis(ctx context.Context, key string) ([]models.Holiday, bool) {
	if p.client == nil {
		return nil, false
	}
	val, err := p.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("redis read failed, falling back to memory")
		return nil, false
	}
	var holidays []models.Holiday
	if err := json.Unmarshal([]byte(val), &holidays); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("corrupt holiday cache entry")
		return nil, false
	}
	return holidays, true
}

func (p *CachedProvider) fromMemory(key string) ([]models.Holiday, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.memory[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.holidays, true
}

func (p *CachedProvider) store(ctx context.Context, key string, holidays []models.Holiday) {
	p.mu.Lock()
	p.memory[key] = memoryEntry{holidays: holidays, expiresAt: time.Now().Add(p.ttl)}
	p.mu.Unlock()

	if p.client == nil {
		return
	}
	data, err := json.Marshal(holidays)
	if err != nil {
		return
	}
	if err := p.client.Set(ctx, key, data, p.ttl).Err(); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("redis write failed")
	}
}
