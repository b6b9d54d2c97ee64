package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"
	"github.com/xela07ax/agentpulse/internal/infra"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SnapshotCache — L2-кэш среза дашборда в Redis.
// Назначение: теплый старт после рестарта процесса (активные алерты
// и лента активности не теряются) и дешевое чтение для внешних
// потребителей, не желающих ходить в консоль по HTTP.
// Все операции best-effort: отказ Redis логируется и не роняет стор.
type SnapshotCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewSnapshotCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *SnapshotCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SnapshotCache{rdb: rdb, ttl: ttl, logger: logger.Named("snapcache")}
}

// Save сериализует срез и кладет его под неймспейсным ключом с TTL.
func (c *SnapshotCache) Save(ctx context.Context, snap domain.DashboardSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapcache: marshal snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, infra.RedisKeySnapshot, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("snapcache: redis set: %w", err)
	}
	return nil
}

// Load достает последний сохраненный срез.
// Отсутствие ключа — не ошибка: холодный старт это норма.
func (c *SnapshotCache) Load(ctx context.Context) (domain.DashboardSnapshot, bool, error) {
	raw, err := c.rdb.Get(ctx, infra.RedisKeySnapshot).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.DashboardSnapshot{}, false, nil
	}
	if err != nil {
		return domain.DashboardSnapshot{}, false, fmt.Errorf("snapcache: redis get: %w", err)
	}

	var snap domain.DashboardSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// Битый кэш хуже пустого: выбрасываем и стартуем холодно
		c.logger.Warn("discarding corrupted cached snapshot", zap.Error(err))
		return domain.DashboardSnapshot{}, false, nil
	}
	return snap, true, nil
}
