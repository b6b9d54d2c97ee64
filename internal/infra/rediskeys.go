package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "agentpulse"
)

// Ключи L2-кэша (снапшоты состояния дашборда)
const (
	RedisKeySnapshot     = RedisNamespace + ":dashboard:snapshot"
	RedisKeyLockSnapshot = RedisNamespace + ":lock:snapshot"
)

// GetSnapshotKey Генератор ключей для отдельных доменов данных (если нужны раздельные TTL)
func GetSnapshotKey(domain string) string {
	return fmt.Sprintf("%s:dashboard:snapshot:%s", RedisNamespace, domain)
}
