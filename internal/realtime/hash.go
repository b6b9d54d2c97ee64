package realtime

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"
)

// ContentHash — детерминированный отпечаток структуры/содержимого значения.
// Сериализация через encoding/json: ключи map сортируются, поля структур
// идут в порядке объявления — одинаковое содержимое дает одинаковую строку
// независимо от порядка вставки и момента фетча.
func ContentHash(v any) string {
	raw, err := json.Marshal(fingerprint(v))
	if err != nil {
		// json.Marshal падает только на несериализуемых типах —
		// деградируем до текстового представления, но остаемся детерминированными
		raw = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// fingerprint нормализует значение перед хэшированием:
// волатильные таймстемпы измерения исключаются, иначе каждый цикл
// опроса выглядел бы как изменение и подавление дублей не работало бы.
func fingerprint(v any) any {
	switch t := v.(type) {
	case domain.AgentHealth:
		t.Timestamp = time.Time{}
		return t
	case domain.SystemHealthSnapshot:
		t.Timestamp = time.Time{}
		agents := make([]domain.AgentHealth, len(t.Agents))
		for i, a := range t.Agents {
			a.Timestamp = time.Time{}
			agents[i] = a
		}
		t.Agents = agents
		return t
	case domain.BusinessMetricsSnapshot:
		t.GeneratedAt = time.Time{}
		return t
	default:
		return v
	}
}
