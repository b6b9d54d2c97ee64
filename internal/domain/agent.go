package domain

import "time"

// AgentStatus — состояние удаленного агента с точки зрения мониторинга.
type AgentStatus string

const (
	StatusHealthy AgentStatus = "healthy" // Агент ответил и работоспособен
	StatusError   AgentStatus = "error"   // Агент ответил ошибкой или недоступен
	StatusMissing AgentStatus = "missing" // Оркестратор знает об агенте, но тот не отчитался
	StatusUnknown AgentStatus = "unknown" // Состояние еще не опрашивалось
)

// AgentHealth — последнее известное здоровье одного агента.
// История не хранится: каждое измерение перезаписывает предыдущее.
type AgentHealth struct {
	AgentID        string      `json:"agent_id"`
	Status         AgentStatus `json:"status"`
	Healthy        bool        `json:"healthy"`
	Timestamp      time.Time   `json:"timestamp"`
	CallConvention string      `json:"call_convention"` // "GET" или "POST"
	Error          string      `json:"error,omitempty"`
}

// AgentInfo — статические метаданные агента из реестра.
// Не зависят от сети: именно из них синтезируется fallback-ростер.
type AgentInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"` // email, seo, content, social, analytics, ads
}

// AgentPerformance — производительность агента.
// Health-события эти поля не несут, поэтому стор обязан
// сохранять предыдущие значения при слиянии (merge-by-field).
type AgentPerformance struct {
	ResponseTimeMs float64   `json:"response_time_ms"`
	SuccessRate    float64   `json:"success_rate"`
	TasksCompleted int       `json:"tasks_completed"`
	LastActive     time.Time `json:"last_active"`
}

// DashboardAgent — строка таблицы агентов на дашборде:
// статика реестра + живое здоровье + производительность.
type DashboardAgent struct {
	Info        AgentInfo        `json:"info"`
	Health      AgentHealth      `json:"health"`
	Performance AgentPerformance `json:"performance"`
}
