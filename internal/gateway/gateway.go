package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/xela07ax/agentpulse/internal/domain"
	"github.com/xela07ax/agentpulse/internal/infra"

	"go.uber.org/zap"
)

// CallResult — единый результат вызова агента.
// Любой отказ (таймаут, не-2xx, сеть, неизвестный агент) приходит сюда
// как Success=false + Error: шлюз не роняет ошибки за свою границу.
type CallResult struct {
	Success      bool           `json:"success"`
	Data         map[string]any `json:"data,omitempty"`
	Status       string         `json:"status,omitempty"`
	Service      string         `json:"service,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Insights     map[string]any `json:"insights,omitempty"`
	Error        string         `json:"error,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Gateway нормализует разнородные соглашения вызова агентов
// в один интерфейс Call(agentID, action, params).
// Мутабельного разделяемого состояния нет: безопасен для конкурентного использования.
type Gateway struct {
	registry      *Registry
	rel           *Reliability
	client        *http.Client
	callTimeout   time.Duration
	defaultDomain string
	logger        *zap.Logger
	metrics       *Metrics
	now           func() time.Time
}

func New(reg *Registry, cfg infra.GatewayConfig, logger *zap.Logger, m *Metrics) *Gateway {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Gateway{
		registry:      reg,
		rel:           NewReliability(cfg.RateLimit, cfg.RateBurst, cfg.RetryAttempts),
		client:        &http.Client{}, // таймаут задается контекстом per-call
		callTimeout:   timeout,
		defaultDomain: cfg.DefaultDomain,
		logger:        logger.Named("gateway"),
		metrics:       m,
		now:           time.Now,
	}
}

// Registry открывает реестр для слоев выше (fallback-ростер, статика).
func (g *Gateway) Registry() *Registry { return g.registry }

// Call вызывает агента по его объявленному соглашению.
func (g *Gateway) Call(ctx context.Context, agentID, action string, params map[string]any) CallResult {
	start := g.now()
	g.metrics.TotalCalls.WithLabelValues(agentID, action).Inc()

	ep, err := g.registry.Lookup(agentID)
	if err != nil {
		g.metrics.FailedCalls.WithLabelValues(agentID, "unknown_agent").Inc()
		return g.failure(agentID, action, start, err)
	}

	// Жесткий потолок на весь вызов, независимо от ретраев внутри
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	body, err := g.rel.Execute(callCtx, func(ctx context.Context) ([]byte, error) {
		return g.doRequest(ctx, ep, action, params)
	})
	if err != nil {
		g.metrics.FailedCalls.WithLabelValues(agentID, failureReason(err)).Inc()
		return g.failure(agentID, action, start, err)
	}

	res := g.decode(body)
	res.Timestamp = g.now()
	g.metrics.CallDuration.WithLabelValues(agentID, action, "success").Observe(g.now().Sub(start).Seconds())
	return res
}

// doRequest собирает и исполняет один HTTP-запрос по соглашению эндпоинта.
// Тело пересобирается на каждый ретрай, поэтому сборка живет внутри op.
func (g *Gateway) doRequest(ctx context.Context, ep Endpoint, action string, params map[string]any) ([]byte, error) {
	var req *http.Request
	var err error

	// Единственная точка ветвления по соглашению вызова
	switch conv := ep.Convention.(type) {
	case GetQuery:
		q := url.Values{}
		q.Set("action", action)
		for k, v := range params {
			q.Set(k, fmt.Sprint(v))
		}
		if conv.RequiresDomain && q.Get("domain") == "" {
			q.Set("domain", g.defaultDomain)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, ep.BaseURL+"?"+q.Encode(), nil)

	case PostJSON:
		payload := map[string]any{"action": action}
		for k, v := range params {
			payload[k] = v
		}
		// Агент требует доменный параметр: подставляем дефолт,
		// если вызывающий его не передал
		if conv.RequiresDomain {
			if _, ok := payload["domain"]; !ok {
				payload["domain"] = g.defaultDomain
			}
		}
		var raw []byte
		raw, err = json.Marshal(payload)
		if err == nil {
			req, err = http.NewRequestWithContext(ctx, http.MethodPost, ep.BaseURL, bytes.NewReader(raw))
			if err == nil {
				req.Header.Set("Content-Type", "application/json")
			}
		}

	default:
		err = fmt.Errorf("gateway: endpoint %s has unsupported convention", ep.ID)
	}
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ThrottleError{RetryAfter: parseRetryAfter(resp), Cause: errors.New("agent throttled request")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{AgentID: ep.ID, Code: resp.StatusCode, Body: truncate(string(raw), 256)}
	}
	return raw, nil
}

// decode терпимо разбирает слабоструктурированный ответ агента:
// все поля опциональны, к отсутствующим применяются дефолты.
func (g *Gateway) decode(body []byte) CallResult {
	var wire struct {
		Success      *bool          `json:"success"`
		Data         map[string]any `json:"data"`
		Status       string         `json:"status"`
		Service      string         `json:"service"`
		Capabilities []string       `json:"capabilities"`
		Insights     map[string]any `json:"insights"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return CallResult{Success: false, Error: fmt.Sprintf("malformed agent response: %v", err)}
	}

	res := CallResult{
		Success:      wire.Success == nil || *wire.Success, // 2xx без поля success считаем успехом
		Data:         wire.Data,
		Status:       wire.Status,
		Service:      wire.Service,
		Capabilities: wire.Capabilities,
		Insights:     wire.Insights,
	}
	// insights?|data? — агенты старого формата кладут инсайты в data
	if res.Insights == nil {
		res.Insights = wire.Data
	}
	return res
}

func (g *Gateway) failure(agentID, action string, start time.Time, err error) CallResult {
	g.logger.Warn("agent call failed",
		zap.String("agent_id", agentID),
		zap.String("action", action),
		zap.Error(err))
	g.metrics.CallDuration.WithLabelValues(agentID, action, "failure").Observe(g.now().Sub(start).Seconds())
	return CallResult{Success: false, Error: err.Error(), Timestamp: g.now()}
}

// --- Агрегатное здоровье флота ---

// orchWire — формат консолидированного ответа оркестратора.
type orchWire struct {
	TotalAgents   int `json:"totalAgents"`
	HealthyAgents int `json:"healthyAgents"`
	ErrorAgents   int `json:"errorAgents"`
	MissingAgents int `json:"missingAgents"`
	Agents        []struct {
		Agent     string `json:"agent"`
		Status    string `json:"status"`
		Healthy   bool   `json:"healthy"`
		Timestamp string `json:"timestamp"`
		Error     string `json:"error,omitempty"`
	} `json:"agents"`
}

// AllAgentsHealth собирает здоровье всего флота.
// Сначала один вызов оркестратора; при его отказе — параллельный опрос
// каждого агента (allSettled: отказ одного не блокирует остальных)
// и синтез эквивалентного агрегата. Ошибка возвращается только при
// тотальном отказе сети (оркестратор недоступен И ни один агент не ответил).
func (g *Gateway) AllAgentsHealth(ctx context.Context) (domain.SystemHealthSnapshot, map[string]domain.AgentPerformance, error) {
	if orch, ok := g.registry.Orchestrator(); ok {
		snap, err := g.orchestratorHealth(ctx, orch)
		if err == nil {
			return snap, nil, nil
		}
		g.logger.Warn("orchestrator aggregate failed, falling back to per-agent fan-out", zap.Error(err))
	}
	return g.fanOutHealth(ctx)
}

func (g *Gateway) orchestratorHealth(ctx context.Context, orch Endpoint) (domain.SystemHealthSnapshot, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	body, err := g.rel.Execute(callCtx, func(ctx context.Context) ([]byte, error) {
		return g.doRequest(ctx, orch, orch.HealthActionName(), nil)
	})
	if err != nil {
		return domain.SystemHealthSnapshot{}, err
	}

	var wire orchWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return domain.SystemHealthSnapshot{}, fmt.Errorf("malformed orchestrator response: %w", err)
	}

	snap := domain.SystemHealthSnapshot{
		Timestamp:     g.now(),
		TotalAgents:   wire.TotalAgents,
		HealthyAgents: wire.HealthyAgents,
		ErrorAgents:   wire.ErrorAgents,
		MissingAgents: wire.MissingAgents,
		Agents:        make([]domain.AgentHealth, 0, len(wire.Agents)),
	}
	for _, a := range wire.Agents {
		ts := g.now()
		if parsed, perr := time.Parse(time.RFC3339, a.Timestamp); perr == nil {
			ts = parsed
		}
		conv := "GET"
		if ep, lerr := g.registry.Lookup(a.Agent); lerr == nil {
			conv = ep.Convention.Name()
		}
		snap.Agents = append(snap.Agents, domain.AgentHealth{
			AgentID:        a.Agent,
			Status:         parseAgentStatus(a.Status, a.Healthy),
			Healthy:        a.Healthy,
			Timestamp:      ts,
			CallConvention: conv,
			Error:          a.Error,
		})
	}
	// Стабильный порядок — иначе контент-хэш агрегата будет дрожать
	sort.Slice(snap.Agents, func(i, j int) bool { return snap.Agents[i].AgentID < snap.Agents[j].AgentID })
	return snap, nil
}

// fanOutHealth опрашивает каждого агента флота параллельно
// и синтезирует агрегат из индивидуальных результатов.
func (g *Gateway) fanOutHealth(ctx context.Context) (domain.SystemHealthSnapshot, map[string]domain.AgentPerformance, error) {
	fleet := g.registry.Fleet()
	results := make([]domain.AgentHealth, len(fleet))
	perfs := make([]*domain.AgentPerformance, len(fleet))

	var wg sync.WaitGroup
	for i, ep := range fleet {
		wg.Add(1)
		go func(i int, ep Endpoint) {
			defer wg.Done()
			res := g.Call(ctx, ep.ID, ep.HealthActionName(), nil)
			results[i] = healthFromResult(ep, res)
			if p, ok := perfFromInsights(res.Insights); ok {
				perfs[i] = &p
			}
		}(i, ep)
	}
	wg.Wait()

	snap := domain.SystemHealthSnapshot{
		Timestamp: g.now(),
		Agents:    results,
	}
	perfMap := make(map[string]domain.AgentPerformance)
	failed := 0
	for i, h := range results {
		snap.TotalAgents++
		switch h.Status {
		case domain.StatusHealthy:
			snap.HealthyAgents++
		case domain.StatusMissing:
			snap.MissingAgents++
		default:
			// Отказы шлюза попадают в errorAgents (best-effort инвариант)
			snap.ErrorAgents++
			failed++
		}
		if perfs[i] != nil {
			perfMap[h.AgentID] = *perfs[i]
		}
	}

	if failed == snap.TotalAgents && snap.TotalAgents > 0 {
		return snap, perfMap, fmt.Errorf("gateway: entire fleet unreachable (%d agents)", snap.TotalAgents)
	}
	return snap, perfMap, nil
}

func healthFromResult(ep Endpoint, res CallResult) domain.AgentHealth {
	h := domain.AgentHealth{
		AgentID:        ep.ID,
		Timestamp:      res.Timestamp,
		CallConvention: ep.Convention.Name(),
		Error:          res.Error,
	}
	if !res.Success {
		h.Status = domain.StatusError
		return h
	}
	h.Status = parseAgentStatus(res.Status, true)
	h.Healthy = h.Status == domain.StatusHealthy
	return h
}

func parseAgentStatus(s string, healthyHint bool) domain.AgentStatus {
	switch s {
	case "healthy", "ok", "active", "":
		if healthyHint {
			return domain.StatusHealthy
		}
		return domain.StatusError
	case "error", "failed", "degraded":
		return domain.StatusError
	case "missing", "not_registered":
		return domain.StatusMissing
	default:
		return domain.StatusUnknown
	}
}

// perfFromInsights извлекает метрики производительности из инсайтов агента.
func perfFromInsights(insights map[string]any) (domain.AgentPerformance, bool) {
	if insights == nil {
		return domain.AgentPerformance{}, false
	}
	rt, ok1 := numField(insights, "response_time_ms", "responseTime")
	sr, ok2 := numField(insights, "success_rate", "successRate")
	tc, ok3 := numField(insights, "tasks_completed", "tasksCompleted")
	if !ok1 && !ok2 && !ok3 {
		return domain.AgentPerformance{}, false
	}
	return domain.AgentPerformance{
		ResponseTimeMs: rt,
		SuccessRate:    sr,
		TasksCompleted: int(tc),
		LastActive:     time.Now(),
	}, true
}

func numField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch n := v.(type) {
			case float64:
				return n, true
			case int:
				return float64(n), true
			case string:
				if f, err := strconv.ParseFloat(n, 64); err == nil {
					return f, true
				}
			}
		}
	}
	return 0, false
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case isStatusErr(err):
		return "status"
	default:
		return "network"
	}
}

func isStatusErr(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 2 * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
