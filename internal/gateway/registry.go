package gateway

import (
	"fmt"
	"sort"

	"github.com/xela07ax/agentpulse/internal/domain"
	"github.com/xela07ax/agentpulse/internal/infra"
)

// Convention — закрытый tagged-variant способа вызова агента.
// Вместо строкового флага, размазанного по call-site'ам,
// ветвление происходит одним type switch в Gateway.Call.
type Convention interface {
	// Name возвращает каноническое имя для логов и AgentHealth.CallConvention
	Name() string
}

// GetQuery — вызов GET с параметрами в query string.
// RequiresDomain: агент требует параметр "domain" — если вызывающий
// его не передал, шлюз подставляет дефолтный домен сам.
type GetQuery struct {
	RequiresDomain bool
}

func (GetQuery) Name() string { return "GET" }

// PostJSON — вызов POST с JSON-телом.
// RequiresDomain действует так же, как у GetQuery, но поле уходит в тело.
type PostJSON struct {
	RequiresDomain bool
}

func (PostJSON) Name() string { return "POST" }

// DefaultHealthAction — action проверки здоровья, если агент не объявил свой.
const DefaultHealthAction = "health_check"

// Endpoint — декларация одного удаленного агента.
type Endpoint struct {
	ID           string
	Name         string
	BaseURL      string
	Convention   Convention
	HealthAction string // пусто = DefaultHealthAction
	Orchestrator bool   // агрегирующий эндпоинт консолидированного здоровья
	Info         domain.AgentInfo
}

// Registry — статический реестр эндпоинтов флота.
// Иммутабелен после создания: безопасен для конкурентного чтения.
type Registry struct {
	endpoints    map[string]Endpoint
	orchestrator string // ID оркестратора, пусто если не объявлен
}

// NewRegistry строит реестр из конфигурации.
// Пустой список агентов означает дефолтный маркетинговый флот.
func NewRegistry(cfgs []infra.AgentEndpointConfig) (*Registry, error) {
	if len(cfgs) == 0 {
		cfgs = defaultFleet()
	}

	r := &Registry{endpoints: make(map[string]Endpoint, len(cfgs))}
	for _, c := range cfgs {
		if c.ID == "" || c.BaseURL == "" {
			return nil, fmt.Errorf("registry: agent entry requires id and base_url (got id=%q)", c.ID)
		}

		// Граница конфигурации: строка -> tagged-variant
		var conv Convention
		switch c.Convention {
		case "", "GET":
			conv = GetQuery{RequiresDomain: c.RequiresDomain}
		case "POST":
			conv = PostJSON{RequiresDomain: c.RequiresDomain}
		default:
			return nil, fmt.Errorf("registry: agent %s has unsupported convention %q", c.ID, c.Convention)
		}

		ep := Endpoint{
			ID:           c.ID,
			Name:         c.Name,
			BaseURL:      c.BaseURL,
			Convention:   conv,
			HealthAction: c.HealthAction,
			Orchestrator: c.Orchestrator,
			Info: domain.AgentInfo{
				ID:          c.ID,
				Name:        c.Name,
				Description: fmt.Sprintf("%s agent", c.Name),
				Category:    categoryOf(c.ID),
			},
		}
		r.endpoints[c.ID] = ep

		if c.Orchestrator {
			if r.orchestrator != "" {
				return nil, fmt.Errorf("registry: multiple orchestrators declared (%s, %s)", r.orchestrator, c.ID)
			}
			r.orchestrator = c.ID
		}
	}
	return r, nil
}

// Lookup возвращает эндпоинт или ErrUnknownAgent.
func (r *Registry) Lookup(agentID string) (Endpoint, error) {
	ep, ok := r.endpoints[agentID]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return ep, nil
}

// Orchestrator возвращает агрегирующий эндпоинт, если он объявлен.
func (r *Registry) Orchestrator() (Endpoint, bool) {
	if r.orchestrator == "" {
		return Endpoint{}, false
	}
	return r.endpoints[r.orchestrator], true
}

// Fleet возвращает всех агентов кроме оркестратора, отсортированных по ID.
// Стабильный порядок важен: от него зависит детерминизм контент-хэша агрегата.
func (r *Registry) Fleet() []Endpoint {
	out := make([]Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		if ep.Orchestrator {
			continue
		}
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Roster возвращает статические метаданные флота (для fallback-синтеза).
func (r *Registry) Roster() []domain.AgentInfo {
	fleet := r.Fleet()
	out := make([]domain.AgentInfo, 0, len(fleet))
	for _, ep := range fleet {
		out = append(out, ep.Info)
	}
	return out
}

// HealthActionName возвращает action проверки здоровья для эндпоинта.
func (ep Endpoint) HealthActionName() string {
	if ep.HealthAction != "" {
		return ep.HealthAction
	}
	return DefaultHealthAction
}

func categoryOf(id string) string {
	switch id {
	case "emailMarketing":
		return "email"
	case "seo":
		return "seo"
	case "contentCreation":
		return "content"
	case "socialMedia":
		return "social"
	case "analytics":
		return "analytics"
	case "adsManager":
		return "ads"
	default:
		return "general"
	}
}

// defaultFleet — маркетинговый флот по умолчанию.
// Соглашения вызова намеренно разнородны: так ведут себя реальные агенты.
func defaultFleet() []infra.AgentEndpointConfig {
	return []infra.AgentEndpointConfig{
		{ID: "orchestrator", Name: "Orchestrator", BaseURL: "http://localhost:3000/api/orchestrator", Convention: "GET", HealthAction: "agents_health", Orchestrator: true},
		{ID: "emailMarketing", Name: "Email Marketing", BaseURL: "http://localhost:3001/api/agent", Convention: "POST", RequiresDomain: true},
		{ID: "seo", Name: "SEO Optimizer", BaseURL: "http://localhost:3002/api/agent", Convention: "GET", HealthAction: "status", RequiresDomain: true},
		{ID: "contentCreation", Name: "Content Creation", BaseURL: "http://localhost:3003/api/agent", Convention: "POST"},
		{ID: "socialMedia", Name: "Social Media", BaseURL: "http://localhost:3004/api/agent", Convention: "GET"},
		{ID: "analytics", Name: "Analytics", BaseURL: "http://localhost:3005/api/agent", Convention: "POST", RequiresDomain: true},
		{ID: "adsManager", Name: "Ads Manager", BaseURL: "http://localhost:3006/api/agent", Convention: "GET"},
	}
}
