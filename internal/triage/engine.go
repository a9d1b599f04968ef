// Package triage classifies free-text tickets into category, priority and
// confidence using an ordered keyword rule table, optionally delegating to
// a remote language-model API with unconditional local fallback.
package triage

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Result is the outcome of categorizing a ticket.
type Result struct {
	Category   domain.TicketCategory `json:"category"`
	Priority   domain.TicketPriority `json:"priority"`
	Confidence float64               `json:"confidence"`
}

// Categorizer produces a classification for title + description text.
type Categorizer interface {
	Categorize(ctx context.Context, title, description string) Result
}

// rule maps a keyword set to its category, base priority and base
// confidence. Rules are evaluated in order; the first match wins.
type rule struct {
	keywords   []string
	category   domain.TicketCategory
	priority   domain.TicketPriority
	confidence float64
}

var categoryRules = []rule{
	{
		keywords:   []string{"bug", "error", "crash", "broken", "not working", "issue", "problem"},
		category:   domain.CategoryBugReport,
		priority:   domain.TicketPriorityHigh,
		confidence: 0.9,
	},
	{
		keywords:   []string{"feature", "enhancement", "request", "add", "new", "implement"},
		category:   domain.CategoryFeatureRequest,
		priority:   domain.TicketPriorityLow,
		confidence: 0.8,
	},
	{
		keywords:   []string{"billing", "payment", "invoice", "charge", "subscription", "refund"},
		category:   domain.CategoryBilling,
		priority:   domain.TicketPriorityMedium,
		confidence: 0.85,
	},
	{
		keywords:   []string{"technical", "api", "integration", "server", "database", "code", "development"},
		category:   domain.CategoryTechnical,
		priority:   domain.TicketPriorityHigh,
		confidence: 0.8,
	},
}

var escalationKeywords = []string{"urgent", "asap", "immediately", "critical", "emergency", "down", "outage"}

var deescalationKeywords = []string{"minor", "cosmetic", "nice to have", "when possible"}

// Engine is the local keyword classifier. The random source is injected so
// the confidence perturbation is deterministic under test.
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine builds an engine around the given random source.
func NewEngine(rng *rand.Rand) *Engine {
	return &Engine{rng: rng}
}

// Categorize runs the ordered rule table over the lower-cased text.
func (e *Engine) Categorize(_ context.Context, title, description string) Result {
	text := strings.ToLower(title + " " + description)

	result := Result{
		Category:   domain.CategoryGeneral,
		Priority:   domain.TicketPriorityMedium,
		Confidence: 0.7,
	}
	for _, r := range categoryRules {
		if containsAny(text, r.keywords) {
			result.Category = r.category
			result.Priority = r.priority
			result.Confidence = r.confidence
			break
		}
	}

	if containsAny(text, escalationKeywords) {
		result.Priority = domain.TicketPriorityUrgent
		result.Confidence = math.Min(result.Confidence+0.1, 1.0)
	} else if containsAny(text, deescalationKeywords) {
		result.Priority = domain.TicketPriorityLow
	}

	result.Confidence = clampConfidence(result.Confidence + e.perturbation())
	result.Confidence = math.Round(result.Confidence*100) / 100
	return result
}

func (e *Engine) perturbation() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()*0.2 - 0.1
}

func clampConfidence(c float64) float64 {
	return math.Max(0.5, math.Min(1.0, c))
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
