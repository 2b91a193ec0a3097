// Package classify turns a Request into a Classification by combining
// priority-ordered regex rules with keyword-category scoring.
package classify

import (
	"regexp"
	"strings"
	"sync"

	"github.com/blackroad-os/edge-router/internal/registry"
	"github.com/blackroad-os/edge-router/pkg/models"
)

const (
	historyCap = 1000
	historyTrimTo = 500
)

var punctuationStripper = strings.NewReplacer(
	",", "", ".", "", "!", "", "?", "", ";", "", ":", "",
	"\"", "", "'", "", "(", "", ")", "", "[", "", "]", "",
)

// Router classifies requests and keeps a bounded history for introspection.
// The classifier itself is stateless; Router owns the only mutable state.
type Router struct {
	registry *registry.Registry

	mu      sync.Mutex
	history []models.Classification
}

// New constructs a Router backed by the given registry. The registry's
// current snapshot is read fresh on every Classify call, so a hot reload
// takes effect on the next request.
func New(reg *registry.Registry) *Router {
	return &Router{registry: reg}
}

// Classify implements the procedure in spec.md §4.2: rule match first,
// then keyword scoring, then fallback.
func (rt *Router) Classify(req models.Request) models.Classification {
	snap := rt.registry.Current()
	if snap == nil {
		return fallback()
	}

	normalized := normalize(req.Body)

	if c, ok := matchRules(snap.Rules, req.Body); ok {
		rt.record(c)
		return c
	}

	if c, ok := scoreCategories(snap.Categories, normalized); ok {
		rt.record(c)
		return c
	}

	c := fallback()
	rt.record(c)
	return c
}

// matchRules iterates rules in descending priority (ties broken by
// declaration order, i.e. slice order) and returns the first regex match
// against the raw, un-normalized text.
func matchRules(rules []models.RoutingRule, rawText string) (models.Classification, bool) {
	ordered := make([]models.RoutingRule, len(rules))
	copy(ordered, rules)
	sortRulesByPriorityDesc(ordered)

	for i, rule := range ordered {
		re, err := regexp.Compile("(?i)" + stripCaseInsensitivePrefix(rule.Pattern))
		if err != nil {
			continue
		}
		if re.MatchString(rawText) {
			confidence := 0.5 + 0.1*float64(rankBonus(i))
			if confidence > 1.0 {
				confidence = 1.0
			}
			return models.Classification{
				Org:        rule.Org,
				Service:    rule.Service,
				Confidence: confidence,
				Basis:      models.BasisRule,
				Patterns:   []string{rule.Name},
			}, true
		}
	}
	return models.Classification{}, false
}

// rankBonus rewards earlier (higher-priority) matches with a larger bonus,
// saturating quickly since confidence is capped at 1.0 regardless.
func rankBonus(rank int) int {
	if rank > 5 {
		return 0
	}
	return 5 - rank
}

// stripCaseInsensitivePrefix avoids double-applying "(?i)" when the
// registry already declares it explicitly in the pattern.
func stripCaseInsensitivePrefix(pattern string) string {
	return strings.TrimPrefix(pattern, "(?i)")
}

func sortRulesByPriorityDesc(rules []models.RoutingRule) {
	// Stable sort preserves declaration order among equal priorities,
	// satisfying spec.md §3's tie-break invariant.
	for i := 1; i < len(rules); i++ {
		for j := i; j > 0 && rules[j].Priority > rules[j-1].Priority; j-- {
			rules[j], rules[j-1] = rules[j-1], rules[j]
		}
	}
}

// scoreCategories implements spec.md §4.2 step 2: each category scores
// (#matching keywords)/(#keywords), capped at 1.0; ties are broken by
// declaration order (the slice order from the registry, per spec.md §9).
func scoreCategories(categories []models.Category, normalized string) (models.Classification, bool) {
	scores := make(map[string]float64, len(categories))
	var best models.Category
	bestScore := -1.0

	for _, cat := range categories {
		if len(cat.Keywords) == 0 {
			continue
		}
		matches := 0
		for _, kw := range cat.Keywords {
			if strings.Contains(normalized, strings.ToLower(kw)) {
				matches++
			}
		}
		score := float64(matches) / float64(len(cat.Keywords))
		if score > 1.0 {
			score = 1.0
		}
		scores[cat.Name] = score
		if score > bestScore {
			bestScore = score
			best = cat
		}
	}

	if bestScore <= 0 {
		return models.Classification{}, false
	}

	return models.Classification{
		Org:        best.Org,
		Service:    best.Service,
		Confidence: bestScore,
		Basis:      models.BasisScore,
		Scores:     scores,
	}, true
}

func fallback() models.Classification {
	return models.Classification{
		Org:        registry.DefaultOrg,
		Service:    "router",
		Confidence: 0.5,
		Basis:      models.BasisFallback,
	}
}

// normalize lowercases, collapses whitespace, and strips a bounded set of
// punctuation for keyword scoring. Regex rules use the raw, un-normalized
// text (spec.md §4.2).
func normalize(text string) string {
	lowered := strings.ToLower(text)
	stripped := punctuationStripper.Replace(lowered)
	fields := strings.Fields(stripped)
	return strings.Join(fields, " ")
}

// record appends c to the bounded ring buffer, trimming to half when full.
func (rt *Router) record(c models.Classification) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.history = append(rt.history, c)
	if len(rt.history) > historyCap {
		keep := rt.history[len(rt.history)-historyTrimTo:]
		rt.history = append([]models.Classification(nil), keep...)
	}
}

// History returns a snapshot copy of the classification ring buffer.
func (rt *Router) History() []models.Classification {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]models.Classification, len(rt.history))
	copy(out, rt.history)
	return out
}
