package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad-os/edge-router/internal/registry"
	"github.com/blackroad-os/edge-router/pkg/models"
)

const testRegistry = `
orgs:
  AI:
    name: Intelligence
    status: active
    services:
      router:
        name: router
        endpoint: http://ai-router.internal:9000
        type: rest
        default: true
  FND:
    name: Foundation
    status: active
    services:
      salesforce:
        name: salesforce
        endpoint: http://fnd-salesforce.internal:9100
        type: rest
        default: true
rules:
  - name: salesforce-sync
    pattern: "salesforce"
    org: FND
    service: salesforce
    priority: 100
  - name: low-priority-catch-all
    pattern: "sync"
    org: AI
    service: router
    priority: 1
categories:
  - name: crm
    keywords: ["salesforce", "contacts", "leads"]
    org: FND
    service: salesforce
  - name: ai
    keywords: ["model", "inference", "prompt"]
    org: AI
    service: router
`

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRegistry), 0o644))
	reg := registry.New(path)
	require.NoError(t, reg.Load())
	return New(reg)
}

func TestClassifyRuleMatchWins(t *testing.T) {
	rt := newTestRouter(t)
	c := rt.Classify(models.Request{Body: "Sync Salesforce contacts to the CRM"})
	assert.Equal(t, "FND", c.Org)
	assert.Equal(t, "salesforce", c.Service)
	assert.Equal(t, models.BasisRule, c.Basis)
	assert.GreaterOrEqual(t, c.Confidence, 0.6)
}

func TestClassifyHigherPriorityWinsOnAmbiguousInput(t *testing.T) {
	rt := newTestRouter(t)
	// Matches both "salesforce-sync" (priority 100) and
	// "low-priority-catch-all" (priority 1); the higher-priority rule
	// must win per spec.md §8 invariant 3.
	c := rt.Classify(models.Request{Body: "please sync salesforce data"})
	assert.Equal(t, "FND", c.Org)
	assert.Equal(t, "salesforce", c.Service)
}

func TestClassifyFallbackOnNoMatch(t *testing.T) {
	rt := newTestRouter(t)
	c := rt.Classify(models.Request{Body: "qwerty asdf"})
	assert.Equal(t, registry.DefaultOrg, c.Org)
	assert.Equal(t, "router", c.Service)
	assert.Equal(t, 0.5, c.Confidence)
	assert.Equal(t, models.BasisFallback, c.Basis)
}

func TestClassifyEmptyInputProducesFallback(t *testing.T) {
	rt := newTestRouter(t)
	c := rt.Classify(models.Request{Body: ""})
	assert.Equal(t, registry.DefaultOrg, c.Org)
	assert.Equal(t, 0.5, c.Confidence)
}

func TestClassifyConfidenceAlwaysInRange(t *testing.T) {
	rt := newTestRouter(t)
	inputs := []string{
		"salesforce salesforce salesforce",
		"model inference prompt",
		"totally unrelated gibberish zzy",
		"",
	}
	for _, in := range inputs {
		c := rt.Classify(models.Request{Body: in})
		assert.GreaterOrEqual(t, c.Confidence, 0.0)
		assert.LessOrEqual(t, c.Confidence, 1.0)
	}
}

func TestHistoryTrimsAtCap(t *testing.T) {
	rt := newTestRouter(t)
	for i := 0; i < historyCap+10; i++ {
		rt.Classify(models.Request{Body: "qwerty asdf"})
	}
	h := rt.History()
	assert.LessOrEqual(t, len(h), historyCap)
	assert.Equal(t, historyTrimTo, len(h))
}

func TestKeywordScoringFallsBackWhenNoRuleMatches(t *testing.T) {
	rt := newTestRouter(t)
	c := rt.Classify(models.Request{Body: "check the model inference prompt pipeline"})
	assert.Equal(t, "AI", c.Org)
	assert.Equal(t, models.BasisScore, c.Basis)
	assert.NotEmpty(t, c.Scores)
}
