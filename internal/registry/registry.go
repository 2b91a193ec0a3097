// Package registry loads and validates the declarative org/service/rule
// configuration that the classifier and dispatcher resolve against.
package registry

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/blackroad-os/edge-router/pkg/models"
)

// Codes is the fixed closed set of 15 organization codes the registry may
// declare. DefaultOrg is the fallback organization used by the classifier
// when nothing else matches.
var Codes = []string{
	"OS", "AI", "CLD", "FND", "SEC", "INF", "HDW", "MET",
	"MED", "EDU", "GOV", "DSN", "COM", "ENT", "XPR",
}

const DefaultOrg = "AI"

// document is the on-disk YAML shape: orgs keyed by code, rules as an
// ordered list. Declaration order in the YAML list is preserved by
// yaml.v3's sequence decoding and is significant for rule tie-breaking.
type document struct {
	Orgs       map[string]orgDoc   `yaml:"orgs"`
	Rules      []models.RoutingRule `yaml:"rules"`
	Categories []models.Category  `yaml:"categories"`
}

type orgDoc struct {
	Name     string                 `yaml:"name"`
	Status   string                 `yaml:"status"`
	Services map[string]models.Service `yaml:"services"`
}

// Snapshot is an immutable, validated view of the registry at one point in
// time. It is never mutated after construction; reload produces a new
// Snapshot and swaps the pointer atomically.
type Snapshot struct {
	Orgs       map[string]models.Organization
	Rules      []models.RoutingRule
	Categories []models.Category

	// serviceOrder preserves per-org declaration order of service names,
	// recovered from the raw YAML node since Go maps have no order.
	serviceOrder map[string][]string
}

// Org returns the organization for code, and whether it exists.
func (s *Snapshot) Org(code string) (models.Organization, bool) {
	org, ok := s.Orgs[code]
	return org, ok
}

// Service returns the named service within org, and whether it exists.
func (s *Snapshot) Service(orgCode, name string) (models.Service, bool) {
	org, ok := s.Orgs[orgCode]
	if !ok {
		return models.Service{}, false
	}
	svc, ok := org.Services[name]
	return svc, ok
}

// DefaultService returns the org's declared default service, or the first
// declared service if none is marked default, per spec.md §3's Service
// invariant. ok is false only when the org has no services at all.
func (s *Snapshot) DefaultService(orgCode string) (models.Service, bool) {
	org, ok := s.Orgs[orgCode]
	if !ok || len(org.Services) == 0 {
		return models.Service{}, false
	}
	for _, svc := range org.Services {
		if svc.Default {
			return svc, true
		}
	}
	// No service marked default: fall back to the first declared. Map
	// iteration order is not declaration order, so we track declaration
	// order separately via extractServiceOrder on load.
	if names, ok := s.serviceOrder[orgCode]; ok && len(names) > 0 {
		return org.Services[names[0]], true
	}
	for _, svc := range org.Services {
		return svc, true
	}
	return models.Service{}, false
}

// Registry is the hot-swappable holder of the current Snapshot.
type Registry struct {
	current atomic.Pointer[Snapshot]
	path    string
}

// New constructs an empty Registry. Call Load before using it.
func New(path string) *Registry {
	return &Registry{path: path}
}

// Load reads and validates the registry file, replacing the current
// snapshot on success (atomic swap — readers never observe a partially
// loaded registry, per spec.md §3's "Lifecycles" invariant).
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("registry: read %s: %w", r.path, err)
	}
	snap, err := parse(data)
	if err != nil {
		return fmt.Errorf("registry: parse %s: %w", r.path, err)
	}
	r.current.Store(snap)
	return nil
}

// Current returns the active snapshot. Safe for concurrent use; returns
// nil if Load has never succeeded.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

func parse(data []byte) (*Snapshot, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Orgs:         make(map[string]models.Organization, len(doc.Orgs)),
		Rules:        doc.Rules,
		Categories:   doc.Categories,
		serviceOrder: make(map[string][]string, len(doc.Orgs)),
	}

	// yaml.v3 does not give us per-org service declaration order from a
	// plain map; re-decode each org's services as an ordered node to
	// recover it for the default-service fallback (spec.md §3).
	var raw struct {
		Orgs yaml.Node `yaml:"orgs"`
	}
	if err := yaml.Unmarshal(data, &raw); err == nil {
		snap.serviceOrder = extractServiceOrder(raw.Orgs)
	}

	for code, od := range doc.Orgs {
		snap.Orgs[code] = models.Organization{
			Code:     code,
			Name:     od.Name,
			Status:   models.OrgStatus(od.Status),
			Services: od.Services,
		}
	}

	if err := validate(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// extractServiceOrder walks the raw orgs mapping node to recover, per org
// code, the declaration order of its services map keys.
func extractServiceOrder(orgsNode yaml.Node) map[string][]string {
	out := map[string][]string{}
	if orgsNode.Kind != yaml.MappingNode {
		return out
	}
	for i := 0; i+1 < len(orgsNode.Content); i += 2 {
		code := orgsNode.Content[i].Value
		orgBody := orgsNode.Content[i+1]
		if orgBody.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(orgBody.Content); j += 2 {
			if orgBody.Content[j].Value != "services" {
				continue
			}
			servicesNode := orgBody.Content[j+1]
			if servicesNode.Kind != yaml.MappingNode {
				continue
			}
			var names []string
			for k := 0; k+1 < len(servicesNode.Content); k += 2 {
				names = append(names, servicesNode.Content[k].Value)
			}
			out[code] = names
		}
	}
	return out
}

// validate enforces spec.md §3's invariants and §6's registry-file
// validation rule: every rule resolves, every service has an endpoint.
func validate(snap *Snapshot) error {
	for code, org := range snap.Orgs {
		if org.Code != code {
			return fmt.Errorf("org %q: Code field %q does not match map key", code, org.Code)
		}
		for name, svc := range org.Services {
			if svc.Endpoint == "" {
				return fmt.Errorf("org %s: service %s has no endpoint", code, name)
			}
		}
	}
	for _, rule := range snap.Rules {
		org, ok := snap.Orgs[rule.Org]
		if !ok {
			return fmt.Errorf("rule %s: unknown org %s", rule.Name, rule.Org)
		}
		if rule.Service != "" {
			if _, ok := org.Services[rule.Service]; !ok {
				return fmt.Errorf("rule %s: org %s has no service %s", rule.Name, rule.Org, rule.Service)
			}
		}
	}
	for _, cat := range snap.Categories {
		org, ok := snap.Orgs[cat.Org]
		if !ok {
			return fmt.Errorf("category %s: unknown org %s", cat.Name, cat.Org)
		}
		if cat.Service != "" {
			if _, ok := org.Services[cat.Service]; !ok {
				return fmt.Errorf("category %s: org %s has no service %s", cat.Name, cat.Org, cat.Service)
			}
		}
		if len(cat.Keywords) == 0 {
			return fmt.Errorf("category %s: no keywords declared", cat.Name)
		}
	}

	if _, ok := snap.Orgs[DefaultOrg]; !ok {
		return fmt.Errorf("registry: default organization %s is not declared", DefaultOrg)
	}
	return nil
}
