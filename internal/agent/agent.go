package agent

import (
	"context"
	"fmt"
	"sort"

	"ContentDigest/internal/domain"
)

// Agent names routable by the content router.
const (
	NameContentProcessor = "content-processor"
	NameResearcher       = "researcher"
	NameDigest           = "digest"
	NameUnknown          = "unknown"
)

// Request carries one content item into an agent invocation.
type Request struct {
	Item *domain.ContentItem
}

// Response is the standardized agent envelope: status plus the processed
// content and the providers that produced it.
type Response struct {
	Status          string
	ContentType     domain.ContentType
	OriginalContent string
	Processed       string
	Summary         string
	Entities        []domain.Entity
	Tags            []string
	Providers       []string
}

// Agent is a specialized processing unit with a uniform process contract.
type Agent interface {
	Name() string
	Description() string
	Process(ctx context.Context, req Request) (Response, error)
}

// Registry keeps a static mapping from agent names to implementations,
// populated once at startup.
type Registry struct {
	agents map[string]Agent
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: map[string]Agent{}}
}

// Register adds or replaces an agent implementation.
func (r *Registry) Register(a Agent) {
	if r.agents == nil {
		r.agents = map[string]Agent{}
	}
	r.agents[a.Name()] = a
}

// Resolve returns an agent by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Agent, error) {
	if a, ok := r.agents[name]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("agent %s is not registered", name)
}

// Capability describes one registered agent for discovery listings.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// List returns registered agents sorted by name.
func (r *Registry) List() []Capability {
	caps := make([]Capability, 0, len(r.agents))
	for _, a := range r.agents {
		caps = append(caps, Capability{Name: a.Name(), Description: a.Description()})
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].Name < caps[j].Name })
	return caps
}
