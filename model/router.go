package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNoRoute is returned when no provider is registered for a model id.
var ErrNoRoute = errors.New("no provider for model")

// Provider names used by the default routing table.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"
)

// DefaultPrefixes maps model id prefixes to provider names.
var DefaultPrefixes = map[string]string{
	"gpt-":     ProviderOpenAI,
	"o1":       ProviderOpenAI,
	"o3":       ProviderOpenAI,
	"o4":       ProviderOpenAI,
	"chatgpt-": ProviderOpenAI,
	"claude-":  ProviderAnthropic,
	"gemini-":  ProviderGemini,
}

// Router dispatches each request to a named provider chosen by the model id
// prefix. The longest matching prefix wins. Requests that match nothing go
// to the fallback provider, if one is set.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	prefixes  map[string]string
	fallback  string
}

// RouterOptions configures a Router.
type RouterOptions struct {
	// Prefixes maps model id prefixes to provider names. Defaults to DefaultPrefixes.
	Prefixes map[string]string
	// Fallback names the provider used when no prefix matches.
	Fallback string
}

// NewRouter creates an empty router.
func NewRouter(optFns ...func(o *RouterOptions)) *Router {
	opts := RouterOptions{Prefixes: DefaultPrefixes}
	for _, fn := range optFns {
		fn(&opts)
	}
	prefixes := make(map[string]string, len(opts.Prefixes))
	for k, v := range opts.Prefixes {
		prefixes[k] = v
	}
	return &Router{providers: make(map[string]Provider), prefixes: prefixes, fallback: opts.Fallback}
}

// Register makes a provider available under name.
func (r *Router) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Has reports whether a provider is registered under name.
func (r *Router) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Names returns the registered provider names.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	return names
}

// Resolve returns the provider name and provider for a model id.
func (r *Router) Resolve(modelID string) (string, Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	name := ""
	for prefix, provider := range r.prefixes {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(best) {
			if _, ok := r.providers[provider]; ok {
				best, name = prefix, provider
			}
		}
	}
	if name == "" {
		name = r.fallback
	}
	p, ok := r.providers[name]
	if !ok {
		return "", nil, fmt.Errorf("%w %q", ErrNoRoute, modelID)
	}
	return name, p, nil
}

// Complete implements Provider.
func (r *Router) Complete(ctx context.Context, req Request) (*Response, error) {
	_, p, err := r.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	return p.Complete(ctx, req)
}
