// Package handlers implements the polymorphic per-node-type dispatch layer:
// a Handler interface, a registry of factories keyed by node type, and the
// five builtin handlers (email_trigger, extract_content, summarize,
// google_sheets, response).
package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/lyzr/agentkit/internal/errs"
	"github.com/lyzr/agentkit/internal/models"
)

// Output is what a handler returns on success: a map merged into the run
// context under the node's author key, plus an optional token-accounting
// sidecar for LLM calls.
type Output struct {
	Data       map[string]any
	TokenUsage *models.TokenUsage
}

// SideChannel is the persistence façade subset a handler may use. None of
// the builtins currently need it, but the contract carries it through so a
// future handler (e.g. one reading another workflow's state) has a place
// to hook in without changing the Handler signature.
type SideChannel interface {
	LoadIntegration(ctx context.Context, id string) (*models.Integration, error)
}

// Handler executes one node type. Implementations must not mutate the
// context map; the executor owns merging the returned Output into it.
type Handler interface {
	Execute(ctx context.Context, resolvedData map[string]any, runContext map[string]any, side SideChannel) (Output, error)
}

// Factory builds a fresh Handler instance. A fresh instance per execution
// is acceptable since handlers are stateless or hold only immutable config.
type Factory func() Handler

// Registry maps a node type discriminator to a handler factory. Register and
// HandlerFor are guarded by a mutex, so it is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry builds a registry pre-populated with the five builtin
// handlers.
func NewRegistry(openAIFallbackKey string) *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("email_trigger", func() Handler { return NewEmailTriggerHandler() })
	r.Register("extract_content", func() Handler { return NewExtractContentHandler() })
	r.Register("summarize", func() Handler { return NewSummarizeHandler(openAIFallbackKey) })
	r.Register("google_sheets", func() Handler { return NewGoogleSheetsHandler() })
	r.Register("response", func() Handler { return NewResponseHandler() })
	return r
}

// Register adds or replaces the factory for a node type.
func (r *Registry) Register(nodeType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[nodeType] = factory
}

// HandlerFor resolves a node type to a fresh Handler instance.
func (r *Registry) HandlerFor(nodeType string) (Handler, error) {
	r.mu.RLock()
	factory, ok := r.factories[nodeType]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.KindUnknownNodeType, fmt.Sprintf("unknown node type: %q", nodeType))
	}
	return factory(), nil
}
