package payment

import (
	"sync"

	"github.com/shamank/snet-custody-go/pkg/config"
)

// DefaultResource is looked up when no resource path is given.
const DefaultResource = "/api/v1/tools/invoke"

// Requirements maps resource paths (HTTP paths or gRPC full method names)
// to what they cost. Safe for concurrent use.
type Requirements struct {
	mu         sync.RWMutex
	byResource map[string]Requirement
}

func NewRequirements() *Requirements {
	return &Requirements{byResource: map[string]Requirement{}}
}

// DefaultRequirement builds the requirement for DefaultResource from cfg.
// ok is false when no payee is configured.
func DefaultRequirement(cfg config.Payment) (Requirement, bool) {
	if cfg.PayTo == "" {
		return Requirement{}, false
	}
	amount := cfg.MaxAmountRequired
	if amount == "" {
		amount = "0"
	}
	return Requirement{
		Scheme:            "exact",
		Network:           cfg.Network,
		MaxAmountRequired: amount,
		Resource:          DefaultResource,
		PayTo:             cfg.PayTo,
		Asset:             cfg.Asset,
	}, true
}

// Set registers req for resource. req.Resource is overwritten.
func (r *Requirements) Set(resource string, req Requirement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.Resource = resource
	r.byResource[resource] = req
}

// Lookup returns the requirement for resource; "" means DefaultResource.
func (r *Requirements) Lookup(resource string) (Requirement, bool) {
	if resource == "" {
		resource = DefaultResource
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.byResource[resource]
	return req, ok
}
