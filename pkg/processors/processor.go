package processors

import (
	"context"

	"github.com/signalmesh/hermes/pkg/models"
	"github.com/signalmesh/hermes/pkg/types"
)

// DeliveryAdapter delivers one event to a group of endpoints of a single
// type, returning one history record per endpoint in the order they were
// attempted. Adapters never return an error for individual endpoint failures;
// the outcome lives in the history record.
type DeliveryAdapter interface {
	EndpointType() models.EndpointType
	Deliver(ctx context.Context, env *types.Envelope, endpoints []models.Endpoint) []models.NotificationHistory
}

// Registry maps endpoint types to their delivery adapters. Unknown types are
// reported explicitly by the router instead of being swallowed.
type Registry struct {
	adapters map[models.EndpointType]DeliveryAdapter
}

func NewRegistry(adapters ...DeliveryAdapter) *Registry {
	m := make(map[models.EndpointType]DeliveryAdapter, len(adapters))
	for _, a := range adapters {
		m[a.EndpointType()] = a
	}
	return &Registry{adapters: m}
}

func (r *Registry) Adapter(t models.EndpointType) (DeliveryAdapter, bool) {
	a, ok := r.adapters[t]
	return a, ok
}
