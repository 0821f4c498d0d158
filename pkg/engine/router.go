package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/signalmesh/hermes/metrics"
	"github.com/signalmesh/hermes/pkg/models"
	"github.com/signalmesh/hermes/pkg/processors"
	"github.com/signalmesh/hermes/pkg/types"
)

// EndpointSource is the slice of the endpoint repository the router needs.
type EndpointSource interface {
	TargetEndpoints(orgID, bundle, application, eventType string) ([]models.Endpoint, error)
	GetByID(orgID string, id uuid.UUID) (*models.Endpoint, error)
	GetOrCreateDefaultEmailSubscription(accountID, orgID string) (*models.Endpoint, error)
}

// HistoryWriter persists delivery history rows.
type HistoryWriter interface {
	Create(history *models.NotificationHistory) error
}

// Router fans one accepted event out to its target endpoints, grouped by
// endpoint type, and persists one history row per (event, endpoint) pair in
// arrival order.
type Router struct {
	endpoints EndpointSource
	history   HistoryWriter
	registry  *processors.Registry
	log       *zap.Logger
}

func NewRouter(endpoints EndpointSource, history HistoryWriter, registry *processors.Registry, log *zap.Logger) *Router {
	return &Router{
		endpoints: endpoints,
		history:   history,
		registry:  registry,
		log:       log,
	}
}

// Process routes one envelope. Errors are returned only for infrastructure
// failures that should fail the whole event; per-endpoint delivery failures
// end up in history rows instead.
func (r *Router) Process(ctx context.Context, env *types.Envelope) error {
	metrics.MessagesProcessedTotal.Inc()

	endpoints, err := r.targets(env)
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		r.log.Debug("event has no target endpoints",
			zap.String("org_id", env.Event.OrgID),
			zap.String("event_id", env.Event.ID.String()))
		return nil
	}
	metrics.EndpointsTargetedTotal.Add(float64(len(endpoints)))

	for _, group := range groupByType(endpoints) {
		adapter, ok := r.registry.Adapter(group.endpointType)
		if !ok {
			r.persistUnsupported(env, group.endpoints)
			continue
		}
		for _, history := range adapter.Deliver(ctx, env, group.endpoints) {
			r.persist(history)
		}
	}
	return nil
}

func (r *Router) targets(env *types.Envelope) ([]models.Endpoint, error) {
	// A reinjected envelope retries exactly the endpoint that failed.
	if env.EndpointID != nil {
		endpoint, err := r.endpoints.GetByID(env.Event.OrgID, *env.EndpointID)
		if err == gorm.ErrRecordNotFound {
			r.log.Warn("reinjected endpoint no longer exists, dropping",
				zap.String("org_id", env.Event.OrgID),
				zap.String("endpoint_id", env.EndpointID.String()))
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load reinjected endpoint: %w", err)
		}
		if !endpoint.Enabled {
			return nil, nil
		}
		return []models.Endpoint{*endpoint}, nil
	}

	if env.Event.EventType == types.AggregationEventType {
		endpoint, err := r.endpoints.GetOrCreateDefaultEmailSubscription(env.Event.AccountID, env.Event.OrgID)
		if err != nil {
			return nil, fmt.Errorf("default email subscription endpoint: %w", err)
		}
		return []models.Endpoint{*endpoint}, nil
	}

	endpoints, err := r.endpoints.TargetEndpoints(env.Event.OrgID, env.Event.Bundle, env.Event.Application, env.Event.EventType)
	if err != nil {
		return nil, fmt.Errorf("load target endpoints: %w", err)
	}
	return endpoints, nil
}

type endpointGroup struct {
	endpointType models.EndpointType
	endpoints    []models.Endpoint
}

// groupByType buckets endpoints by type while keeping the first-seen order of
// the types and the arrival order inside each bucket.
func groupByType(endpoints []models.Endpoint) []endpointGroup {
	var groups []endpointGroup
	index := map[models.EndpointType]int{}
	for _, e := range endpoints {
		i, ok := index[e.Type]
		if !ok {
			i = len(groups)
			index[e.Type] = i
			groups = append(groups, endpointGroup{endpointType: e.Type})
		}
		groups[i].endpoints = append(groups[i].endpoints, e)
	}
	return groups
}

// persist writes a history row. The delivery already happened at this point;
// losing the row is logged and accepted rather than failing the event, which
// would redeliver the notification.
func (r *Router) persist(history models.NotificationHistory) {
	if err := r.history.Create(&history); err != nil {
		r.log.Warn("history row lost after delivery",
			zap.String("history_id", history.ID.String()),
			zap.String("event_id", history.EventID.String()),
			zap.String("endpoint_id", history.EndpointID.String()),
			zap.Error(err))
	}
}

func (r *Router) persistUnsupported(env *types.Envelope, endpoints []models.Endpoint) {
	for i := range endpoints {
		endpoint := &endpoints[i]
		history := models.HistoryStub(env.Event.ID, env.Event.OrgID, endpoint)
		history.Status = models.StatusFailedInternal
		history.SetDetails(map[string]any{"error": fmt.Sprintf("no delivery adapter for endpoint type %q", endpoint.Type)})
		r.log.Error("unsupported endpoint type",
			zap.String("endpoint_id", endpoint.ID.String()),
			zap.String("endpoint_type", string(endpoint.Type)))
		r.persist(history)
	}
}
