package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/google/uuid"

	"github.com/signalmesh/hermes/pkg/models"
	"github.com/signalmesh/hermes/pkg/processors"
	"github.com/signalmesh/hermes/pkg/types"
)

type fakeEndpointSource struct {
	targets     []models.Endpoint
	byID        map[uuid.UUID]*models.Endpoint
	defaultMail *models.Endpoint
	err         error

	targetCalls  int
	defaultCalls int
}

func (f *fakeEndpointSource) TargetEndpoints(_, _, _, _ string) ([]models.Endpoint, error) {
	f.targetCalls++
	return f.targets, f.err
}

func (f *fakeEndpointSource) GetByID(_ string, id uuid.UUID) (*models.Endpoint, error) {
	if e, ok := f.byID[id]; ok {
		return e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeEndpointSource) GetOrCreateDefaultEmailSubscription(_, _ string) (*models.Endpoint, error) {
	f.defaultCalls++
	if f.defaultMail == nil {
		return nil, errors.New("no default endpoint")
	}
	return f.defaultMail, nil
}

type fakeHistoryWriter struct {
	rows []models.NotificationHistory
	err  error
}

func (f *fakeHistoryWriter) Create(h *models.NotificationHistory) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, *h)
	return nil
}

// recordingAdapter marks every endpoint delivered with a fixed status.
type recordingAdapter struct {
	endpointType models.EndpointType
	status       models.NotificationStatus
	delivered    [][]models.Endpoint
}

func (a *recordingAdapter) EndpointType() models.EndpointType { return a.endpointType }

func (a *recordingAdapter) Deliver(_ context.Context, env *types.Envelope, endpoints []models.Endpoint) []models.NotificationHistory {
	a.delivered = append(a.delivered, endpoints)
	histories := make([]models.NotificationHistory, 0, len(endpoints))
	for i := range endpoints {
		h := models.HistoryStub(env.Event.ID, env.Event.OrgID, &endpoints[i])
		h.Status = a.status
		histories = append(histories, h)
	}
	return histories
}

func routerEnvelope() *types.Envelope {
	return &types.Envelope{
		Event: types.Event{
			ID:          uuid.New(),
			OrgID:       "org-1",
			Bundle:      "rhel",
			Application: "policies",
			EventType:   "policy-triggered",
			Timestamp:   time.Now().UTC(),
			Payload:     json.RawMessage(`{}`),
		},
	}
}

func endpointOfType(t models.EndpointType, subType string) models.Endpoint {
	return models.Endpoint{
		ID:      uuid.New(),
		OrgID:   "org-1",
		Type:    t,
		SubType: subType,
		Enabled: true,
	}
}

func TestRouterFansOutByType(t *testing.T) {
	webhook1 := endpointOfType(models.EndpointTypeWebhook, "")
	email := endpointOfType(models.EndpointTypeEmailSubscription, "")
	webhook2 := endpointOfType(models.EndpointTypeWebhook, "")

	source := &fakeEndpointSource{targets: []models.Endpoint{webhook1, email, webhook2}}
	history := &fakeHistoryWriter{}
	webhookAdapter := &recordingAdapter{endpointType: models.EndpointTypeWebhook, status: models.StatusSuccess}
	emailAdapter := &recordingAdapter{endpointType: models.EndpointTypeEmailSubscription, status: models.StatusSent}
	router := NewRouter(source, history, processors.NewRegistry(webhookAdapter, emailAdapter), zap.NewNop())

	if err := router.Process(context.Background(), routerEnvelope()); err != nil {
		t.Fatal(err)
	}

	if len(webhookAdapter.delivered) != 1 || len(webhookAdapter.delivered[0]) != 2 {
		t.Fatalf("webhook adapter got %v, want one batch of two", webhookAdapter.delivered)
	}
	if webhookAdapter.delivered[0][0].ID != webhook1.ID || webhookAdapter.delivered[0][1].ID != webhook2.ID {
		t.Error("webhook batch must keep arrival order")
	}
	if len(emailAdapter.delivered) != 1 || len(emailAdapter.delivered[0]) != 1 {
		t.Fatalf("email adapter got %v, want one batch of one", emailAdapter.delivered)
	}
	if len(history.rows) != 3 {
		t.Fatalf("got %d history rows, want 3", len(history.rows))
	}
}

func TestRouterUnsupportedType(t *testing.T) {
	unknown := endpointOfType(models.EndpointType("sms"), "")
	source := &fakeEndpointSource{targets: []models.Endpoint{unknown}}
	history := &fakeHistoryWriter{}
	router := NewRouter(source, history, processors.NewRegistry(), zap.NewNop())

	if err := router.Process(context.Background(), routerEnvelope()); err != nil {
		t.Fatal(err)
	}
	if len(history.rows) != 1 {
		t.Fatalf("got %d history rows, want 1", len(history.rows))
	}
	if history.rows[0].Status != models.StatusFailedInternal {
		t.Errorf("status = %s, want %s", history.rows[0].Status, models.StatusFailedInternal)
	}
}

func TestRouterAggregationEventUsesDefaultEmailEndpoint(t *testing.T) {
	mail := endpointOfType(models.EndpointTypeEmailSubscription, "")
	source := &fakeEndpointSource{defaultMail: &mail}
	history := &fakeHistoryWriter{}
	emailAdapter := &recordingAdapter{endpointType: models.EndpointTypeEmailSubscription, status: models.StatusSent}
	router := NewRouter(source, history, processors.NewRegistry(emailAdapter), zap.NewNop())

	env := routerEnvelope()
	env.Event.EventType = types.AggregationEventType
	if err := router.Process(context.Background(), env); err != nil {
		t.Fatal(err)
	}

	if source.targetCalls != 0 {
		t.Error("aggregation events must not consult the endpoint link table")
	}
	if source.defaultCalls != 1 {
		t.Fatalf("default endpoint looked up %d times, want 1", source.defaultCalls)
	}
	if len(emailAdapter.delivered) != 1 || emailAdapter.delivered[0][0].ID != mail.ID {
		t.Error("aggregation event must go to the default email endpoint")
	}
}

func TestRouterReinjectedEnvelopeTargetsSingleEndpoint(t *testing.T) {
	webhook := endpointOfType(models.EndpointTypeWebhook, "")
	other := endpointOfType(models.EndpointTypeWebhook, "")
	source := &fakeEndpointSource{
		targets: []models.Endpoint{webhook, other},
		byID:    map[uuid.UUID]*models.Endpoint{webhook.ID: &webhook},
	}
	history := &fakeHistoryWriter{}
	adapter := &recordingAdapter{endpointType: models.EndpointTypeWebhook, status: models.StatusSuccess}
	router := NewRouter(source, history, processors.NewRegistry(adapter), zap.NewNop())

	env := routerEnvelope()
	env.ReinjectionCount = 1
	env.EndpointID = &webhook.ID
	if err := router.Process(context.Background(), env); err != nil {
		t.Fatal(err)
	}

	if source.targetCalls != 0 {
		t.Error("reinjected envelopes must not fan out again")
	}
	if len(adapter.delivered) != 1 || len(adapter.delivered[0]) != 1 || adapter.delivered[0][0].ID != webhook.ID {
		t.Errorf("delivered = %v, want only the reinjected endpoint", adapter.delivered)
	}
}

func TestRouterReinjectedEndpointGone(t *testing.T) {
	source := &fakeEndpointSource{byID: map[uuid.UUID]*models.Endpoint{}}
	history := &fakeHistoryWriter{}
	adapter := &recordingAdapter{endpointType: models.EndpointTypeWebhook, status: models.StatusSuccess}
	router := NewRouter(source, history, processors.NewRegistry(adapter), zap.NewNop())

	env := routerEnvelope()
	id := uuid.New()
	env.EndpointID = &id
	if err := router.Process(context.Background(), env); err != nil {
		t.Fatal(err)
	}
	if len(adapter.delivered) != 0 || len(history.rows) != 0 {
		t.Error("a vanished endpoint must be dropped silently")
	}
}

func TestRouterHistoryWriteFailureDoesNotFailEvent(t *testing.T) {
	webhook := endpointOfType(models.EndpointTypeWebhook, "")
	source := &fakeEndpointSource{targets: []models.Endpoint{webhook}}
	history := &fakeHistoryWriter{err: errors.New("db down")}
	adapter := &recordingAdapter{endpointType: models.EndpointTypeWebhook, status: models.StatusSuccess}
	router := NewRouter(source, history, processors.NewRegistry(adapter), zap.NewNop())

	if err := router.Process(context.Background(), routerEnvelope()); err != nil {
		t.Fatal("a lost history row must not redeliver the notification")
	}
}
