package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/signalmesh/hermes/pkg/config"
	"github.com/signalmesh/hermes/pkg/kafka"
	"github.com/signalmesh/hermes/pkg/models"
	"github.com/signalmesh/hermes/pkg/types"
)

func TestComputeScheduleExecutionTime(t *testing.T) {
	day := func(hhmm string) time.Time {
		parsed, err := time.Parse("2006-01-02 15:04:05", "2026-09-01 "+hhmm)
		if err != nil {
			t.Fatal(err)
		}
		return parsed.UTC()
	}

	cases := []struct {
		in   string
		want string
	}{
		{"05:02:00", "05:00:00"},
		{"05:14:59", "05:00:00"},
		{"05:15:00", "05:15:00"},
		{"05:29:30", "05:15:00"},
		{"05:44:01", "05:30:00"},
		{"05:59:59", "05:45:00"},
		{"00:00:00", "00:00:00"},
	}
	for _, c := range cases {
		got := ComputeScheduleExecutionTime(day(c.in))
		if want := day(c.want); !got.Equal(want) {
			t.Errorf("ComputeScheduleExecutionTime(%s) = %s, want %s", c.in, got.Format("15:04:05"), c.want)
		}
	}
}

// fakeCommandSource mimics the last-run guard: commands are pending only
// while the tenant's last run is behind the boundary.
type fakeCommandSource struct {
	commands    []models.AggregationCommand
	lastRun     map[string]time.Time
	pendingErr  error
	legacy      []models.AggregationCommand
	legacyCalls int
}

func (f *fakeCommandSource) CreateMissingDefaultConfigs(string) error { return nil }

func (f *fakeCommandSource) PendingCommands(boundary time.Time) ([]models.AggregationCommand, error) {
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	var out []models.AggregationCommand
	for _, cmd := range f.commands {
		if f.lastRun[cmd.OrgID].Before(boundary) {
			out = append(out, cmd)
		}
	}
	return out, nil
}

func (f *fakeCommandSource) PendingCommandsScan(time.Time) ([]models.AggregationCommand, error) {
	f.legacyCalls++
	return f.legacy, nil
}

func (f *fakeCommandSource) UpdateLastRun(orgIDs []string, boundary time.Time) error {
	if f.lastRun == nil {
		f.lastRun = map[string]time.Time{}
	}
	for _, id := range orgIDs {
		f.lastRun[id] = boundary
	}
	return nil
}

type fakeDigestPublisher struct {
	published [][]byte
	failOrg   string
}

func (p *fakeDigestPublisher) Publish(_ context.Context, _ string, key, value []byte, _ ...kafka.Header) error {
	if p.failOrg != "" && string(key) == p.failOrg {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, value)
	return nil
}

func jobConfig() config.AggregatorConfig {
	return config.AggregatorConfig{
		Schedule:          "0,15,30,45 * * * *",
		DefaultDigestTime: "00:00",
	}
}

func newTestJob(source *fakeCommandSource, publisher *fakeDigestPublisher, at time.Time) *Job {
	job := NewJob(source, publisher, "hermes.ingress", jobConfig(), zap.NewNop())
	job.now = func() time.Time { return at }
	return job
}

func TestJobPublishesConsolidatedDigestPerTenant(t *testing.T) {
	boundary := time.Date(2026, 9, 1, 5, 0, 0, 0, time.UTC)
	source := &fakeCommandSource{
		commands: []models.AggregationCommand{
			{OrgID: "org-1", Bundle: "rhel", Application: "policies"},
			{OrgID: "org-1", Bundle: "rhel", Application: "advisor"},
			{OrgID: "org-2", Bundle: "rhel", Application: "policies"},
		},
		lastRun: map[string]time.Time{},
	}
	publisher := &fakeDigestPublisher{}
	job := newTestJob(source, publisher, boundary.Add(2*time.Minute))

	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(publisher.published) != 2 {
		t.Fatalf("published %d events, want 2 (one per tenant)", len(publisher.published))
	}

	var event types.Event
	if err := json.Unmarshal(publisher.published[0], &event); err != nil {
		t.Fatal(err)
	}
	if event.EventType != types.AggregationEventType {
		t.Errorf("event type = %s, want %s", event.EventType, types.AggregationEventType)
	}
	if event.OrgID != "org-1" {
		t.Errorf("org = %s, want org-1", event.OrgID)
	}
	var payload DigestPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Aggregations) != 2 {
		t.Errorf("org-1 digest has %d entries, want 2", len(payload.Aggregations))
	}

	if got := source.lastRun["org-1"]; !got.Equal(boundary) {
		t.Errorf("org-1 last run = %s, want %s", got, boundary)
	}
}

func TestJobProcessesBoundaryAtMostOnce(t *testing.T) {
	boundary := time.Date(2026, 9, 1, 5, 0, 0, 0, time.UTC)
	source := &fakeCommandSource{
		commands: []models.AggregationCommand{{OrgID: "org-1", Bundle: "rhel", Application: "policies"}},
		lastRun:  map[string]time.Time{},
	}
	publisher := &fakeDigestPublisher{}

	// The job fires twice inside the same quarter hour; the second pass must
	// find nothing pending.
	if err := newTestJob(source, publisher, boundary.Add(time.Minute)).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := newTestJob(source, publisher, boundary.Add(10*time.Minute)).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("published %d events across two runs, want 1", len(publisher.published))
	}
}

func TestJobPublishFailureKeepsTenantPending(t *testing.T) {
	boundary := time.Date(2026, 9, 1, 5, 0, 0, 0, time.UTC)
	source := &fakeCommandSource{
		commands: []models.AggregationCommand{
			{OrgID: "org-1", Bundle: "rhel", Application: "policies"},
			{OrgID: "org-2", Bundle: "rhel", Application: "policies"},
		},
		lastRun: map[string]time.Time{},
	}
	publisher := &fakeDigestPublisher{failOrg: "org-1"}
	job := newTestJob(source, publisher, boundary)

	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, advanced := source.lastRun["org-1"]; advanced {
		t.Error("a tenant whose publish failed must keep its last-run mark")
	}
	if got := source.lastRun["org-2"]; !got.Equal(boundary) {
		t.Errorf("org-2 last run = %s, want %s", got, boundary)
	}
}

func TestJobCollectionFailurePropagates(t *testing.T) {
	source := &fakeCommandSource{pendingErr: errors.New("db down")}
	job := newTestJob(source, &fakeDigestPublisher{}, time.Now().UTC())

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("a failed collection must surface as a run error")
	}
}

func TestJobLegacyScanComparisonIsDiagnosticOnly(t *testing.T) {
	boundary := time.Date(2026, 9, 1, 5, 0, 0, 0, time.UTC)
	source := &fakeCommandSource{
		commands: []models.AggregationCommand{{OrgID: "org-1", Bundle: "rhel", Application: "policies"}},
		lastRun:  map[string]time.Time{},
		legacy: []models.AggregationCommand{
			{OrgID: "org-1", Bundle: "rhel", Application: "policies"},
			{OrgID: "org-3", Bundle: "rhel", Application: "advisor"},
		},
	}
	publisher := &fakeDigestPublisher{}
	job := newTestJob(source, publisher, boundary)
	job.cfg.CompareLegacyScan = true

	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if source.legacyCalls != 1 {
		t.Fatalf("legacy scan ran %d times, want 1", source.legacyCalls)
	}
	// The disagreement is logged, not acted on.
	if len(publisher.published) != 1 {
		t.Fatalf("published %d events, want 1 from the config-driven collection", len(publisher.published))
	}
}
