package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signalmesh/hermes/metrics"
	"github.com/signalmesh/hermes/pkg/config"
	"github.com/signalmesh/hermes/pkg/kafka"
	"github.com/signalmesh/hermes/pkg/models"
	"github.com/signalmesh/hermes/pkg/types"
)

// CommandSource is the slice of the aggregation repository the job needs.
type CommandSource interface {
	CreateMissingDefaultConfigs(defaultTime string) error
	PendingCommands(boundary time.Time) ([]models.AggregationCommand, error)
	PendingCommandsScan(boundary time.Time) ([]models.AggregationCommand, error)
	UpdateLastRun(orgIDs []string, boundary time.Time) error
}

// Publisher is the slice of the Kafka producer the job needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error
}

// DigestEntry is one (bundle, application) window inside a tenant's
// consolidated digest event.
type DigestEntry struct {
	Bundle      string    `json:"bundle"`
	Application string    `json:"application"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// DigestPayload is the payload of the aggregation event fed back into the
// intake stream, one per tenant per run.
type DigestPayload struct {
	Aggregations []DigestEntry `json:"aggregations"`
}

// Job computes the pending digest work at each schedule boundary and feeds
// one consolidated aggregation event per tenant back into the intake stream.
type Job struct {
	source      CommandSource
	producer    Publisher
	intakeTopic string
	cfg         config.AggregatorConfig
	log         *zap.Logger
	now         func() time.Time
}

func NewJob(source CommandSource, producer Publisher, intakeTopic string, cfg config.AggregatorConfig, log *zap.Logger) *Job {
	return &Job{
		source:      source,
		producer:    producer,
		intakeTopic: intakeTopic,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// ComputeScheduleExecutionTime snaps a wall-clock instant down to the
// quarter-hour boundary it belongs to. Cron drift of a few seconds or
// minutes must still land on the intended boundary.
func ComputeScheduleExecutionTime(now time.Time) time.Time {
	now = now.Truncate(time.Minute)
	return now.Add(-time.Duration(now.Minute()%15) * time.Minute)
}

// Run processes one schedule boundary. Tenants whose digest event could not
// be published keep their previous last-run mark and are retried at the next
// matching boundary.
func (j *Job) Run(ctx context.Context) error {
	start := j.now()
	defer func() {
		metrics.AggregatorJobDuration.Set(time.Since(start).Seconds())
	}()

	boundary := ComputeScheduleExecutionTime(start)
	if err := j.source.CreateMissingDefaultConfigs(j.cfg.DefaultDigestTime); err != nil {
		return fmt.Errorf("create default digest configs: %w", err)
	}

	commands, err := j.source.PendingCommands(boundary)
	if err != nil {
		return fmt.Errorf("collect pending digests: %w", err)
	}
	if j.cfg.CompareLegacyScan {
		j.compareLegacyScan(boundary, commands)
	}
	if len(commands) == 0 {
		metrics.AggregatorPairsProcessed.Set(0)
		metrics.AggregatorLastSuccess.SetToCurrentTime()
		return nil
	}

	perOrg := map[string][]DigestEntry{}
	var orgOrder []string
	for _, cmd := range commands {
		if _, seen := perOrg[cmd.OrgID]; !seen {
			orgOrder = append(orgOrder, cmd.OrgID)
		}
		perOrg[cmd.OrgID] = append(perOrg[cmd.OrgID], DigestEntry{
			Bundle:      cmd.Bundle,
			Application: cmd.Application,
			Start:       cmd.Start,
			End:         cmd.End,
		})
	}

	processed := make([]string, 0, len(orgOrder))
	pairs := 0
	for _, orgID := range orgOrder {
		entries := perOrg[orgID]
		if err := j.publishDigest(ctx, orgID, boundary, entries); err != nil {
			j.log.Error("digest event publish failed, tenant will be retried",
				zap.String("org_id", orgID),
				zap.Error(err))
			continue
		}
		processed = append(processed, orgID)
		pairs += len(entries)
	}

	if err := j.source.UpdateLastRun(processed, boundary); err != nil {
		return fmt.Errorf("advance last run: %w", err)
	}

	metrics.AggregatorPairsProcessed.Set(float64(pairs))
	metrics.AggregatorLastSuccess.SetToCurrentTime()
	j.log.Info("aggregation run complete",
		zap.Time("boundary", boundary),
		zap.Int("tenants", len(processed)),
		zap.Int("pairs", pairs))
	return nil
}

func (j *Job) publishDigest(ctx context.Context, orgID string, boundary time.Time, entries []DigestEntry) error {
	payload, err := json.Marshal(DigestPayload{Aggregations: entries})
	if err != nil {
		return err
	}
	event := types.Event{
		ID:        uuid.New(),
		OrgID:     orgID,
		EventType: types.AggregationEventType,
		Timestamp: boundary,
		Payload:   payload,
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return j.producer.Publish(ctx, j.intakeTopic, []byte(orgID), raw)
}

// compareLegacyScan runs the retired scan-based collection next to the
// config-driven one and logs any disagreement. Diagnostic only; the
// config-driven result always wins.
func (j *Job) compareLegacyScan(boundary time.Time, commands []models.AggregationCommand) {
	legacy, err := j.source.PendingCommandsScan(boundary)
	if err != nil {
		j.log.Warn("legacy scan comparison failed", zap.Error(err))
		return
	}
	current := make(map[string]bool, len(commands))
	for _, cmd := range commands {
		current[cmd.OrgID+"|"+cmd.Bundle+"|"+cmd.Application] = true
	}
	for _, cmd := range legacy {
		key := cmd.OrgID + "|" + cmd.Bundle + "|" + cmd.Application
		if !current[key] {
			j.log.Warn("legacy scan found a tuple the config-driven collection missed",
				zap.String("org_id", cmd.OrgID),
				zap.String("bundle", cmd.Bundle),
				zap.String("application", cmd.Application))
		}
	}
}
