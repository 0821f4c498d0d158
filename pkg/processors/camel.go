package processors

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/signalmesh/hermes/metrics"
	"github.com/signalmesh/hermes/pkg/models"
	"github.com/signalmesh/hermes/pkg/types"
)

var errMissingSubType = errors.New("camel endpoint has no sub type")

// ChatAdapter hands chat integrations (slack, teams, google chat) to their
// connector over Kafka. The sub type selects the connector; the outcome comes
// back on the return channel keyed by the history id.
type ChatAdapter struct {
	producer       ConnectorPublisher
	connectorTopic string
	log            *zap.Logger
}

func NewChatAdapter(producer ConnectorPublisher, connectorTopic string, log *zap.Logger) *ChatAdapter {
	return &ChatAdapter{
		producer:       producer,
		connectorTopic: connectorTopic,
		log:            log,
	}
}

func (a *ChatAdapter) EndpointType() models.EndpointType {
	return models.EndpointTypeCamel
}

func (a *ChatAdapter) Deliver(ctx context.Context, env *types.Envelope, endpoints []models.Endpoint) []models.NotificationHistory {
	histories := make([]models.NotificationHistory, 0, len(endpoints))
	for i := range endpoints {
		histories = append(histories, a.deliverOne(ctx, env, &endpoints[i]))
	}
	return histories
}

func (a *ChatAdapter) deliverOne(ctx context.Context, env *types.Envelope, endpoint *models.Endpoint) models.NotificationHistory {
	history := models.HistoryStub(env.Event.ID, env.Event.OrgID, endpoint)

	props, err := endpoint.CamelProperties()
	if err != nil {
		return a.internalFailure(history, endpoint, "decode properties", err)
	}
	if err := ValidateTargetURL(props.URL); err != nil {
		return a.internalFailure(history, endpoint, "validate target url", err)
	}
	if endpoint.SubType == "" {
		return a.internalFailure(history, endpoint, "select connector", errMissingSubType)
	}

	scoped := *env
	scoped.EndpointID = &endpoint.ID
	msg := types.ConnectorMessage{
		ID:         history.ID,
		OrgID:      env.Event.OrgID,
		Connector:  endpoint.SubType,
		TargetURL:  props.URL,
		TrustAll:   props.DisableSSLVerification,
		AuthSecret: props.SecretToken,
		Payload:    env.Event.Payload,
		Envelope:   scoped,
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return a.internalFailure(history, endpoint, "marshal connector message", err)
	}
	if err := a.producer.Publish(ctx, a.connectorTopic, []byte(env.Event.OrgID), raw); err != nil {
		return a.internalFailure(history, endpoint, "publish connector message", err)
	}

	history.Status = models.StatusSent
	metrics.DeliveriesAttemptedTotal.WithLabelValues(string(models.EndpointTypeCamel), string(models.StatusSent)).Inc()
	a.log.Info("chat dispatch handed to connector",
		zap.String("org_id", env.Event.OrgID),
		zap.String("event_id", env.Event.ID.String()),
		zap.String("connector", endpoint.SubType))
	return history
}

func (a *ChatAdapter) internalFailure(history models.NotificationHistory, endpoint *models.Endpoint, stage string, err error) models.NotificationHistory {
	history.Status = models.StatusFailedInternal
	history.SetDetails(map[string]any{"stage": stage, "error": err.Error()})
	metrics.DeliveriesAttemptedTotal.WithLabelValues(string(models.EndpointTypeCamel), string(models.StatusFailedInternal)).Inc()
	a.log.Error("chat dispatch failed",
		zap.String("endpoint_id", endpoint.ID.String()),
		zap.String("org_id", endpoint.OrgID),
		zap.String("stage", stage),
		zap.Error(err))
	return history
}
