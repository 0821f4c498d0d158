package processors

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/signalmesh/hermes/metrics"
	"github.com/signalmesh/hermes/pkg/kafka"
	"github.com/signalmesh/hermes/pkg/models"
	"github.com/signalmesh/hermes/pkg/recipients"
	"github.com/signalmesh/hermes/pkg/types"
)

// RecipientsResolver is the slice of the recipient resolver the email adapter
// needs.
type RecipientsResolver interface {
	RecipientUsers(ctx context.Context, accountID, orgID string, settings []recipients.RecipientSettings, subscribed map[string]bool) (map[string]recipients.User, error)
}

// SubscriptionSource reports the usernames opted in to instant emails for an
// event type.
type SubscriptionSource interface {
	SubscribedUsernames(orgID, bundle, application, eventType string) ([]string, error)
}

// ConnectorPublisher is the slice of the Kafka producer the connector-backed
// adapters need.
type ConnectorPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error
}

// EmailAdapter resolves the recipient user set and hands the dispatch to the
// email connector over Kafka. The history row stays pending until the
// connector reports the outcome on the return channel.
type EmailAdapter struct {
	resolver       RecipientsResolver
	subscriptions  SubscriptionSource
	producer       ConnectorPublisher
	connectorTopic string
	log            *zap.Logger
}

func NewEmailAdapter(resolver RecipientsResolver, subscriptions SubscriptionSource, producer ConnectorPublisher, connectorTopic string, log *zap.Logger) *EmailAdapter {
	return &EmailAdapter{
		resolver:       resolver,
		subscriptions:  subscriptions,
		producer:       producer,
		connectorTopic: connectorTopic,
		log:            log,
	}
}

func (a *EmailAdapter) EndpointType() models.EndpointType {
	return models.EndpointTypeEmailSubscription
}

func (a *EmailAdapter) Deliver(ctx context.Context, env *types.Envelope, endpoints []models.Endpoint) []models.NotificationHistory {
	histories := make([]models.NotificationHistory, 0, len(endpoints))
	for i := range endpoints {
		histories = append(histories, a.deliverOne(ctx, env, &endpoints[i]))
	}
	return histories
}

func (a *EmailAdapter) deliverOne(ctx context.Context, env *types.Envelope, endpoint *models.Endpoint) models.NotificationHistory {
	history := models.HistoryStub(env.Event.ID, env.Event.OrgID, endpoint)

	props, err := endpoint.EmailSubscriptionProperties()
	if err != nil {
		return a.internalFailure(history, endpoint, "decode properties", err)
	}

	settings := recipients.RecipientSettings{
		OnlyAdmins:            props.OnlyAdmins,
		IgnoreUserPreferences: props.IgnoreUserPreferences,
		GroupID:               props.GroupID,
		Users:                 props.Users,
	}

	var subscribed map[string]bool
	if !settings.IgnoreUserPreferences {
		usernames, err := a.subscriptions.SubscribedUsernames(env.Event.OrgID, env.Event.Bundle, env.Event.Application, env.Event.EventType)
		if err != nil {
			return a.internalFailure(history, endpoint, "load subscriptions", err)
		}
		subscribed = make(map[string]bool, len(usernames))
		for _, u := range usernames {
			subscribed[u] = true
		}
	}

	users, err := a.resolver.RecipientUsers(ctx, env.Event.AccountID, env.Event.OrgID, []recipients.RecipientSettings{settings}, subscribed)
	if err != nil {
		return a.internalFailure(history, endpoint, "resolve recipients", err)
	}

	// A redelivered envelope targets only the recipients that failed last
	// time, matched by username or address.
	if len(env.FailedRecipients) > 0 {
		failed := make(map[string]bool, len(env.FailedRecipients))
		for _, r := range env.FailedRecipients {
			failed[r] = true
		}
		for username, u := range users {
			if !failed[u.Username] && !failed[u.Email] {
				delete(users, username)
			}
		}
	}

	if len(users) == 0 {
		history.Status = models.StatusSuccess
		history.InvocationResult = true
		history.SetDetails(map[string]any{"recipients": 0})
		metrics.DeliveriesAttemptedTotal.WithLabelValues(string(models.EndpointTypeEmailSubscription), string(models.StatusSuccess)).Inc()
		a.log.Info("email skipped, no recipients",
			zap.String("org_id", env.Event.OrgID),
			zap.String("event_id", env.Event.ID.String()))
		return history
	}

	addresses := make([]string, 0, len(users))
	for _, u := range users {
		addresses = append(addresses, u.Email)
	}

	scoped := *env
	scoped.EndpointID = &endpoint.ID
	msg := types.ConnectorMessage{
		ID:         history.ID,
		OrgID:      env.Event.OrgID,
		Connector:  "email",
		Recipients: addresses,
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
	history.SetDetails(map[string]any{"recipients": len(addresses)})
	metrics.DeliveriesAttemptedTotal.WithLabelValues(string(models.EndpointTypeEmailSubscription), string(models.StatusSent)).Inc()
	a.log.Info("email dispatch handed to connector",
		zap.String("org_id", env.Event.OrgID),
		zap.String("event_id", env.Event.ID.String()),
		zap.Int("recipients", len(addresses)))
	return history
}

func (a *EmailAdapter) internalFailure(history models.NotificationHistory, endpoint *models.Endpoint, stage string, err error) models.NotificationHistory {
	history.Status = models.StatusFailedInternal
	history.SetDetails(map[string]any{"stage": stage, "error": err.Error()})
	metrics.DeliveriesAttemptedTotal.WithLabelValues(string(models.EndpointTypeEmailSubscription), string(models.StatusFailedInternal)).Inc()
	a.log.Error("email dispatch failed",
		zap.String("endpoint_id", endpoint.ID.String()),
		zap.String("org_id", endpoint.OrgID),
		zap.String("stage", stage),
		zap.Error(err))
	return history
}
