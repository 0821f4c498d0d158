package processors

import (
	"bytes"
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/signalmesh/hermes/metrics"
	"github.com/signalmesh/hermes/pkg/models"
	"github.com/signalmesh/hermes/pkg/redelivery"
	"github.com/signalmesh/hermes/pkg/types"
)

const webhookTokenHeader = "X-Hermes-Token"

// WebhookAdapter calls webhook endpoints directly over HTTP. Transport and
// HTTP failures are classified; retryable ones are requeued through the
// reinjector until the attempt cap is reached.
type WebhookAdapter struct {
	client         *http.Client
	insecureClient *http.Client
	reinjector     *redelivery.Reinjector
	log            *zap.Logger
}

func NewWebhookAdapter(timeout time.Duration, reinjector *redelivery.Reinjector, log *zap.Logger) *WebhookAdapter {
	insecureTransport := http.DefaultTransport.(*http.Transport).Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return &WebhookAdapter{
		client:         &http.Client{Timeout: timeout},
		insecureClient: &http.Client{Timeout: timeout, Transport: insecureTransport},
		reinjector:     reinjector,
		log:            log,
	}
}

func (a *WebhookAdapter) EndpointType() models.EndpointType {
	return models.EndpointTypeWebhook
}

func (a *WebhookAdapter) Deliver(ctx context.Context, env *types.Envelope, endpoints []models.Endpoint) []models.NotificationHistory {
	histories := make([]models.NotificationHistory, 0, len(endpoints))
	for i := range endpoints {
		histories = append(histories, a.deliverOne(ctx, env, &endpoints[i]))
	}
	return histories
}

func (a *WebhookAdapter) deliverOne(ctx context.Context, env *types.Envelope, endpoint *models.Endpoint) models.NotificationHistory {
	history := models.HistoryStub(env.Event.ID, env.Event.OrgID, endpoint)

	props, err := endpoint.WebhookProperties()
	if err != nil {
		return a.configFailure(history, endpoint, err)
	}
	if err := ValidateTargetURL(props.URL); err != nil {
		return a.configFailure(history, endpoint, err)
	}

	timer := prometheus.NewTimer(metrics.DeliveryDuration.WithLabelValues(string(models.EndpointTypeWebhook)))
	resp, err := a.call(ctx, props, env.Event.Payload)
	timer.ObserveDuration()

	if err != nil {
		kind := redelivery.ClassifyError(err)
		return a.failure(ctx, env, endpoint, history, kind, 0, err.Error())
	}
	defer resp.Body.Close()

	kind := redelivery.ClassifyStatus(resp.StatusCode)
	if kind == "" {
		history.Status = models.StatusSuccess
		history.InvocationResult = true
		history.SetDetails(map[string]any{"status_code": resp.StatusCode})
		metrics.DeliveriesAttemptedTotal.WithLabelValues(string(models.EndpointTypeWebhook), string(models.StatusSuccess)).Inc()
		return history
	}
	return a.failure(ctx, env, endpoint, history, kind, resp.StatusCode, resp.Status)
}

func (a *WebhookAdapter) call(ctx context.Context, props *models.WebhookProperties, payload []byte) (*http.Response, error) {
	method := props.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, props.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if props.SecretToken != "" {
		req.Header.Set(webhookTokenHeader, props.SecretToken)
	}
	if props.BasicAuthUser != "" {
		req.SetBasicAuth(props.BasicAuthUser, props.BasicAuthPassword)
	}
	if props.DisableSSLVerification {
		return a.insecureClient.Do(req)
	}
	return a.client.Do(req)
}

// configFailure finalizes an attempt that never left the engine because the
// endpoint itself is misconfigured. These never retry.
func (a *WebhookAdapter) configFailure(history models.NotificationHistory, endpoint *models.Endpoint, err error) models.NotificationHistory {
	history.Status = models.StatusFailedInternal
	history.SetDetails(map[string]any{"error": err.Error()})
	metrics.DeliveriesAttemptedTotal.WithLabelValues(string(models.EndpointTypeWebhook), string(models.StatusFailedInternal)).Inc()
	a.log.Warn("webhook endpoint misconfigured",
		zap.String("endpoint_id", endpoint.ID.String()),
		zap.String("org_id", endpoint.OrgID),
		zap.Error(err))
	return history
}

func (a *WebhookAdapter) failure(ctx context.Context, env *types.Envelope, endpoint *models.Endpoint, history models.NotificationHistory, kind redelivery.FailureKind, statusCode int, message string) models.NotificationHistory {
	details := map[string]any{
		"failure_kind": string(kind),
		"error":        message,
	}
	if statusCode > 0 {
		details["status_code"] = statusCode
	}

	requeued := false
	if redelivery.ShouldRetry(&kind, env.ReinjectionCount, a.reinjector.MaxAttempts()) {
		scoped := *env
		scoped.EndpointID = &endpoint.ID
		ok, err := a.reinjector.Reinject(ctx, scoped, nil)
		if err != nil {
			a.log.Error("webhook reinjection failed",
				zap.String("endpoint_id", endpoint.ID.String()),
				zap.Error(err))
		}
		requeued = ok
	}
	details["reinjected"] = requeued

	history.Status = models.StatusFailedExternal
	history.SetDetails(details)
	metrics.DeliveriesAttemptedTotal.WithLabelValues(string(models.EndpointTypeWebhook), string(models.StatusFailedExternal)).Inc()
	a.log.Warn("webhook delivery failed",
		zap.String("endpoint_id", endpoint.ID.String()),
		zap.String("org_id", endpoint.OrgID),
		zap.String("failure_kind", string(kind)),
		zap.Int("status_code", statusCode),
		zap.Bool("reinjected", requeued))
	return history
}
