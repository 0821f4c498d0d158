package redelivery

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signalmesh/hermes/pkg/kafka"
	"github.com/signalmesh/hermes/pkg/types"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   FailureKind
	}{
		{200, ""},
		{204, ""},
		{301, KindHTTP3xx},
		{404, KindHTTP4xx},
		{400, KindHTTP4xx},
		{429, KindHTTP5xx},
		{500, KindHTTP5xx},
		{503, KindHTTP5xx},
	}
	for _, c := range cases {
		if got := ClassifyStatus(c.status); got != c.want {
			t.Errorf("ClassifyStatus(%d) = %q, want %q", c.status, got, c.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	if got := ClassifyError(timeoutError{}); got != KindSocketTimeout {
		t.Errorf("timeout classified as %q", got)
	}
	if got := ClassifyError(&net.DNSError{Err: "no such host", Name: "nope.example.com", IsNotFound: true}); got != KindUnknownHost {
		t.Errorf("dns error classified as %q", got)
	}
	if got := ClassifyError(errors.New("something odd")); got != KindUnknown {
		t.Errorf("unrecognized error classified as %q", got)
	}
	// os.ErrDeadlineExceeded reports Timeout() true, so the wrapping dial
	// error counts as a socket timeout.
	if got := ClassifyError(&net.OpError{Op: "dial", Err: os.ErrDeadlineExceeded}); got != KindSocketTimeout {
		t.Errorf("deadline-exceeded dial error classified as %q", got)
	}
	if got := ClassifyError(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}); got != KindUnknown {
		// A dial error that is not a timeout stays unknown.
		t.Errorf("connection-refused dial error classified as %q", got)
	}
}

func TestRetryability(t *testing.T) {
	retryable := []FailureKind{KindSocketTimeout, KindSSLHandshake, KindUnknownHost, KindUnsupportedTLS, KindHTTP5xx}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	terminal := []FailureKind{KindHTTP3xx, KindHTTP4xx, KindUnknown}
	for _, k := range terminal {
		if k.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	k503 := ClassifyStatus(503)
	if !ShouldRetry(&k503, 0, 3) {
		t.Error("503 with attempts left should retry")
	}
	k404 := ClassifyStatus(404)
	if ShouldRetry(&k404, 0, 3) {
		t.Error("404 should never retry")
	}
	if ShouldRetry(&k503, 3, 3) {
		t.Error("exhausted attempts should not retry even for a retryable kind")
	}
	if ShouldRetry(nil, 0, 3) {
		t.Error("absent outcome should not retry")
	}
}

type capturedPublish struct {
	topic   string
	value   []byte
	headers []kafka.Header
}

type fakePublisher struct {
	published []capturedPublish
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, capturedPublish{topic: topic, value: value, headers: headers})
	return nil
}

func testEnvelope(count int) types.Envelope {
	return types.Envelope{
		Event: types.Event{
			ID:          uuid.New(),
			OrgID:       "org-1",
			Bundle:      "rhel",
			Application: "policies",
			EventType:   "policy-triggered",
			Timestamp:   time.Now().UTC(),
		},
		ReinjectionCount: count,
	}
}

func TestReinjectIncrementsCounter(t *testing.T) {
	pub := &fakePublisher{}
	r := NewReinjector(pub, "hermes.ingress", 3, zap.NewNop())

	requeued, err := r.Reinject(context.Background(), testEnvelope(0), nil)
	if err != nil || !requeued {
		t.Fatalf("Reinject = (%v, %v), want (true, nil)", requeued, err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.published))
	}

	var env types.Envelope
	if err := json.Unmarshal(pub.published[0].value, &env); err != nil {
		t.Fatal(err)
	}
	if env.ReinjectionCount != 1 {
		t.Fatalf("reinjection count = %d, want 1", env.ReinjectionCount)
	}
	if got := kafka.HeaderValue(kafka.Message{Headers: pub.published[0].headers}, ReinjectionCountHeader); got != "1" {
		t.Fatalf("counter header = %q, want \"1\"", got)
	}
}

func TestReinjectCarriesFailedRecipientSubset(t *testing.T) {
	pub := &fakePublisher{}
	r := NewReinjector(pub, "hermes.ingress", 3, zap.NewNop())

	_, err := r.Reinject(context.Background(), testEnvelope(1), []string{"user2"})
	if err != nil {
		t.Fatal(err)
	}
	var env types.Envelope
	if err := json.Unmarshal(pub.published[0].value, &env); err != nil {
		t.Fatal(err)
	}
	if len(env.FailedRecipients) != 1 || env.FailedRecipients[0] != "user2" {
		t.Fatalf("failed recipients = %v, want [user2]", env.FailedRecipients)
	}
}

func TestReinjectStopsAtCap(t *testing.T) {
	pub := &fakePublisher{}
	r := NewReinjector(pub, "hermes.ingress", 3, zap.NewNop())

	requeued, err := r.Reinject(context.Background(), testEnvelope(3), nil)
	if err != nil {
		t.Fatal(err)
	}
	if requeued {
		t.Fatal("envelope at the cap must not be requeued")
	}
	if len(pub.published) != 0 {
		t.Fatal("nothing should be published at the cap")
	}
}
