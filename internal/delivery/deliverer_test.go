package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/job"
)

func makeNotification(channel string, data map[string]string) *job.Notification {
	return job.New("user-1", job.TypeGeneric, time.Now().UTC(), "UTC", job.Payload{
		Channel: channel,
		Title:   "Kickoff soon",
		Body:    "Arsenal vs Spurs starts in 30 minutes",
		Data:    data,
	})
}

// stubDeliverer claims a single channel and records calls.
type stubDeliverer struct {
	channel string
	calls   int
	err     error
}

func (s *stubDeliverer) Deliver(ctx context.Context, n *job.Notification) error {
	s.calls++
	return s.err
}

func (s *stubDeliverer) SupportsChannel(channel string) bool {
	return channel == s.channel
}

func TestMultiDelivererRouting(t *testing.T) {
	logger := zap.NewNop()

	push := &stubDeliverer{channel: job.ChannelPush}
	email := &stubDeliverer{channel: job.ChannelEmail}
	multi := NewMultiDeliverer(logger, push, email)

	tests := []struct {
		name    string
		channel string
		should  bool
	}{
		{"push_supported", job.ChannelPush, true},
		{"email_supported", job.ChannelEmail, true},
		{"queue_not_supported", job.ChannelQueue, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			supports := multi.SupportsChannel(tt.channel)
			if supports != tt.should {
				t.Errorf("SupportsChannel(%s) = %v, want %v", tt.channel, supports, tt.should)
			}
		})
	}

	if err := multi.Deliver(context.Background(), makeNotification(job.ChannelPush, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if push.calls != 1 || email.calls != 0 {
		t.Errorf("expected push transport to handle the job, push=%d email=%d", push.calls, email.calls)
	}
}

func TestMultiDelivererUnknownChannel(t *testing.T) {
	multi := NewMultiDeliverer(zap.NewNop(), &stubDeliverer{channel: job.ChannelPush})

	err := multi.Deliver(context.Background(), makeNotification("carrier-pigeon", nil))
	if err == nil {
		t.Error("expected error for unrouted channel")
	}
}

func TestLogDelivererAcceptsEverything(t *testing.T) {
	d := NewLogDeliverer(zap.NewNop())

	for _, channel := range []string{job.ChannelPush, job.ChannelEmail, job.ChannelWebhook, job.ChannelQueue} {
		if !d.SupportsChannel(channel) {
			t.Errorf("LogDeliverer should support %s", channel)
		}
		if err := d.Deliver(context.Background(), makeNotification(channel, nil)); err != nil {
			t.Errorf("LogDeliverer should never fail, got: %v", err)
		}
	}
}

func TestWebhookDelivererSuccess(t *testing.T) {
	var received webhookBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Pitchside-Job-ID") == "" {
			t.Error("missing job ID header")
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewWebhookDeliverer(zap.NewNop(), WebhookConfig{})
	n := makeNotification(job.ChannelWebhook, map[string]string{"url": srv.URL})

	if err := d.Deliver(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.UserID != "user-1" || received.Title != "Kickoff soon" {
		t.Errorf("webhook body not delivered intact: %+v", received)
	}
}

func TestWebhookDelivererNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewWebhookDeliverer(zap.NewNop(), WebhookConfig{})
	n := makeNotification(job.ChannelWebhook, map[string]string{"url": srv.URL})

	if err := d.Deliver(context.Background(), n); err == nil {
		t.Error("expected error for 502 response")
	}
}

func TestWebhookDelivererMissingURL(t *testing.T) {
	d := NewWebhookDeliverer(zap.NewNop(), WebhookConfig{})

	if err := d.Deliver(context.Background(), makeNotification(job.ChannelWebhook, nil)); err == nil {
		t.Error("expected error for payload without url")
	}
}

// slowDeliverer blocks until its context is cancelled.
type slowDeliverer struct{}

func (slowDeliverer) Deliver(ctx context.Context, n *job.Notification) error {
	<-ctx.Done()
	return ctx.Err()
}

func (slowDeliverer) SupportsChannel(string) bool { return true }

func TestTimeoutDelivererCapsSlowCalls(t *testing.T) {
	d := NewTimeoutDeliverer(slowDeliverer{}, 20*time.Millisecond)

	start := time.Now()
	err := d.Deliver(context.Background(), makeNotification(job.ChannelPush, nil))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, ErrDeliveryTimeout) {
		t.Errorf("expected ErrDeliveryTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout deliverer did not return promptly")
	}
}

func TestTimeoutDelivererPassesThrough(t *testing.T) {
	inner := &stubDeliverer{channel: job.ChannelPush}
	d := NewTimeoutDeliverer(inner, time.Second)

	if err := d.Deliver(context.Background(), makeNotification(job.ChannelPush, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected inner deliverer called once, got %d", inner.calls)
	}

	wantErr := errors.New("transport down")
	inner.err = wantErr
	if err := d.Deliver(context.Background(), makeNotification(job.ChannelPush, nil)); !errors.Is(err, wantErr) {
		t.Errorf("expected inner error passed through, got %v", err)
	}
}

func TestSNSDelivererSupportsChannel(t *testing.T) {
	logger := zap.NewNop()
	d, err := NewSNSDeliverer(context.Background(), SNSConfig{Region: "us-east-1"}, logger)
	if err != nil {
		t.Skipf("AWS config unavailable: %v", err)
	}

	if !d.SupportsChannel(job.ChannelPush) {
		t.Error("SNS deliverer should support push")
	}
	if d.SupportsChannel(job.ChannelEmail) {
		t.Error("SNS deliverer should not support email")
	}
}

func TestSESDelivererSupportsChannel(t *testing.T) {
	logger := zap.NewNop()
	d, err := NewSESDeliverer(context.Background(), SESConfig{Region: "us-east-1"}, logger)
	if err != nil {
		t.Skipf("AWS config unavailable: %v", err)
	}

	if !d.SupportsChannel(job.ChannelEmail) {
		t.Error("SES deliverer should support email")
	}
	if d.SupportsChannel(job.ChannelWebhook) {
		t.Error("SES deliverer should not support webhook")
	}
}
