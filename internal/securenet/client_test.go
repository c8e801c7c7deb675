package securenet

import (
	"context"
	"crypto/x509"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/omniai-app/securekit/internal/certpin"
	"github.com/omniai-app/securekit/internal/model"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	v := certpin.NewValidator(certpin.PinSet{}, model.TrustStrict, nil, zap.NewNop())
	c := NewClient(v, model.DeviceInfo{InstallID: "ins-1", AppVersion: "2.1.0"}, Config{}, zap.NewNop(),
		WithTransport(http.DefaultTransport))
	return c, srv
}

func TestDo_InjectsSecurityHeaders(t *testing.T) {
	t.Parallel()
	var got http.Header
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))

	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Status != http.StatusNoContent {
		t.Fatalf("status=%d", resp.Status)
	}
	if got.Get("X-Request-ID") == "" {
		t.Fatalf("missing correlation id")
	}
	if got.Get("X-Request-Timestamp") == "" {
		t.Fatalf("missing timestamp header")
	}
	if got.Get("X-Device-ID") != "ins-1" || got.Get("X-App-Version") != "2.1.0" {
		t.Fatalf("missing device identity headers: %v", got)
	}
	if got.Get("Cache-Control") != "no-store" {
		t.Fatalf("caching not disabled")
	}
}

func TestDo_FreshCorrelationIDPerRequest(t *testing.T) {
	t.Parallel()
	ids := map[string]bool{}
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids[r.Header.Get("X-Request-ID")] = true
	}))
	for i := 0; i < 3; i++ {
		if _, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if len(ids) != 3 {
		t.Fatalf("correlation ids not unique: %d", len(ids))
	}
}

func TestDo_Non2xxStatusIsHTTPError(t *testing.T) {
	t.Parallel()
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil)
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("want *HTTPError, got %T: %v", err, err)
	}
	if he.Status != http.StatusForbidden {
		t.Fatalf("status=%d", he.Status)
	}
	if Retryable(err) {
		t.Fatalf("4xx must not be retryable")
	}
}

func TestDo_ServerErrorIsRetryable(t *testing.T) {
	t.Parallel()
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "later", http.StatusBadGateway)
	}))
	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil)
	if !Retryable(err) {
		t.Fatalf("5xx must be retryable")
	}
}

func TestDo_UnreachableIsTransportError(t *testing.T) {
	t.Parallel()
	v := certpin.NewValidator(certpin.PinSet{}, model.TrustStrict, nil, zap.NewNop())
	c := NewClient(v, model.DeviceInfo{}, Config{RequestTimeout: time.Second}, zap.NewNop(),
		WithTransport(http.DefaultTransport))
	_, err := c.Do(context.Background(), http.MethodGet, "http://127.0.0.1:1", nil)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("want *TransportError, got %T: %v", err, err)
	}
	if !Retryable(err) {
		t.Fatalf("transport errors must be retryable")
	}
}

func TestDo_HandshakeRejectedByValidator(t *testing.T) {
	t.Parallel()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(srv.Close)

	// Empty root pool: standard chain validation fails, the validator
	// rejects, and the request must abort before any body is sent.
	v := certpin.NewValidator(certpin.PinSet{}, model.TrustStrict, nil, zap.NewNop(),
		certpin.WithRoots(x509.NewCertPool()))
	c := NewClient(v, model.DeviceInfo{}, Config{}, zap.NewNop())

	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("want *TransportError, got %T: %v", err, err)
	}
	if !te.HandshakeRejected() {
		t.Fatalf("want handshake rejection, got %v", te.Err)
	}
}

func TestPostJSON_DecodeError(t *testing.T) {
	t.Parallel()
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	var out struct{}
	err := c.PostJSON(context.Background(), srv.URL, map[string]string{"a": "b"}, &out)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("want *DecodeError, got %T: %v", err, err)
	}
}
