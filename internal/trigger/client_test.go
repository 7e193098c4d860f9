package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(primary, fallback string) *Client {
	return NewClient(primary, fallback, 5*time.Second, zap.NewNop())
}

func captureServer(t *testing.T, status int, bodies *[]map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)
		if bodies != nil {
			*bodies = append(*bodies, body)
		}
		w.WriteHeader(status)
	}))
}

func TestTriggerPrimarySucceeds(t *testing.T) {
	var bodies []map[string]interface{}
	primary := captureServer(t, http.StatusOK, &bodies)
	defer primary.Close()

	c := newTestClient(primary.URL, "")
	err := c.Trigger(context.Background(), Request{
		CorrelationID: "resp-1",
		Email:         "a@b.com",
		SubjectID:     7,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(bodies) != 1 {
		t.Fatalf("primary hits = %d, want 1", len(bodies))
	}
	if bodies[0]["responseId"] != "resp-1" || bodies[0]["email"] != "a@b.com" || bodies[0]["clientId"] != float64(7) {
		t.Errorf("body = %v", bodies[0])
	}
}

func TestTriggerFallsBackOnNon2xx(t *testing.T) {
	var primaryBodies, fallbackBodies []map[string]interface{}
	primary := captureServer(t, http.StatusBadGateway, &primaryBodies)
	defer primary.Close()
	fallback := captureServer(t, http.StatusOK, &fallbackBodies)
	defer fallback.Close()

	c := newTestClient(primary.URL, fallback.URL)
	if err := c.Trigger(context.Background(), Request{CorrelationID: "resp-1", SubjectID: 7}); err != nil {
		t.Fatal(err)
	}
	if len(primaryBodies) != 1 || len(fallbackBodies) != 1 {
		t.Errorf("hits: primary=%d fallback=%d, want 1 each", len(primaryBodies), len(fallbackBodies))
	}
	// Fallback receives the identical body.
	if fallbackBodies[0]["responseId"] != "resp-1" {
		t.Errorf("fallback body = %v", fallbackBodies[0])
	}
}

func TestTriggerFailsWhenBothEndpointsFail(t *testing.T) {
	primary := captureServer(t, http.StatusInternalServerError, nil)
	defer primary.Close()
	fallback := captureServer(t, http.StatusServiceUnavailable, nil)
	defer fallback.Close()

	c := newTestClient(primary.URL, fallback.URL)
	err := c.Trigger(context.Background(), Request{SubjectID: 7})
	if !errors.Is(err, ErrExternalCall) {
		t.Fatalf("err = %v, want ErrExternalCall", err)
	}
}

func TestTriggerFailsWithoutFallback(t *testing.T) {
	primary := captureServer(t, http.StatusInternalServerError, nil)
	defer primary.Close()

	c := newTestClient(primary.URL, "")
	err := c.Trigger(context.Background(), Request{SubjectID: 7})
	if !errors.Is(err, ErrExternalCall) {
		t.Fatalf("err = %v, want ErrExternalCall", err)
	}
}

func TestTriggerMissingConfiguration(t *testing.T) {
	c := newTestClient("", "")
	err := c.Trigger(context.Background(), Request{SubjectID: 7})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestTriggerPerClientOverrideWins(t *testing.T) {
	var envBodies, overrideBodies []map[string]interface{}
	envServer := captureServer(t, http.StatusOK, &envBodies)
	defer envServer.Close()
	override := captureServer(t, http.StatusOK, &overrideBodies)
	defer override.Close()

	c := newTestClient(envServer.URL, "")
	if err := c.Trigger(context.Background(), Request{SubjectID: 7, PrimaryURL: override.URL}); err != nil {
		t.Fatal(err)
	}
	if len(envBodies) != 0 || len(overrideBodies) != 1 {
		t.Errorf("hits: env=%d override=%d, want 0/1", len(envBodies), len(overrideBodies))
	}
}
