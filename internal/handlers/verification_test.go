package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmnix/keygate/internal/config"
	"github.com/zmnix/keygate/internal/license"
	"github.com/zmnix/keygate/internal/services"
)

type nopCounterStore struct{}

func (nopCounterStore) Bump(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}

// newTestApp wires the verification routes the way cmd/api does, without a
// database: every request exercised here must be rejected before the chain
// reaches one. The audit sink is returned unstarted so tests can inspect
// what was enqueued.
func newTestApp() (*fiber.App, *services.AuditService) {
	cfg := &config.Config{GeoCountryHeader: "X-Geo-Country"}
	limiter := license.NewRateLimiter(nopCounterStore{}, 100, 60)
	processor := license.NewProcessor(nil, limiter)
	sink := services.NewAuditService(16)
	handler := NewVerificationHandler(processor, sink, cfg)

	app := fiber.New()
	client := app.Group("/api/v1/client/teams/:teamId/verification")
	client.Post("/heartbeat", handler.Heartbeat)
	client.Get("/classloader", handler.Classloader)
	return app, sink
}

func TestHeartbeatEndpointRejectsMalformedRequests(t *testing.T) {
	app, _ := newTestApp()

	tests := []struct {
		name string
		path string
		body string
	}{
		{
			name: "body is not json",
			path: "/api/v1/client/teams/0b6bfbcd-1d6a-4f6e-9a06-6a185b4f0bc7/verification/heartbeat",
			body: "not json at all",
		},
		{
			name: "team id is not a uuid",
			path: "/api/v1/client/teams/nope/verification/heartbeat",
			body: `{"licenseKey":"ABCDE-FGHIJ-KLMNO-PQRST-UVWXY","deviceIdentifier":"machine-0001"}`,
		},
		{
			name: "license key malformed",
			path: "/api/v1/client/teams/0b6bfbcd-1d6a-4f6e-9a06-6a185b4f0bc7/verification/heartbeat",
			body: `{"licenseKey":"tooshort","deviceIdentifier":"machine-0001"}`,
		},
		{
			name: "device identifier malformed",
			path: "/api/v1/client/teams/0b6bfbcd-1d6a-4f6e-9a06-6a185b4f0bc7/verification/heartbeat",
			body: `{"licenseKey":"ABCDE-FGHIJ-KLMNO-PQRST-UVWXY","deviceIdentifier":"x y"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

			var body map[string]interface{}
			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, &body))

			assert.Equal(t, false, body["valid"])
			assert.NotEmpty(t, body["details"])
		})
	}
}

func TestClassloaderEndpointReturnsVerdictOnRejection(t *testing.T) {
	app, _ := newTestApp()

	req := httptest.NewRequest("GET",
		"/api/v1/client/teams/nope/verification/classloader?licenseKey=ABCDE-FGHIJ-KLMNO-PQRST-UVWXY&deviceIdentifier=machine-0001", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json",
		"rejected classloader requests get the JSON verdict, never a stream")
}

func TestAuditSkipsUnparseableTeamIDs(t *testing.T) {
	app, sink := newTestApp()

	// A team id that is not a UUID can never match the uuid-typed audit
	// column; recording it would only produce insert failures downstream.
	req := httptest.NewRequest("POST", "/api/v1/client/teams/nope/verification/heartbeat",
		strings.NewReader(`{"licenseKey":"ABCDE-FGHIJ-KLMNO-PQRST-UVWXY","deviceIdentifier":"machine-0001"}`))
	req.Header.Set("Content-Type", "application/json")
	_, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 0, sink.Pending(), "attempts without a usable team id must not be enqueued")

	// The same rejection under a real team id is audited as usual.
	req = httptest.NewRequest("POST",
		"/api/v1/client/teams/0b6bfbcd-1d6a-4f6e-9a06-6a185b4f0bc7/verification/heartbeat",
		strings.NewReader(`{"licenseKey":"tooshort","deviceIdentifier":"machine-0001"}`))
	req.Header.Set("Content-Type", "application/json")
	_, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 1, sink.Pending())
}
