package reset_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/app"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/service"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * End-to-end runs of the admin reset against a WireMock stand-in for the
 * backend. The stubs are reset between scenarios so one container serves
 * the whole file.
 */

const wiremockImage = "wiremock/wiremock:3.9.1"

type wiremock struct {
	baseURL string
}

// setupWireMock starts WireMock and returns a handle to its admin API.
func setupWireMock(t *testing.T) *wiremock {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        wiremockImage,
		ExposedPorts: []string{"8080/tcp"},
		WaitingFor: wait.ForHTTP("/__admin/mappings").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	return &wiremock{baseURL: fmt.Sprintf("http://%s:%s", host, port.Port())}
}

func (w *wiremock) admin(t *testing.T, method, path string, body any) []byte {
	t.Helper()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(t.Context(), method, w.baseURL+"/__admin"+path, payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Less(t, resp.StatusCode, 300, "wiremock admin %s %s: %s", method, path, out)
	return out
}

func (w *wiremock) reset(t *testing.T) {
	t.Helper()
	w.admin(t, http.MethodPost, "/reset", nil)
}

// stubJSON answers method+path with a JSON body. Lower priority values win.
func (w *wiremock) stubJSON(t *testing.T, method, urlPattern string, status int, body any, priority int) {
	t.Helper()
	w.admin(t, http.MethodPost, "/mappings", map[string]any{
		"priority": priority,
		"request": map[string]any{
			"method":         method,
			"urlPathPattern": urlPattern,
		},
		"response": map[string]any{
			"status":   status,
			"jsonBody": body,
			"headers":  map[string]string{"Content-Type": "application/json"},
		},
	})
}

func (w *wiremock) count(t *testing.T, method, urlPattern string) int {
	t.Helper()

	out := w.admin(t, http.MethodPost, "/requests/count", map[string]any{
		"method":         method,
		"urlPathPattern": urlPattern,
	})

	var res struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(out, &res))
	return res.Count
}

func newReset(t *testing.T, w *wiremock) *service.AdminReset {
	t.Helper()

	cfg := app.Config{
		APIURL:       w.baseURL + "/api/v1",
		AuthAPIURL:   w.baseURL + "/api/auth",
		HTTPTimeout:  10 * time.Second,
		RateBurst:    1,
		LocalStore:   app.StoreMemory,
		LocalLatency: -1,
		Env:          "test",
		LogLevel:     "info",
		LogFormat:    "json",
	}

	application, err := app.New(t.Context(), cfg, io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close(context.Background()) })

	form := service.DefaultAdminForm()
	form.Password = "Admin123!"

	reset, err := application.NewAdminReset(service.AlwaysConfirm, form)
	require.NoError(t, err)
	return reset
}

func TestAdminResetE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	w := setupWireMock(t)
	users := []map[string]string{{"_id": "u1"}, {"_id": "u2"}, {"id": "u3"}}

	t.Run("deletes everyone and provisions the admin", func(t *testing.T) {
		w.reset(t)
		w.stubJSON(t, http.MethodGet, "/api/v1/users", http.StatusOK, users, 5)
		w.stubJSON(t, http.MethodDelete, "/api/v1/users/.*", http.StatusOK, map[string]string{"message": "User deleted"}, 5)
		w.stubJSON(t, http.MethodPost, "/api/auth/register", http.StatusCreated, map[string]string{"message": "User registered successfully"}, 5)

		res, err := newReset(t, w).Execute(t.Context())
		require.NoError(t, err)
		require.Equal(t, service.ResetSucceeded, res.State)
		require.Len(t, res.Deleted, 3)

		require.Equal(t, 3, w.count(t, http.MethodDelete, "/api/v1/users/.*"))
		require.Equal(t, 1, w.count(t, http.MethodPost, "/api/auth/register"))
	})

	t.Run("one failed delete blocks creation", func(t *testing.T) {
		w.reset(t)
		w.stubJSON(t, http.MethodGet, "/api/v1/users", http.StatusOK, users, 5)
		w.stubJSON(t, http.MethodDelete, "/api/v1/users/.*", http.StatusOK, map[string]string{"message": "User deleted"}, 5)
		w.stubJSON(t, http.MethodDelete, "/api/v1/users/u2", http.StatusInternalServerError, map[string]string{"message": "boom"}, 1)
		w.stubJSON(t, http.MethodPost, "/api/auth/register", http.StatusCreated, map[string]string{"message": "ok"}, 5)

		res, err := newReset(t, w).Execute(t.Context())
		require.ErrorIs(t, err, service.ErrServerError)
		require.Equal(t, service.ResetFailed, res.State)

		var stage *service.StageFailure
		require.ErrorAs(t, err, &stage)
		require.Equal(t, service.ResetDeleting, stage.Stage)

		require.Equal(t, 3, w.count(t, http.MethodDelete, "/api/v1/users/.*"))
		require.Zero(t, w.count(t, http.MethodPost, "/api/auth/register"))
	})

	t.Run("missing endpoint is reported as such", func(t *testing.T) {
		w.reset(t)

		res, err := newReset(t, w).Execute(t.Context())
		require.ErrorIs(t, err, service.ErrEndpointNotFound)
		require.Equal(t, "Error loading users: "+service.MsgEndpointNotFound, err.Error())
		require.Equal(t, service.ResetFailed, res.State)
		require.Zero(t, w.count(t, http.MethodDelete, "/api/v1/users/.*"))
	})
}
