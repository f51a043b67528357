package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	foremanhttp "github.com/aretw0/foreman/internal/adapters/http"
	"github.com/aretw0/foreman/pkg/domain"
)

type stubEngine struct {
	result domain.EngineResult

	delegated    bool
	delegatedFor string
	transitioned [2]string
}

func (s *stubEngine) ProcessDelegation(ctx context.Context) domain.EngineResult {
	s.delegated = true
	return s.result
}

func (s *stubEngine) ProcessDelegationFor(ctx context.Context, id string) domain.EngineResult {
	s.delegatedFor = id
	return s.result
}

func (s *stubEngine) ProcessTransition(ctx context.Context, id, stage string) domain.EngineResult {
	s.transitioned = [2]string{id, stage}
	return s.result
}

func newServer(t *testing.T, engine *stubEngine) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(foremanhttp.NewHandler(engine, nil, slogt.New(t)))
	t.Cleanup(srv.Close)
	return srv
}

func decodeResult(t *testing.T, resp *http.Response) domain.EngineResult {
	t.Helper()
	defer resp.Body.Close()
	var result domain.EngineResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func TestDelegate_RunsSelectionPass(t *testing.T) {
	engine := &stubEngine{result: domain.EngineResult{Status: domain.StatusSuccess, WorkItemID: "WL-1"}}
	srv := newServer(t, engine)

	resp, err := http.Post(srv.URL+"/v1/delegate", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, engine.delegated)
	result := decodeResult(t, resp)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Equal(t, "WL-1", result.WorkItemID)
}

func TestDelegate_ExplicitWorkItem(t *testing.T) {
	engine := &stubEngine{result: domain.EngineResult{Status: domain.StatusSuccess}}
	srv := newServer(t, engine)

	resp, err := http.Post(srv.URL+"/v1/delegate", "application/json",
		strings.NewReader(`{"workItemId":"WL-9"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "WL-9", engine.delegatedFor)
	assert.False(t, engine.delegated)
}

func TestDelegate_EmptyBody(t *testing.T) {
	engine := &stubEngine{result: domain.EngineResult{Status: domain.StatusNoCandidates}}
	srv := newServer(t, engine)

	resp, err := http.Post(srv.URL+"/v1/delegate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, engine.delegated)
}

func TestTransition_StatusMapping(t *testing.T) {
	cases := []struct {
		engine domain.EngineStatus
		http   int
	}{
		{domain.StatusSuccess, http.StatusOK},
		{domain.StatusRejected, http.StatusConflict},
		{domain.StatusInvariantFailed, http.StatusUnprocessableEntity},
		{domain.StatusUpdateFailed, http.StatusBadGateway},
		{domain.StatusError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.engine), func(t *testing.T) {
			engine := &stubEngine{result: domain.EngineResult{Status: tc.engine}}
			srv := newServer(t, engine)

			resp, err := http.Post(srv.URL+"/v1/transition", "application/json",
				strings.NewReader(`{"workItemId":"WL-5","targetStage":"done"}`))
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, tc.http, resp.StatusCode)
			assert.Equal(t, [2]string{"WL-5", "done"}, engine.transitioned)
		})
	}
}

func TestTransition_RequiresFields(t *testing.T) {
	engine := &stubEngine{}
	srv := newServer(t, engine)

	resp, err := http.Post(srv.URL+"/v1/transition", "application/json",
		strings.NewReader(`{"workItemId":"WL-5"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, [2]string{"", ""}, engine.transitioned)
}

func TestTransition_MalformedBody(t *testing.T) {
	srv := newServer(t, &stubEngine{})

	resp, err := http.Post(srv.URL+"/v1/transition", "application/json",
		strings.NewReader("not json"))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := newServer(t, &stubEngine{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
