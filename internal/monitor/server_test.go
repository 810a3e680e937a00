package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chemview-archive/harvester/internal/harvest"
)

func TestProgressEndpoint(t *testing.T) {
	t.Parallel()

	progress := harvest.NewProgress(time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC))
	server := New("127.0.0.1:0", progress, zap.NewNop())

	recorder := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/progress", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	var snap harvest.Snapshot
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &snap))
	assert.Equal(t, 0, snap.RowsRead)
	assert.NotNil(t, snap.Successes)
}

func TestShutdownCompletesWithinTimeout(t *testing.T) {
	t.Parallel()

	server := New("127.0.0.1:0", harvest.NewProgress(time.Now()), zap.NewNop())
	server.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	server.Shutdown(ctx)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	progress := harvest.NewProgress(time.Now())
	server := New("127.0.0.1:0", progress, zap.NewNop())

	recorder := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "ok", recorder.Body.String())
}
