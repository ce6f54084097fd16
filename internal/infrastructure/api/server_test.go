package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app_service "account-graph-indexer/internal/application/service"
	"account-graph-indexer/internal/domain/entity"
	"account-graph-indexer/internal/domain/service"
	"account-graph-indexer/internal/infrastructure/config"
	"account-graph-indexer/internal/infrastructure/logger"
)

type doneObserver chan error

func (d doneObserver) UpdatedProgress(float64) {}
func (d doneObserver) FinishedIndexing()       { d <- nil }
func (d doneObserver) ErrorIndexing(err error) { d <- err }

func newIndexedServer(t *testing.T) (*Server, doneObserver) {
	t.Helper()
	svc, err := app_service.NewIndexingApplicationService(&config.IndexConfig{}, nil, logger.NewNop())
	require.NoError(t, err)
	done := make(doneObserver, 8)
	svc.Subscribe(done)
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)

	svc.Ingest(&entity.AccountUpdate{
		Account:      "GABC",
		Effects:      []*entity.Effect{{ID: "E1", PagingToken: "O1-1"}},
		Operations:   []*entity.Operation{{ID: "O1", TransactionHash: "T1"}},
		Transactions: []*entity.Transaction{{Hash: "T1"}},
	})
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for indexing")
	}

	return NewServer(&config.AppConfig{}, svc, logger.NewNop()), done
}

func TestServer_Health(t *testing.T) {
	srv, _ := newIndexedServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Related(t *testing.T) {
	srv, _ := newIndexedServer(t)

	tests := []struct {
		name   string
		query  string
		status int
		wantID string
	}{
		{name: "effect to transaction", query: "kind=effect&id=E1&want=transaction", status: http.StatusOK, wantID: "T1"},
		{name: "transaction to effect", query: "kind=TRANSACTION&id=T1&want=effect", status: http.StatusOK, wantID: "E1"},
		{name: "same kind", query: "kind=effect&id=E1&want=effect", status: http.StatusNotFound},
		{name: "unknown node", query: "kind=effect&id=E9&want=operation", status: http.StatusNotFound},
		{name: "bad kind", query: "kind=ledger&id=E1&want=operation", status: http.StatusBadRequest},
		{name: "missing id", query: "kind=effect&want=operation", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/related?"+tt.query, nil))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			if tt.wantID == "" {
				return
			}
			var body struct {
				Node entity.NodeKey `json:"node"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantID, body.Node.ID)
		})
	}
}

func TestServer_Commands(t *testing.T) {
	srv, done := newIndexedServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/index/rebuild", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rebuild")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/index/reset", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status service.IndexingStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 0, status.Graph.Edges)
	assert.Equal(t, 0, status.Graph.Effects)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index/halt", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
