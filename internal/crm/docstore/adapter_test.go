package docstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/retry"
	"lead-engine/internal/crm"
)

func newAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{server.URL},
		DisableRetry: true,
	})
	require.NoError(t, err)

	return New(es, Config{Index: "leads", Refresh: "wait_for", Retry: retry.Policy{MaxAttempts: 2, Delay: time.Millisecond}}, logger.NewTestLogger(t))
}

func TestCreateRecord(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/leads/_doc", r.URL.Path)
		assert.Equal(t, "wait_for", r.URL.Query().Get("refresh"))

		var doc map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		assert.Equal(t, "a@b.co", doc["email"])
		assert.Equal(t, 92.5, doc["bant_score"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_index":"leads","_id":"doc-1","result":"created"}`))
	})

	score := 92.5
	id, err := a.CreateRecord(context.Background(), crm.Record{Email: "a@b.co", BANTScore: &score})

	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)
}

func TestCreateRecord_RetriesUnavailable(t *testing.T) {
	var calls int32
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"doc-2","result":"created"}`))
	})

	id, err := a.CreateRecord(context.Background(), crm.Record{Email: "a@b.co"})

	require.NoError(t, err)
	assert.Equal(t, "doc-2", id)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestUpdateRecord(t *testing.T) {
	t.Run("partial doc", func(t *testing.T) {
		a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/leads/_update/doc-1", r.URL.Path)

			var body struct {
				Doc map[string]interface{} `json:"doc"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "QUALIFIED", body.Doc["status"])

			_, _ = w.Write([]byte(`{"_id":"doc-1","result":"updated"}`))
		})

		ok, err := a.UpdateRecord(context.Background(), "doc-1", crm.Fields{crm.FieldStatus: "QUALIFIED"})

		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing document", func(t *testing.T) {
		a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"document_missing_exception"},"status":404}`))
		})

		ok, err := a.UpdateRecord(context.Background(), "gone", crm.Fields{crm.FieldStatus: "QUALIFIED"})

		assert.False(t, ok)
		assert.Equal(t, errors.ErrCodeCRMNotFound, errors.CodeOf(err))
	})
}

func TestGetRecord(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/leads/_doc/doc-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"_id":"doc-1","found":true,"_source":{"email":"a@b.co","status":"NURTURING","created_at":"2026-01-02T03:04:05Z"}}`))
	})

	rec, err := a.GetRecord(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Equal(t, "a@b.co", rec.Email)
	assert.Equal(t, "NURTURING", rec.Status)
	assert.Equal(t, 2026, rec.CreatedAt.Year())
}

func TestEnsureIndex(t *testing.T) {
	t.Run("creates missing index", func(t *testing.T) {
		var created int32
		a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodHead:
				w.WriteHeader(http.StatusNotFound)
			case http.MethodPut:
				atomic.AddInt32(&created, 1)
				_, _ = w.Write([]byte(`{"acknowledged":true,"index":"leads"}`))
			}
		})

		require.NoError(t, a.EnsureIndex(context.Background()))
		assert.Equal(t, int32(1), atomic.LoadInt32(&created))
	})

	t.Run("existing index untouched", func(t *testing.T) {
		a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodHead, r.Method)
		})

		require.NoError(t, a.EnsureIndex(context.Background()))
	})
}
