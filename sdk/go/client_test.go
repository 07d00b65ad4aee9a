package certlinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTasksSendsFiltersAndAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/tasks", r.URL.Path)
		assert.Equal(t, "critical", r.URL.Query().Get("priority"))
		assert.Empty(t, r.URL.Query().Get("status"))
		assert.Equal(t, "cl_key", r.Header.Get("X-Api-Key"))
		_ = json.NewEncoder(w).Encode(TaskList{
			Tasks:    []Task{{ID: "task-p2-cert-1-expired", Priority: "critical"}},
			Stats:    TaskStats{Total: 3, Critical: 1},
			Warnings: []Warning{{Code: "invalid_date", CertificationID: "cert-9", Message: "invalid_date: \"31.12.2025\""}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "cl_key"
	list, err := c.Tasks(context.Background(), TaskFilter{Priority: "critical"})
	require.NoError(t, err)
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, 3, list.Stats.Total)
	require.Len(t, list.Warnings, 1)
	assert.Equal(t, "cert-9", list.Warnings[0].CertificationID)
}

func TestErrorEnvelopeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_transition","message":"invalid status transition"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	_, err := c.SetTaskStatus(context.Background(), "task-1", "completed")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "invalid_transition", apiErr.Code)
}

func TestImportSendsEmptyRecordList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `[]`, string(body["records"]))
		assert.JSONEq(t, `true`, string(body["dry_run"]))
		_ = json.NewEncoder(w).Encode(ImportReport{DryRun: true})
	}))
	defer srv.Close()

	report, err := New(srv.URL).ImportCertifications(context.Background(), nil, true)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
}
