package lmssvc

import (
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/kymoni/elimika/core"
	"github.com/kymoni/elimika/core/qa"
	logsvc "github.com/kymoni/elimika/services/logger"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conf := &core.Config{LMS: core.LMSConfig{BaseURL: srv.URL, APIKey: "test-key"}}
	return NewClient(conf, logsvc.NewConsoleLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags))), srv
}

func TestClientQuerySamplePlansKeepsRawShape(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "external", r.URL.Query().Get("assessor_type"))
		_, _ = w.Write([]byte(`{"data":{"data":[{"plan_id":"p1","plan_name":"Plan One"}]}}`))
	}))

	raw, err := client.QuerySamplePlans("c1", qa.Assessor{ID: "qa-1", External: true})
	assert.NoError(t, err)

	plans := qa.NormalizePlans(raw)
	assert.Equal(t, []qa.Plan{{ID: "p1", Label: "Plan One"}}, plans)
}

func TestClientQueryPlanLearners(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bare array", body: `[{"learner_name":"amina","risk_percentage":"50.00","units":[{"unit_code":"U1"}]}]`},
		{name: "data envelope", body: `{"data":[{"learner_name":"amina","risk_percentage":50,"units":[{"unit_code":"U1"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "true", r.URL.Query().Get("filter_applied"))
				_, _ = w.Write([]byte(tt.body))
			}))

			rows, err := client.QueryPlanLearners("p1", true, "")
			assert.NoError(t, err)
			if assert.Len(t, rows, 1) {
				assert.Equal(t, "amina", rows[0].LearnerName)
				assert.Equal(t, float64(50), rows[0].RiskPercentage.Float())
			}
		})
	}
}

func TestClientApplySamplesStructuredErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "nested data.message", status: 422, body: `{"data":{"message":"plan is locked"}}`, wantMsg: "plan is locked"},
		{name: "top-level message", status: 400, body: `{"message":"bad payload"}`, wantMsg: "bad payload"},
		{name: "undecodable body", status: 500, body: `oops`, wantMsg: "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := client.ApplySamples(qa.ApplySamplesPayload{PlanID: "p1"})
			if !assert.Error(t, err) {
				return
			}
			serr, ok := errors.Cause(err).(*qa.SubmissionError)
			if assert.True(t, ok, "expected a SubmissionError, got %T", err) {
				assert.Equal(t, tt.status, serr.Status)
			}
			assert.Equal(t, tt.wantMsg, qa.ErrorMessage(err, "fallback"))
		})
	}
}

func TestClientApplySamplesSuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"message":"2 learners queued"}`))
	}))

	result, err := client.ApplySamples(qa.ApplySamplesPayload{PlanID: "p1"})
	assert.NoError(t, err)
	assert.Equal(t, "2 learners queued", result.Message)
}
