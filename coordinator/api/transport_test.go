package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edgechain/edgechain/coordinator"
	"github.com/edgechain/edgechain/coordinator/mocks"
	pkgerrors "github.com/edgechain/edgechain/pkg/errors"
	"github.com/edgechain/edgechain/pkg/fl"
)

func testSubmission() fl.ModelSubmission {
	arch := fl.ModelArchitecture{
		Name: "yield-mlp",
		Layers: []fl.LayerSpec{
			{Name: "dense", InputSize: 2, OutputSize: 1},
		},
	}

	return fl.ModelSubmission{
		ParticipantID: "farmer-1",
		Weights: fl.ModelWeights{
			Layers: []fl.LayerWeights{
				{
					Name:    "dense",
					Weights: [][]float64{{0.1, 0.2}},
					Bias:    []float64{0.3},
				},
			},
			Architecture:    arch,
			TotalParameters: 3,
		},
		Metrics:     fl.SubmissionMetrics{Loss: 0.05, MAE: 0.1, Accuracy: 0.9},
		DatasetSize: 120,
		Round:       1,
		Timestamp:   time.Now().UTC(),
		Signature:   "0xsigned",
	}
}

func newTestServer(svc coordinator.Service) *httptest.Server {
	return httptest.NewServer(MakeHandler(svc, slog.New(slog.DiscardHandler), "test-instance"))
}

func TestSubmitUpdateJSON(t *testing.T) {
	svc := new(mocks.MockService)
	svc.On("Submit", mock.Anything, mock.AnythingOfType("fl.ModelSubmission")).
		Return(coordinator.SubmitOutcome{Accepted: true, PoolSize: 1}, nil)

	ts := newTestServer(svc)
	defer ts.Close()

	body, err := json.Marshal(testSubmission())
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/fl/update", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var outcome coordinator.SubmitOutcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&outcome))
	assert.True(t, outcome.Accepted)
	assert.Equal(t, 1, outcome.PoolSize)
	svc.AssertExpectations(t)
}

func TestSubmitUpdateCBOR(t *testing.T) {
	svc := new(mocks.MockService)
	svc.On("Submit", mock.Anything, mock.AnythingOfType("fl.ModelSubmission")).
		Return(coordinator.SubmitOutcome{Accepted: true, PoolSize: 3, AggregationTriggered: true}, nil)

	ts := newTestServer(svc)
	defer ts.Close()

	body, err := cbor.Marshal(testSubmission())
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/fl/update_cbor", "application/cbor", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	svc.AssertExpectations(t)
}

func TestSubmitUpdateWrongContentType(t *testing.T) {
	svc := new(mocks.MockService)

	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/fl/update", "text/plain", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	svc.AssertNotCalled(t, "Submit")
}

func TestSubmitUpdateMissingParticipant(t *testing.T) {
	svc := new(mocks.MockService)

	ts := newTestServer(svc)
	defer ts.Close()

	sub := testSubmission()
	sub.ParticipantID = ""
	body, err := json.Marshal(sub)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/fl/update", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	svc.AssertNotCalled(t, "Submit")
}

func TestGetStatus(t *testing.T) {
	svc := new(mocks.MockService)
	svc.On("Status", mock.Anything).Return(coordinator.Status{
		CurrentRound:   3,
		CurrentVersion: 2,
		PoolSize:       1,
		MinSubmissions: 3,
	}, nil)

	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/fl/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status coordinator.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, 3, status.CurrentRound)
	assert.Equal(t, 2, status.CurrentVersion)
	svc.AssertExpectations(t)
}

func TestAggregateInProgress(t *testing.T) {
	svc := new(mocks.MockService)
	svc.On("Aggregate", mock.Anything).Return(fl.AggregationResult{}, fl.ErrAggregationInProgress)

	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/fl/aggregate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	svc.AssertExpectations(t)
}

func TestAggregateInsufficient(t *testing.T) {
	svc := new(mocks.MockService)
	svc.On("Aggregate", mock.Anything).Return(fl.AggregationResult{}, fl.ErrInsufficientSubmissions)

	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/fl/aggregate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	svc.AssertExpectations(t)
}

func TestGetGlobalModelNotFound(t *testing.T) {
	svc := new(mocks.MockService)
	svc.On("GlobalModel", mock.Anything).Return(fl.GlobalModel{}, pkgerrors.ErrNotFound)

	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/fl/model")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	svc.AssertExpectations(t)
}

func TestListHistoryPagination(t *testing.T) {
	svc := new(mocks.MockService)
	svc.On("History", mock.Anything, uint64(5), uint64(2)).Return(coordinator.HistoryPage{
		Offset: 5,
		Limit:  2,
		Total:  10,
	}, nil)

	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/fl/history?offset=5&limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var page coordinator.HistoryPage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, uint64(10), page.Total)
	svc.AssertExpectations(t)
}

func TestListHistoryBadOffset(t *testing.T) {
	svc := new(mocks.MockService)

	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/fl/history?offset=notanumber")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	svc.AssertNotCalled(t, "History")
}

func TestHealth(t *testing.T) {
	svc := new(mocks.MockService)

	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
