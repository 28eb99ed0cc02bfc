package api

import (
	"net/http"

	"github.com/edgechain/edgechain/coordinator"
	"github.com/edgechain/edgechain/pkg/api"
	"github.com/edgechain/edgechain/pkg/fl"
)

var (
	_ api.Response = (*submissionResponse)(nil)
	_ api.Response = (*statusResponse)(nil)
	_ api.Response = (*aggregationResponse)(nil)
	_ api.Response = (*globalModelResponse)(nil)
	_ api.Response = (*historyResponse)(nil)
)

type submissionResponse struct {
	coordinator.SubmitOutcome
}

func (s submissionResponse) Code() int {
	return http.StatusAccepted
}

func (s submissionResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s submissionResponse) Empty() bool {
	return false
}

type statusResponse struct {
	coordinator.Status
}

func (s statusResponse) Code() int {
	return http.StatusOK
}

func (s statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s statusResponse) Empty() bool {
	return false
}

type aggregationResponse struct {
	fl.AggregationResult
}

func (a aggregationResponse) Code() int {
	return http.StatusOK
}

func (a aggregationResponse) Headers() map[string]string {
	return map[string]string{}
}

func (a aggregationResponse) Empty() bool {
	return false
}

type globalModelResponse struct {
	fl.GlobalModel
}

func (g globalModelResponse) Code() int {
	return http.StatusOK
}

func (g globalModelResponse) Headers() map[string]string {
	return map[string]string{}
}

func (g globalModelResponse) Empty() bool {
	return false
}

type historyResponse struct {
	coordinator.HistoryPage
}

func (h historyResponse) Code() int {
	return http.StatusOK
}

func (h historyResponse) Headers() map[string]string {
	return map[string]string{}
}

func (h historyResponse) Empty() bool {
	return false
}
