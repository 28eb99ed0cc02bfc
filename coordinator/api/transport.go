package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/edgechain/edgechain/coordinator"
	"github.com/edgechain/edgechain/pkg/api"
)

const maxBodySize = 1024 * 1024 * 100

func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(loggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Route("/fl", func(r chi.Router) {
		r.Post("/update", otelhttp.NewHandler(kithttp.NewServer(
			submitEndpoint(svc),
			decodeSubmissionReq,
			api.EncodeResponse,
			opts...,
		), "submit-model-update").ServeHTTP)
		r.Post("/update_cbor", otelhttp.NewHandler(kithttp.NewServer(
			submitEndpoint(svc),
			decodeSubmissionCBORReq,
			api.EncodeResponse,
			opts...,
		), "submit-model-update-cbor").ServeHTTP)
		r.Get("/status", otelhttp.NewHandler(kithttp.NewServer(
			statusEndpoint(svc),
			decodeEmptyReq,
			api.EncodeResponse,
			opts...,
		), "get-round-status").ServeHTTP)
		r.Post("/aggregate", otelhttp.NewHandler(kithttp.NewServer(
			aggregateEndpoint(svc),
			decodeEmptyReq,
			api.EncodeResponse,
			opts...,
		), "aggregate-round").ServeHTTP)
		r.Get("/model", otelhttp.NewHandler(kithttp.NewServer(
			globalModelEndpoint(svc),
			decodeEmptyReq,
			api.EncodeResponse,
			opts...,
		), "get-global-model").ServeHTTP)
		r.Get("/history", otelhttp.NewHandler(kithttp.NewServer(
			historyEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-aggregation-history").ServeHTTP)
	})

	mux.Get("/health", api.Health("coordinator", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeSubmissionReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(api.ErrValidation, api.ErrUnsupportedContentType)
	}

	var req submissionReq
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		return nil, errors.Join(err, api.ErrValidation)
	}

	return req, nil
}

func decodeSubmissionCBORReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentTypeCBOR) {
		return nil, errors.Join(api.ErrValidation, api.ErrUnsupportedContentType)
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, errors.Join(err, api.ErrValidation)
	}

	var req submissionReq
	if err := cbor.Unmarshal(data, &req.ModelSubmission); err != nil {
		return nil, errors.Join(err, api.ErrValidation)
	}

	return req, nil
}

func decodeEmptyReq(_ context.Context, _ *http.Request) (any, error) {
	return nil, nil
}

func decodeListEntityReq(_ context.Context, r *http.Request) (any, error) {
	o, err := api.ReadNumQuery(r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(api.ErrValidation, err)
	}

	l, err := api.ReadNumQuery(r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(api.ErrValidation, err)
	}

	return listEntityReq{
		offset: o,
		limit:  l,
	}, nil
}

func loggingErrorEncoder(logger *slog.Logger, enc kithttp.ErrorEncoder) kithttp.ErrorEncoder {
	return func(ctx context.Context, err error, w http.ResponseWriter) {
		if errors.Is(err, api.ErrValidation) {
			logger.Error(err.Error())
		}
		enc(ctx, err, w)
	}
}
