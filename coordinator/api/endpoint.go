package api

import (
	"context"
	"errors"

	"github.com/go-kit/kit/endpoint"

	"github.com/edgechain/edgechain/coordinator"
	"github.com/edgechain/edgechain/pkg/api"
	pkgerrors "github.com/edgechain/edgechain/pkg/errors"
)

func submitEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(submissionReq)
		if !ok {
			return submissionResponse{}, errors.Join(api.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return submissionResponse{}, errors.Join(api.ErrValidation, err)
		}

		outcome, err := svc.Submit(ctx, req.ModelSubmission)
		if err != nil {
			return submissionResponse{}, err
		}

		return submissionResponse{
			SubmitOutcome: outcome,
		}, nil
	}
}

func statusEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		status, err := svc.Status(ctx)
		if err != nil {
			return statusResponse{}, err
		}

		return statusResponse{
			Status: status,
		}, nil
	}
}

func aggregateEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		result, err := svc.Aggregate(ctx)
		if err != nil {
			return aggregationResponse{}, err
		}

		return aggregationResponse{
			AggregationResult: result,
		}, nil
	}
}

func globalModelEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		model, err := svc.GlobalModel(ctx)
		if err != nil {
			return globalModelResponse{}, err
		}

		return globalModelResponse{
			GlobalModel: model,
		}, nil
	}
}

func historyEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return historyResponse{}, errors.Join(api.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return historyResponse{}, errors.Join(api.ErrValidation, err)
		}

		page, err := svc.History(ctx, req.offset, req.limit)
		if err != nil {
			return historyResponse{}, err
		}

		return historyResponse{
			HistoryPage: page,
		}, nil
	}
}
