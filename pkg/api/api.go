package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	pkgerrors "github.com/edgechain/edgechain/pkg/errors"
	"github.com/edgechain/edgechain/pkg/fl"
)

const (
	OffsetKey = "offset"
	LimitKey  = "limit"
	DefOffset = 0
	DefLimit  = 100

	ContentType     = "application/json"
	ContentTypeCBOR = "application/cbor"
)

var (
	ErrValidation             = errors.New("invalid request")
	ErrUnsupportedContentType = errors.New("unsupported content type")
)

// Response lets endpoint responses control their HTTP representation.
type Response interface {
	Code() int
	Headers() map[string]string
	Empty() bool
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	if ar, ok := response.(Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	switch {
	case errors.Is(err, fl.ErrInvalidSubmission),
		errors.Is(err, ErrValidation),
		errors.Is(err, pkgerrors.ErrEmptyKey),
		errors.Is(err, pkgerrors.ErrMissingID):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, fl.ErrVerificationFailed):
		w.WriteHeader(http.StatusForbidden)
	case errors.Is(err, pkgerrors.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, fl.ErrInsufficientSubmissions):
		w.WriteHeader(http.StatusPreconditionFailed)
	case errors.Is(err, fl.ErrAggregationInProgress):
		w.WriteHeader(http.StatusConflict)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// ReadNumQuery parses an unsigned numeric query parameter, returning def
// when the parameter is absent.
func ReadNumQuery(r *http.Request, key string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.Join(ErrValidation, err)
	}

	return v, nil
}

// Health serves a minimal liveness document.
func Health(service, instanceID string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", ContentType)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":      "pass",
			"service":     service,
			"instance_id": instanceID,
			"time":        time.Now().UTC().Format(time.RFC3339),
		})
	}
}
