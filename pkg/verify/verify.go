package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/edgechain/edgechain/pkg/fl"
)

// Gateway is the external proof-verification collaborator. The core only
// consumes the boolean outcome; what constitutes a proof is the
// verifier's business.
type Gateway interface {
	VerifySubmission(ctx context.Context, sub fl.ModelSubmission) (bool, error)
}

// SignatureGateway accepts any submission that carries a non-empty
// signature string. It mirrors the placeholder check the demo deployment
// ships with and is the adapter used in tests and development.
type SignatureGateway struct{}

func NewSignatureGateway() *SignatureGateway {
	return &SignatureGateway{}
}

func (g *SignatureGateway) VerifySubmission(_ context.Context, sub fl.ModelSubmission) (bool, error) {
	return sub.Signature != "", nil
}

// HTTPGateway forwards submissions to an external verifier service. The
// request is bounded by the client timeout; a timeout or transport error
// counts as "not verified" for that submission, it does not fail the
// round.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	ParticipantID string `json:"participant_id"`
	WeightsHash   string `json:"weights_hash"`
	Round         int    `json:"round"`
	ModelVersion  int    `json:"model_version"`
	Signature     string `json:"signature,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

func (g *HTTPGateway) VerifySubmission(ctx context.Context, sub fl.ModelSubmission) (bool, error) {
	body, err := json.Marshal(verifyRequest{
		ParticipantID: sub.ParticipantID,
		WeightsHash:   sub.WeightsHash,
		Round:         sub.Round,
		ModelVersion:  sub.ModelVersion,
		Signature:     sub.Signature,
		TxHash:        sub.TxHash,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// A timeout or transport failure rejects this submission only;
		// an earlier pool entry from the same participant stays valid.
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return false, fmt.Errorf("failed to decode verifier response: %w", err)
	}

	return vr.Verified, nil
}
