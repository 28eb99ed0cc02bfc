package api

import (
	pkgerrors "github.com/edgechain/edgechain/pkg/errors"
	"github.com/edgechain/edgechain/pkg/fl"
)

type submissionReq struct {
	fl.ModelSubmission `json:",inline"`
}

func (s *submissionReq) validate() error {
	if s.ParticipantID == "" {
		return pkgerrors.ErrMissingID
	}

	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	return nil
}
