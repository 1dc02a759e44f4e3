package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "bastion/pkg/domain-errors"
)

// Normalizable is implemented by request types that canonicalize input (trim, lower-case).
type Normalizable interface {
	Normalize()
}

// Validatable is implemented by request types that check themselves.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes a JSON body, then calls Normalize() and Validate() when implemented.
// On failure it writes the error response and returns false.
//
//	req, ok := httputil.DecodeAndPrepare[models.LoginRequest](ctx, w, r, h.logger)
//	if !ok {
//	    return
//	}
func DecodeAndPrepare[T any](ctx context.Context, w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body", "error", err)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}

	if n, ok := any(&req).(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			logger.WarnContext(ctx, "invalid request", "error", err)
			WriteError(w, err)
			return nil, false
		}
	}
	return &req, true
}
