package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/types"
)

// Codes whose message was written for the caller, e.g. "Book not available".
var domainMessageCodes = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:  true,
	pkgerrors.CodeNotFound:    true,
	pkgerrors.CodeUnavailable: true,
	pkgerrors.CodeConflict:    true,
	pkgerrors.CodeIdempotency: true,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	_ = writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError maps err onto the error envelope. Untyped errors become
// INTERNAL_ERROR; storage and internal causes are logged, never returned.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := types.APIError{
		Code:    string(typed.Code()),
		Reason:  string(typed.Reason()),
		Message: meta.PublicMessage,
	}
	if m := typed.Message(); m != "" && domainMessageCodes[typed.Code()] {
		apiErr.Message = m
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		ctx = logg.WithField(ctx, "http_status", meta.HTTPStatus)
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}

	if encErr := writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr}); encErr != nil && logg != nil {
		logg.Error(ctx, "failed to encode error response", encErr)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}
