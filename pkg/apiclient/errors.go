package apiclient

import (
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	pkgerrors "github.com/angelmondragon/stocktake-backend/pkg/errors"
	"github.com/angelmondragon/stocktake-backend/pkg/types"
)

// APIError is a decoded error envelope returned by the server.
type APIError struct {
	Status  int
	Code    pkgerrors.Code
	Message string
	Details any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Kind maps the server code onto the shared taxonomy.
func (e *APIError) Kind() pkgerrors.Kind {
	return pkgerrors.KindOf(e.Code)
}

// MissingIDs returns the ids named by a PARTIAL_NOT_FOUND rejection.
func (e *APIError) MissingIDs() []string {
	details, ok := e.Details.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := details["missingIds"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func decodeError(resp *resty.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode()}
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(resp.Body(), &envelope); err == nil && envelope.Error.Code != "" {
		apiErr.Code = pkgerrors.Code(envelope.Error.Code)
		apiErr.Message = envelope.Error.Message
		apiErr.Details = envelope.Error.Details
		return apiErr
	}
	apiErr.Code = pkgerrors.CodeFromStatus(resp.StatusCode())
	apiErr.Message = resp.Status()
	return apiErr
}
