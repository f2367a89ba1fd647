package middleware

import (
	"encoding/json"
	"net/http"

	"go-marketplace/internal/model"
	"go-marketplace/pkg/apierror"
)

func jsonEncode(w http.ResponseWriter, value any) error {
	return json.NewEncoder(w).Encode(value)
}

// writeAPIError writes the failure envelope. The top-level message mirrors the
// error message so clients can read either.
func writeAPIError(w http.ResponseWriter, apiErr *apierror.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus)
	_ = jsonEncode(w, model.APIResponse{
		Success:   false,
		Message:   apiErr.Message,
		ResetTime: apiErr.ResetTime,
		Error: &model.APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	})
}
