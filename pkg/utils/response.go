package utils

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/SluiooktueSvg/ia/pkg/logging"
)

// RespondJSON writes a JSON response with the given status.
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.L().Error("failed to encode response", zap.Error(err))
	}
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}
