package assistant

import (
	"encoding/json"
	"net/http"

	"github.com/vowsuite/concierge"
)

type errorBody struct {
	Code       string                `json:"code"`
	Message    string                `json:"message"`
	Candidates []concierge.Candidate `json:"candidates,omitempty"`
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps a classified error onto its HTTP status and a stable
// JSON body.
func writeError(w http.ResponseWriter, err error) {
	ce := concierge.AsError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(concierge.HTTPStatus(ce.Code))
	_ = json.NewEncoder(w).Encode(map[string]any{"error": errorBodyOf(ce)})
}

func errorBodyOf(ce *concierge.Error) *errorBody {
	if ce == nil {
		return nil
	}
	return &errorBody{
		Code:       string(ce.Code),
		Message:    ce.Message,
		Candidates: ce.Candidates,
	}
}
