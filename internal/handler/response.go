package handler

import (
	"encoding/json"
	"net/http"
)

// envelope is the standard JSON response body.
type envelope struct {
	Data  any          `json:"data,omitempty"`
	Error *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// UpgradeURL points denied clients at the checkout flow.
	UpgradeURL string `json:"upgrade_url,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &errorDetail{Code: code, Message: message}})
}

// respondPaymentRequired is the distinguishable denial for premium-gated
// features: 402 plus an upgrade target, never a generic failure.
func respondPaymentRequired(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(envelope{Error: &errorDetail{
		Code:       "payment_required",
		Message:    message,
		UpgradeURL: "/v1/checkout/session",
	}})
}
