package middleware

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// ErrorEvent is the htmx client event raised for failed partial requests.
const ErrorEvent = "app:error"

type errorResponse struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	RequestID string `json:"requestId,omitempty"`
}

// WriteError replies with msg. htmx requests get a JSON envelope, no swap and
// an ErrorEvent trigger carrying the envelope so the page can notify; others
// get plain text.
func WriteError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	if !IsHTMX(r.Context()) {
		http.Error(w, msg, code)
		return
	}
	body := errorResponse{Error: msg, Status: code}
	if id, ok := RequestID(r.Context()); ok {
		body.RequestID = id
	}
	if trigger, err := json.Marshal(map[string]errorResponse{ErrorEvent: body}); err == nil {
		w.Header().Set("HX-Trigger", string(trigger))
	}
	SkipSwap(w)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
