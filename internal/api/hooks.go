package api

import (
	"encoding/json"
	"net/http"

	"github.com/RayYiHang/warp-surge/internal/intercept"
)

type hookRequest struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

type hookResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

type hookExchange struct {
	Request  hookRequest  `json:"request"`
	Response hookResponse `json:"response"`
}

// RequestHookHandler bridges the host's outbound interception callback:
// the host posts the intercepted request and receives it back with
// credentials injected.
func RequestHookHandler(hooks *intercept.Hooks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in hookRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "malformed request hook payload", http.StatusBadRequest)
			return
		}

		out := hooks.OnRequest(&intercept.Request{URL: in.URL, Headers: in.Headers, Body: in.Body})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hookRequest{URL: out.URL, Headers: out.Headers, Body: out.Body})
	}
}

// ResponseHookHandler bridges the host's inbound interception callback.
// Inspection is observational; the response is returned unchanged.
func ResponseHookHandler(hooks *intercept.Hooks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in hookExchange
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "malformed response hook payload", http.StatusBadRequest)
			return
		}

		out := hooks.OnResponse(
			&intercept.Response{StatusCode: in.Response.Status, Headers: in.Response.Headers, Body: in.Response.Body},
			&intercept.Request{URL: in.Request.URL, Headers: in.Request.Headers, Body: in.Request.Body},
		)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hookResponse{Status: out.StatusCode, Headers: out.Headers, Body: out.Body})
	}
}
