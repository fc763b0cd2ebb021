// Package intercept is the boundary to the host's request/response
// interception hooks: bearer-token injection on the way out, response
// inspection on the way back.
package intercept

import (
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// DefaultServiceHost identifies traffic for the managed service.
const DefaultServiceHost = "app.warp.dev"

// Request is the intercepted outbound request as the host hands it over.
type Request struct {
	URL     string
	Headers map[string]string
	Body    string
}

// Response is the intercepted upstream response.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// ResponseInspector consumes intercepted responses; inspection is
// observational and must not rewrite the response.
type ResponseInspector interface {
	Inspect(resp *Response, req *Request)
}

// Hooks implements the two interception callbacks the host invokes.
type Hooks struct {
	tokens    oauth2.TokenSource
	inspector ResponseInspector
	host      string
}

func NewHooks(tokens oauth2.TokenSource, inspector ResponseInspector, host string) *Hooks {
	if host == "" {
		host = DefaultServiceHost
	}
	return &Hooks{tokens: tokens, inspector: inspector, host: host}
}

// OnRequest injects the active identity's bearer token and a random
// experiment id into requests targeting the managed service. Requests
// for other hosts and requests without a usable token pass through
// untouched.
func (h *Hooks) OnRequest(req *Request) *Request {
	if req == nil || !strings.Contains(req.URL, h.host) {
		return req
	}

	token, err := h.tokens.Token()
	if err != nil {
		log.Printf("👤 No usable credentials, request passes through: %v", err)
		return req
	}

	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	req.Headers["Authorization"] = "Bearer " + token.AccessToken
	req.Headers["X-Warp-Experiment-Id"] = uuid.New().String()
	return req
}

// OnResponse delegates to the inspector and always returns the
// response unchanged.
func (h *Hooks) OnResponse(resp *Response, req *Request) *Response {
	if resp == nil || req == nil {
		return resp
	}
	h.inspector.Inspect(resp, req)
	return resp
}
