package intercept

import (
	"errors"
	"testing"

	"golang.org/x/oauth2"
)

type staticTokens struct {
	token *oauth2.Token
	err   error
}

func (s *staticTokens) Token() (*oauth2.Token, error) { return s.token, s.err }

type inspectorSpy struct {
	resp *Response
	req  *Request
}

func (i *inspectorSpy) Inspect(resp *Response, req *Request) {
	i.resp = resp
	i.req = req
}

func TestOnRequest_InjectsCredentialsForManagedHost(t *testing.T) {
	hooks := NewHooks(&staticTokens{token: &oauth2.Token{AccessToken: "T1"}}, &inspectorSpy{}, "")

	req := &Request{URL: "https://app.warp.dev/ai/multi-agent"}
	got := hooks.OnRequest(req)

	if got.Headers["Authorization"] != "Bearer T1" {
		t.Fatalf("authorization header = %q", got.Headers["Authorization"])
	}
	if got.Headers["X-Warp-Experiment-Id"] == "" {
		t.Fatal("experiment id not set")
	}

	// Each injected request gets a fresh experiment id.
	second := hooks.OnRequest(&Request{URL: "https://app.warp.dev/graphql/v2"})
	if second.Headers["X-Warp-Experiment-Id"] == got.Headers["X-Warp-Experiment-Id"] {
		t.Fatal("experiment id reused across requests")
	}
}

func TestOnRequest_ForeignHostPassesThrough(t *testing.T) {
	hooks := NewHooks(&staticTokens{token: &oauth2.Token{AccessToken: "T1"}}, &inspectorSpy{}, "")

	req := &Request{URL: "https://example.com/api", Headers: map[string]string{"X-Keep": "1"}}
	got := hooks.OnRequest(req)

	if got.Headers["Authorization"] != "" {
		t.Fatal("foreign host must not receive credentials")
	}
	if got.Headers["X-Keep"] != "1" {
		t.Fatal("existing headers dropped")
	}
}

func TestOnRequest_NoUsableTokenPassesThrough(t *testing.T) {
	hooks := NewHooks(&staticTokens{err: errors.New("no active account")}, &inspectorSpy{}, "")

	got := hooks.OnRequest(&Request{URL: "https://app.warp.dev/ai/multi-agent"})
	if len(got.Headers) != 0 {
		t.Fatalf("headers injected without a token: %v", got.Headers)
	}
}

func TestOnResponse_DelegatesAndReturnsUnchanged(t *testing.T) {
	spy := &inspectorSpy{}
	hooks := NewHooks(&staticTokens{}, spy, "")

	req := &Request{URL: "https://app.warp.dev/graphql/v2"}
	resp := &Response{StatusCode: 403, Body: "account banned"}
	got := hooks.OnResponse(resp, req)

	if got != resp {
		t.Fatal("response was replaced")
	}
	if got.StatusCode != 403 || got.Body != "account banned" {
		t.Fatalf("response mutated: %+v", got)
	}
	if spy.resp != resp || spy.req != req {
		t.Fatal("inspector not invoked with the intercepted pair")
	}
}

func TestOnResponse_NilPairsAreIgnored(t *testing.T) {
	spy := &inspectorSpy{}
	hooks := NewHooks(&staticTokens{}, spy, "")

	if got := hooks.OnResponse(nil, &Request{}); got != nil {
		t.Fatal("nil response must stay nil")
	}
	if spy.resp != nil {
		t.Fatal("inspector invoked for nil response")
	}
}
