package ternsecure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func named(endpoint string) *EndpointFunc {
	return &EndpointFunc{Endpoint: endpoint, Fn: func(context.Context, *Call) *Response {
		return Success(map[string]any{"handler": endpoint})
	}}
}

func TestRegistryFirstMatchWins(t *testing.T) {
	first := named("sessions")
	second := named("sessions")
	r := NewRegistry(first, second, nil)

	if r.Len() != 2 {
		t.Fatalf("expected nil handler skipped, got %d handlers", r.Len())
	}
	if r.Resolve("sessions") != first {
		t.Fatal("expected earlier handler to win")
	}

	front := named("sessions")
	r.RegisterFirst(front)
	if r.Resolve("sessions") != front {
		t.Fatal("expected RegisterFirst to take precedence")
	}

	if !r.Remove(front) || r.Remove(front) {
		t.Fatal("expected remove to succeed once")
	}
	if r.Resolve("sessions") != first || r.Resolve("users") != nil {
		t.Fatal("unexpected resolution after remove")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(named("sessions"))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h := named("users")
			r.Register(h)
			r.Remove(h)
		}()
		go func() {
			defer wg.Done()
			if r.Resolve("sessions") == nil {
				t.Error("sessions handler lost")
			}
		}()
	}
	wg.Wait()
	if r.Len() != 1 {
		t.Fatalf("expected 1 handler, got %d", r.Len())
	}
}

func TestEngineCustomHandlerReceivesCall(t *testing.T) {
	var got *Call
	f := newFixture(t, nil, func(b *Builder) {
		b.WithHandler(&EndpointFunc{Endpoint: EndpointUsers, Fn: func(ctx context.Context, call *Call) *Response {
			got = call
			if rc, ok := RequestContextFrom(ctx); !ok || rc != call.Request {
				t.Error("request context not attached to ctx")
			}
			return Success(nil)
		}})
	})

	rec := f.do(http.MethodPost, "/api/auth/users", `{"name":"x"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got == nil || got.Body.Fields["name"] != "x" || got.Config.ProjectID != testProject || got.Cookies == nil {
		t.Fatalf("unexpected call %+v", got)
	}
}

func TestResponseWriteSkipsCookiesForCanceledRequest(t *testing.T) {
	resp := Success(nil)
	resp.SetCookie(&http.Cookie{Name: "a", Value: "1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

	rec := httptest.NewRecorder()
	if err := resp.write(rec, req); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("canceled request must not commit cookies")
	}

	rec = httptest.NewRecorder()
	_ = resp.write(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rec.Result().Cookies()) != 1 {
		t.Fatal("expected cookie on live request")
	}
}

func TestErrorCodeStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		CodeCORSOriginNotAllowed: http.StatusForbidden,
		CodeInvalidRoute:         http.StatusNotFound,
		CodeInvalidToken:         http.StatusBadRequest,
		CodeInvalidSession:       http.StatusUnauthorized,
		CodeRateLimited:          http.StatusTooManyRequests,
		CodeNotImplemented:       http.StatusNotImplemented,
		ErrorCode("UNKNOWN"):     http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := code.Status(); got != want {
			t.Fatalf("%s: expected %d, got %d", code, want, got)
		}
	}

	err := &APIError{Code: CodeRefreshFailed, Message: "m", Err: context.Canceled}
	if CodeOf(err) != CodeRefreshFailed || CodeOf(context.Canceled) != CodeInternal {
		t.Fatal("unexpected CodeOf")
	}
	if err.Response().Status != http.StatusInternalServerError {
		t.Fatal("unexpected response status")
	}
}
