package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pratik-mahalle/changewatch/internal/auth"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func TestRequireUser(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{name: "present", header: "user-42", wantStatus: http.StatusNoContent, wantUser: "user-42"},
		{name: "trimmed", header: "  user-42 ", wantStatus: http.StatusNoContent, wantUser: "user-42"},
		{name: "missing", header: "", wantStatus: http.StatusUnauthorized},
		{name: "blank", header: "   ", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser string
			h := RequireUser("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = GetUserID(r)
				okHandler(w, r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/monitors", nil)
			if tt.header != "" {
				req.Header.Set(UserIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("RequireUser() status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotUser != tt.wantUser {
				t.Errorf("GetUserID() = %q, want %q", gotUser, tt.wantUser)
			}
		})
	}
}

func TestRequireUser_BearerToken(t *testing.T) {
	valid, err := auth.MintToken("user-7", "s3cret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	forged, _ := auth.MintToken("user-7", "guess", time.Hour)

	tests := []struct {
		name          string
		authorization string
		header        string
		wantStatus    int
		wantUser      string
	}{
		{name: "valid token", authorization: "Bearer " + valid, wantStatus: http.StatusNoContent, wantUser: "user-7"},
		{name: "lowercase scheme", authorization: "bearer " + valid, wantStatus: http.StatusNoContent, wantUser: "user-7"},
		{name: "forged token", authorization: "Bearer " + forged, wantStatus: http.StatusUnauthorized},
		{name: "header ignored", header: "user-7", wantStatus: http.StatusUnauthorized},
		{name: "basic auth", authorization: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser string
			h := RequireUser("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = GetUserID(r)
				okHandler(w, r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/monitors", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			if tt.header != "" {
				req.Header.Set(UserIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("RequireUser() status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotUser != tt.wantUser {
				t.Errorf("GetUserID() = %q, want %q", gotUser, tt.wantUser)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(1, 2)(http.HandlerFunc(okHandler))

	send := func(user, addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if user != "" {
			req.Header.Set(UserIDHeader, user)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if got := send("alice", "10.0.0.1:1000"); got != http.StatusNoContent {
			t.Fatalf("request %d status = %d, want within burst", i, got)
		}
	}
	if got := send("alice", "10.0.0.1:1000"); got != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want %d", got, http.StatusTooManyRequests)
	}
	// other users have their own bucket
	if got := send("bob", "10.0.0.1:1000"); got != http.StatusNoContent {
		t.Errorf("other user status = %d, want %d", got, http.StatusNoContent)
	}
	// anonymous callers are keyed by host, not port
	send("", "10.0.0.2:1")
	send("", "10.0.0.2:2")
	if got := send("", "10.0.0.2:3"); got != http.StatusTooManyRequests {
		t.Errorf("anonymous status = %d, want %d", got, http.StatusTooManyRequests)
	}

	unlimited := RateLimit(0, 0)(http.HandlerFunc(okHandler))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		unlimited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("disabled limiter status = %d", rec.Code)
		}
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("RequestID() = %q, header %q, want propagated id", seen, rec.Header().Get(RequestIDHeader))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "abc-123" {
		t.Errorf("RequestID() = %q, want generated id", seen)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Recovery() status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
