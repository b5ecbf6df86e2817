package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(origins []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	called := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(method, "/api/chat", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, called
}

func TestCORSExplicitOrigin(t *testing.T) {
	rr, called := serveCORS([]string{"http://localhost:3000"}, http.MethodPost, "http://localhost:3000")
	if !called {
		t.Fatal("expected next handler to run")
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials for explicit origin")
	}
	if rr.Header().Get("Vary") != "Origin" {
		t.Fatalf("expected Vary: Origin, got %q", rr.Header().Get("Vary"))
	}
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	rr, _ := serveCORS([]string{"*"}, http.MethodGet, "https://evil.example.com")
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://evil.example.com" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatal("wildcard match must not allow credentials")
	}
}

func TestCORSUnknownOrigin(t *testing.T) {
	rr, called := serveCORS([]string{"http://localhost:3000"}, http.MethodGet, "https://other.example.com")
	if !called {
		t.Fatal("expected next handler to run")
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected allow-origin for unknown origin")
	}
}

func TestCORSPreflight(t *testing.T) {
	rr, called := serveCORS([]string{"http://localhost:5173"}, http.MethodOptions, "http://localhost:5173")
	if called {
		t.Fatal("preflight must not reach next handler")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Fatal("expected allow-headers on preflight")
	}
}
