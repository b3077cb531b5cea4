package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := wrapResponseWriter(w)

	if rw.status != http.StatusOK {
		t.Errorf("Expected initial status %d, got %d", http.StatusOK, rw.status)
	}

	rw.WriteHeader(http.StatusNotFound)
	if rw.status != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, rw.status)
	}

	// second WriteHeader is ignored
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.status != http.StatusNotFound {
		t.Errorf("Expected status to remain %d, got %d", http.StatusNotFound, rw.status)
	}
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/api/v1/campaigns/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	for _, id := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	c := m.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/campaigns/{id}", "202")
	if v := counterValue(t, c); v != 3 {
		t.Errorf("Expected 3 requests on route pattern, got %f", v)
	}
}

func TestHTTPMiddlewareWithoutGlobal(t *testing.T) {
	called := false
	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("next handler not called")
	}
}

func TestResponseWriterFlush(t *testing.T) {
	w := httptest.NewRecorder()
	var rw http.ResponseWriter = wrapResponseWriter(w)

	f, ok := rw.(http.Flusher)
	if !ok {
		t.Fatal("wrapped writer is not a Flusher")
	}
	f.Flush()
	if !w.Flushed {
		t.Error("Flush not forwarded")
	}
}
