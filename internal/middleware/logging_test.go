package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/benvon/todo-digest/internal/services/ai"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
	}{
		{"GET request", http.MethodGet, "/api/v1/todos", http.StatusOK},
		{"POST request", http.MethodPost, "/api/v1/todos/generate/async", http.StatusAccepted},
		{"error status", http.MethodGet, "/api/v1/todos", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := mux.NewRouter()
			r.Use(Logging(nil))
			r.HandleFunc(tt.path, func(w http.ResponseWriter, r *http.Request) {
				if got := routeTemplate(r); got != tt.path {
					t.Errorf("Expected route template %q, got %q", tt.path, got)
				}
				w.WriteHeader(tt.handlerStatus)
			})

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))

			if rr.Code != tt.handlerStatus {
				t.Errorf("Expected status %d, got %d", tt.handlerStatus, rr.Code)
			}
		})
	}
}

func TestLoggingResponseWriter_FirstStatusWins(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	_, _ = rw.Write([]byte("partial"))
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected implicit 200 to stick, got %d", rw.statusCode)
	}
}

func TestLoggingResponseWriter_SupportsStreaming(t *testing.T) {
	t.Parallel()

	handler := Logging(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("Expected wrapped writer to implement http.Flusher")
		}
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("Expected ResponseController flush to succeed: %v", err)
		}
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stream", nil))

	if !rr.Flushed {
		t.Error("Expected response to be flushed")
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
	}{
		{"generated when absent", ""},
		{"propagated when present", "req-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var fromCtx string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fromCtx = ai.ExtractRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			header := rr.Header().Get(RequestIDHeader)
			if header == "" || header != fromCtx {
				t.Errorf("Expected matching request id in header and context, got %q and %q", header, fromCtx)
			}
			if tt.incoming != "" && header != tt.incoming {
				t.Errorf("Expected incoming id %q to be kept, got %q", tt.incoming, header)
			}
		})
	}
}
