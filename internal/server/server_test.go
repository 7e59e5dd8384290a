package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/hmo-assistant/internal/dialogue"
	"github.com/tjfontaine/hmo-assistant/internal/domain"
	"github.com/tjfontaine/hmo-assistant/internal/retrieval"
)

// =============================================================================
// Middleware
// =============================================================================

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated", "", false},
		{"caller uuid kept", "6f1c1c1e-8b9b-4a4e-9f7c-2d6f1e0b6a11", true},
		{"garbage replaced", "not-a-uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if seen == "" {
				t.Fatal("no request ID in context")
			}
			if got := rec.Header().Get(RequestIDHeader); got != seen {
				t.Errorf("header = %q, context = %q", got, seen)
			}
			if tt.keep && seen != tt.incoming {
				t.Errorf("request ID = %q, want caller's %q", seen, tt.incoming)
			}
			if !tt.keep && seen == tt.incoming {
				t.Errorf("request ID %q should have been replaced", seen)
			}
		})
	}
}

func TestRequestIDMiddleware_UniqueIDs(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	ids := make(map[string]bool)
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		id := rec.Header().Get(RequestIDHeader)
		if ids[id] {
			t.Fatalf("duplicate request ID %q", id)
		}
		ids[id] = true
	}
}

func TestGetRequestID_NotSet(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("sets deadline", func(t *testing.T) {
		var ok bool
		handler := TimeoutMiddleware(30 * time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok = r.Context().Deadline()
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
		if !ok {
			t.Error("context has no deadline")
		}
	})

	t.Run("cancels", func(t *testing.T) {
		cancelled := false
		handler := TimeoutMiddleware(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
				cancelled = true
			case <-time.After(time.Second):
			}
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
		if !cancelled {
			t.Error("context was not cancelled")
		}
	})

	t.Run("zero disables", func(t *testing.T) {
		var ok bool
		handler := TimeoutMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok = r.Context().Deadline()
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
		if ok {
			t.Error("zero timeout set a deadline")
		}
	})
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"ok", http.StatusOK, "level=INFO"},
		{"client error", http.StatusUnprocessableEntity, "level=WARN"},
		{"server error", http.StatusServiceUnavailable, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf strings.Builder
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				AddLogField(r.Context(), "stage", "await_tier")
				AddLogField(r.Context(), "ignored", "")
				AddError(r.Context(), errors.New("boom"))
				AddError(r.Context(), nil)
				w.WriteHeader(tt.status)
			})
			handler := RequestIDMiddleware(LoggingMiddleware(logger)(inner))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/turn", nil))

			out := buf.String()
			for _, want := range []string{"request completed", "/v1/turn", "stage=await_tier", "error=boom", tt.wantLevel} {
				if !strings.Contains(out, want) {
					t.Errorf("log output missing %q:\n%s", want, out)
				}
			}
			if strings.Contains(out, "ignored") {
				t.Errorf("empty field was logged:\n%s", out)
			}
		})
	}
}

func TestAddLogField_NoContext(t *testing.T) {
	// Must not panic outside LoggingMiddleware.
	AddLogField(context.Background(), "key", "value")
	AddError(context.Background(), errors.New("x"))
}

// =============================================================================
// Handlers
// =============================================================================

type fakeTurns struct {
	resp *dialogue.TurnResponse
	err  error
	got  dialogue.TurnRequest
}

func (f *fakeTurns) HandleTurn(ctx context.Context, req dialogue.TurnRequest) (*dialogue.TurnResponse, error) {
	f.got = req
	return f.resp, f.err
}

func newTestServer(turns TurnHandler, store *retrieval.Store) *Server {
	s := New(0, 5*time.Second, slog.New(slog.DiscardHandler))
	NewHandlers(turns, store, nil).Mount(s.Router)
	return s
}

func loadedStore(t *testing.T) *retrieval.Store {
	t.Helper()
	ix, err := retrieval.NewIndex(
		[]domain.KnowledgeChunk{{Text: "a"}, {Text: "b"}},
		[][]float32{{1, 0, 0}, {0, 1, 0}},
		retrieval.Meta{BuildID: "build-1"},
	)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	store := retrieval.NewStore()
	store.Swap(ix)
	return store
}

func TestHandleTurn(t *testing.T) {
	turns := &fakeTurns{resp: &dialogue.TurnResponse{
		Reply:    "What is your tier?",
		Provider: domain.ProviderMaccabi,
		Stage:    domain.StageAwaitTier.String(),
		Phase:    domain.PhaseCollecting,
		History:  []domain.Message{},
	}}
	s := newTestServer(turns, loadedStore(t))

	body := `{"language":"en","provider":"","message":"Maccabi","history":[]}`
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/turn", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if turns.got.Message != "Maccabi" || turns.got.Language != "en" {
		t.Errorf("HandleTurn got %+v", turns.got)
	}

	var resp dialogue.TurnResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Provider != domain.ProviderMaccabi || resp.Stage != "await_tier" {
		t.Errorf("response = %+v", resp)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request ID header")
	}
}

func TestHandleTurn_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest, "validation_error"},
		{"validation", `{}`, domain.ErrValidation("bad language").WithField("language"), http.StatusBadRequest, "validation_error"},
		{"invalid identity", `{}`, domain.ErrInvalidIdentity("HMO must be one of: Maccabi, Meuhedet, Clalit."), http.StatusUnprocessableEntity, "invalid_identity"},
		{"not ready", `{}`, domain.ErrRetrievalUnavailable("knowledge index is not loaded", nil), http.StatusServiceUnavailable, "retrieval_unavailable"},
		{"unexpected", `{}`, errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
		{"deadline", `{}`, context.DeadlineExceeded, http.StatusGatewayTimeout, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeTurns{err: tt.err}, loadedStore(t))

			rec := httptest.NewRecorder()
			s.Router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/turn", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body struct {
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Error.Type != tt.wantType {
				t.Errorf("error type = %q, want %q", body.Error.Type, tt.wantType)
			}
			if strings.Contains(body.Error.Message, "disk on fire") {
				t.Error("internal error detail leaked")
			}
		})
	}
}

func TestHandleTurn_NotReadyEndToEnd(t *testing.T) {
	store := retrieval.NewStore()
	orch := dialogue.New(nil, retrieval.NewRetriever(store, nil, 5, nil), nil, nil, nil)
	s := newTestServer(orch, store)

	body := `{"language":"en","provider":"Maccabi","tier":"Gold","confirmed":true,"message":"What is covered?"}`
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/turn", strings.NewReader(body)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503: %s", rec.Code, rec.Body)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	t.Run("healthz", func(t *testing.T) {
		s := newTestServer(&fakeTurns{}, retrieval.NewStore())
		rec := httptest.NewRecorder()
		s.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("readyz not loaded", func(t *testing.T) {
		s := newTestServer(&fakeTurns{}, retrieval.NewStore())
		rec := httptest.NewRecorder()
		s.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("readyz loaded", func(t *testing.T) {
		s := newTestServer(&fakeTurns{}, loadedStore(t))
		rec := httptest.NewRecorder()
		s.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var got readiness
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got.Chunks != 2 || got.Dimension != 3 || got.BuildID != "build-1" {
			t.Errorf("readiness = %+v", got)
		}
	})
}
