package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/api"
	"github.com/phrazzld/adscript-api/internal/api/shared"
	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/mocks"
	"github.com/phrazzld/adscript-api/internal/service"
	"github.com/stretchr/testify/require"
)

const (
	validScript  = "Buy our shoes today, they are comfy."
	validOutcome = "Make it punchier for a younger audience."
)

type taskFixture struct {
	store   *mocks.MockAdScriptTaskStore
	emitter *mocks.MockEventEmitter
	router  http.Handler
	userID  uuid.UUID
}

// newTaskFixture wires the handler to the real service over in-memory mocks.
// Requests are authenticated as fixture.userID unless anonymous is set.
func newTaskFixture(t *testing.T, anonymous bool) *taskFixture {
	t.Helper()

	f := &taskFixture{
		store:   mocks.NewMockAdScriptTaskStore(),
		emitter: &mocks.MockEventEmitter{},
		userID:  uuid.New(),
	}

	svc, err := service.NewAdScriptService(f.store, f.emitter, nil)
	require.NoError(t, err)
	h := api.NewAdScriptHandler(svc, nil)

	r := chi.NewRouter()
	r.Get("/api/ad-scripts/health", h.Health)
	r.Post("/api/ad-scripts/{id}/result", h.Result)
	r.Group(func(r chi.Router) {
		if !anonymous {
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					next.ServeHTTP(w, req.WithContext(shared.WithUserID(req.Context(), f.userID)))
				})
			})
		}
		r.Post("/api/ad-scripts", h.Store)
		r.Get("/api/ad-scripts", h.Index)
		r.Get("/api/ad-scripts/{id}", h.Show)
	})
	f.router = r
	return f
}

func (f *taskFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func seedTask(f *taskFixture, id int64, status domain.TaskStatus, createdAt time.Time) *domain.AdScriptTask {
	task := &domain.AdScriptTask{
		ID:                 id,
		ReferenceScript:    validScript,
		OutcomeDescription: validOutcome,
		Status:             status,
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}
	f.store.Put(task)
	return task
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}
