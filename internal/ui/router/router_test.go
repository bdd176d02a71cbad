package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/livetable/internal/pipeline"
	"github.com/leapstack-labs/livetable/internal/ui/notifier"
	"github.com/leapstack-labs/livetable/pkg/live"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptyCatalog struct{}

func (emptyCatalog) Nodes() []*pipeline.Node                 { return nil }
func (emptyCatalog) Model(string) (*live.Model[int64], bool) { return nil, false }

func TestSetupRoutes(t *testing.T) {
	tests := []struct {
		name       string
		isDev      bool
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "index", path: "/", wantStatus: http.StatusOK, wantBody: `<table id="snapshot">`},
		{name: "static asset", path: "/static/livetable.js", wantStatus: http.StatusOK, wantBody: "EventSource"},
		{name: "api", path: "/api/models", wantStatus: http.StatusOK, wantBody: "[]"},
		{name: "hot reload in dev", isDev: true, path: "/hotreload", wantStatus: http.StatusOK, wantBody: "OK"},
		{name: "no hot reload otherwise", path: "/hotreload", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			require.NoError(t, SetupRoutes(r, emptyCatalog{}, notifier.New(), nil, tt.isDev))

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestReloader_TriggerWakesEveryPage(t *testing.T) {
	rl := newReloader()
	a, b := rl.next(), rl.next()

	rec := httptest.NewRecorder()
	rl.trigger(rec, httptest.NewRequest(http.MethodGet, "/hotreload", nil))
	assert.Equal(t, "OK 0\n", rec.Body.String())

	for _, ch := range []<-chan struct{}{a, b} {
		select {
		case <-ch:
		default:
			t.Fatal("waiter not released")
		}
	}

	select {
	case <-rl.next():
		t.Fatal("a new waiter must block until the next trigger")
	default:
	}
}
