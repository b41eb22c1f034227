package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRegisterRoutes(t *testing.T) {
	handler := NewHandler(zerolog.New(nil).Level(zerolog.Disabled))

	router := chi.NewRouter()
	assert.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	})

	// Routed paths answer something other than 404.
	for _, path := range []string{"/risk/metrics", "/risk/var", "/risk/correlation", "/risk/drawdown"} {
		req := httptest.NewRequest("POST", path, strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.NotEqual(t, http.StatusNotFound, w.Code, "path %s should be routed", path)
	}
}
