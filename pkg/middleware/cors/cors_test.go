package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(origins []string, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.Any("/rosters", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(method, "/rosters", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	w := serve([]string{"https://coordinator.example/"}, http.MethodGet, "https://coordinator.example")
	assert.Equal(t, "https://coordinator.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	w := serve([]string{"https://coordinator.example"}, http.MethodGet, "https://evil.example")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	w := serve(nil, http.MethodOptions, "https://any.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://any.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardSubdomain(t *testing.T) {
	origins := []string{"https://*.care.example"}

	w := serve(origins, http.MethodGet, "https://ward3.care.example")
	assert.Equal(t, "https://ward3.care.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(origins, http.MethodGet, "https://care.example")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(origins, http.MethodGet, "http://ward3.care.example")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSStarEntryAllowsAll(t *testing.T) {
	w := serve([]string{"*"}, http.MethodGet, "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
