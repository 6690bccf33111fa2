package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/care-roster-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestErrorIncludesMeta(t *testing.T) {
	c, w := newContext()
	Error(c, appErrors.Clone(appErrors.ErrConflict, "worker w1 is double booked"), map[string]interface{}{"violation": map[string]string{"reason": "same_day"}})

	require.Equal(t, http.StatusConflict, w.Code)
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Meta map[string]map[string]string `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CONFLICT", body.Error.Code)
	assert.Equal(t, "worker w1 is double booked", body.Error.Message)
	assert.Equal(t, "same_day", body.Meta["violation"]["reason"])
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestErrorHidesUntypedCauses(t *testing.T) {
	c, w := newContext()
	Error(c, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestAttachment(t *testing.T) {
	c, w := newContext()
	Attachment(c, "roster-2025-06.csv", "text/csv; charset=utf-8", []byte("date\n"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="roster-2025-06.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "date\n", w.Body.String())
}
