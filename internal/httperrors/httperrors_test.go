package httperrors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRespondUnauthorized(t *testing.T) {
	t.Run("default message", func(t *testing.T) {
		c, w := setupContext()
		RespondUnauthorized(c, "")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, MsgUnauthorized, resp.Error)
		assert.Equal(t, CodeUnauthorized, resp.Code)
	})

	t.Run("custom message", func(t *testing.T) {
		c, w := setupContext()
		RespondUnauthorized(c, MsgMissingCredentials)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, MsgMissingCredentials, resp.Error)
	})
}

func TestRespondInvalidToken(t *testing.T) {
	c, w := setupContext()
	RespondInvalidToken(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, MsgInvalidToken, resp.Error)
	assert.Equal(t, CodeInvalidToken, resp.Code)
}

func TestRespondBadRequest(t *testing.T) {
	c, w := setupContext()
	RespondBadRequest(c, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, MsgBadRequest, resp.Error)
	assert.Equal(t, CodeBadRequest, resp.Code)
}

func TestRespondInternalError(t *testing.T) {
	c, w := setupContext()
	RespondInternalError(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, MsgInternalError, resp.Error)
	// The generic message must never leak internals
	assert.NotContains(t, resp.Error, "mongo")
	assert.NotContains(t, resp.Error, "panic")
}

func TestRespondServiceUnavailable(t *testing.T) {
	c, w := setupContext()
	RespondServiceUnavailable(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, CodeServiceUnavailable, resp.Code)
}

func TestRespondNotFound(t *testing.T) {
	t.Run("default message", func(t *testing.T) {
		c, w := setupContext()
		RespondNotFound(c, "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, MsgResourceNotFound, resp.Error)
	})

	t.Run("chat not found", func(t *testing.T) {
		c, w := setupContext()
		RespondNotFound(c, MsgChatNotFound)

		assert.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, MsgChatNotFound, resp.Error)
		assert.Equal(t, CodeNotFound, resp.Code)
	})
}
