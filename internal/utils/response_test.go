package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusForbidden, "forbidden", "not the event owner")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "forbidden", body.Message)
	assert.Equal(t, "not the event owner", body.Error)
	assert.False(t, body.Timestamp.IsZero())
}

func TestSuccessResponse(t *testing.T) {
	resp := SuccessResponse("ok", map[string]int{"attendedCount": 3})
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	assert.NotNil(t, resp.Data)
}
