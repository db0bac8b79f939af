package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		data     any
		wantCode int
		wantBody string
	}{
		{
			name:     "object",
			code:     http.StatusOK,
			data:     map[string]string{"status": "ok"},
			wantCode: http.StatusOK,
			wantBody: `{"status":"ok"}`,
		},
		{
			name:     "empty list",
			code:     http.StatusOK,
			data:     []string{},
			wantCode: http.StatusOK,
			wantBody: `[]`,
		},
		{
			name:     "created",
			code:     http.StatusCreated,
			data:     map[string]string{"id": "3f1c"},
			wantCode: http.StatusCreated,
			wantBody: `{"id":"3f1c"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)

			JSON(w, r, tt.code, tt.data)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestJSON_NilBody(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusAccepted, nil)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestError(t *testing.T) {
	tests := []struct {
		name    string
		write   func(w http.ResponseWriter, r *http.Request)
		code    int
		wantErr string
	}{
		{
			name:    "not found",
			write:   func(w http.ResponseWriter, r *http.Request) { Error(w, r, http.StatusNotFound, "not found") },
			code:    http.StatusNotFound,
			wantErr: "not found",
		},
		{
			name:    "formatted",
			write:   func(w http.ResponseWriter, r *http.Request) { Errorf(w, r, http.StatusBadRequest, "unknown status %q", "done") },
			code:    http.StatusBadRequest,
			wantErr: `unknown status "done"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.code, w.Code)

			var got ErrorBody
			require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
			assert.Equal(t, tt.wantErr, got.Error)
		})
	}
}
