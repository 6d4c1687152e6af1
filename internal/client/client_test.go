package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement/internal/client"
)

func TestPostUpdateSendsTokenAndPayload(t *testing.T) {
	var got struct {
		Update       map[string]any `json:"update"`
		AlwaysCreate bool           `json:"alwaysCreate"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/updates", r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"operation":"added","id":"u1"}`))
	}))
	defer srv.Close()

	c := client.NewClient(srv.URL + "/")
	res, err := c.PostUpdate(context.Background(), "s3cret", map[string]any{"type": "insights"}, true)
	require.NoError(t, err)
	assert.Equal(t, client.PushResult{Operation: "added", ID: "u1"}, res)
	assert.Equal(t, "insights", got.Update["type"])
	assert.True(t, got.AlwaysCreate)
}

func TestPostUpdateDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"update validation failed: title: is required","code":400,"status":"invalid-argument","details":[{"field":"title","reason":"is required"}]}`))
	}))
	defer srv.Close()

	_, err := client.NewClient(srv.URL).PostUpdate(context.Background(), "t", map[string]any{}, false)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	assert.Equal(t, "invalid-argument", apiErr.Status)
	require.Len(t, apiErr.Details, 1)
	assert.Equal(t, "title", apiErr.Details[0].Field)

	assert.Equal(t, "Error: The update payload was rejected.\n  title: is required", client.FormatError(err))
}

func TestPostUpdateNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := client.NewClient(srv.URL).PostUpdate(context.Background(), "t", map[string]any{}, false)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "bad gateway", apiErr.Message)
	assert.Equal(t, "Error: api error (502): bad gateway", client.FormatError(err))
}

func TestFormatError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("open token.txt: no such file"), "Error: open token.txt: no such file"},
		{
			"permission",
			&client.APIError{HTTPStatus: 403, Status: "permission-denied", Message: "permission denied: invalid or expired token"},
			"Error: The API token is invalid, expired or lacks permission to post updates.",
		},
		{
			"invalid without details",
			&client.APIError{HTTPStatus: 400, Status: "invalid-argument", Message: "invalid JSON body"},
			"Error: The update payload was rejected.\n  invalid JSON body",
		},
		{
			"unknown status",
			&client.APIError{HTTPStatus: 418, Status: "teapot", Message: "short and stout"},
			"Error: api error (418 teapot): short and stout",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, client.FormatError(tc.err))
		})
	}
}
