package vm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r recorded)) (*httptest.Server, *[]recorded) {
	t.Helper()

	var requests []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if r.ContentLength > 0 {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		requests = append(requests, rec)
		handler(w, rec)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestNew_CreatesComputer(t *testing.T) {
	srv, requests := newTestServer(t, func(w http.ResponseWriter, r recorded) {
		if r.path == "/computers" {
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "pc-1"})
		}
	})

	c, err := New(t.Context(), Config{BaseURL: srv.URL, APIKey: "key", ProjectID: "proj"})
	require.NoError(t, err)

	assert.Equal(t, "pc-1", c.ID())
	require.Len(t, *requests, 1)
	assert.Equal(t, "Bearer key", (*requests)[0].auth)
	assert.Equal(t, "proj", (*requests)[0].body["project_id"])
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(t.Context(), Config{ComputerID: "pc"})
	require.Error(t, err)
}

func TestClient_Primitives(t *testing.T) {
	srv, requests := newTestServer(t, func(w http.ResponseWriter, r recorded) {
		if r.path == "/computers/pc-9/screenshot" {
			_ = json.NewEncoder(w).Encode(map[string]string{"image": "abc"})
		}
	})

	c, err := New(t.Context(), Config{BaseURL: srv.URL + "/", APIKey: "key", ComputerID: "pc-9"})
	require.NoError(t, err)
	ctx := t.Context()

	img, err := c.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", img)

	require.NoError(t, c.DoubleClick(ctx, 10, 20))
	require.NoError(t, c.Scroll(ctx, "up", 3))
	require.NoError(t, c.Key(ctx, "Enter"))

	reqs := *requests
	require.Len(t, reqs, 4)
	assert.Equal(t, "/computers/pc-9/click", reqs[1].path)
	assert.Equal(t, true, reqs[1].body["double"])
	assert.InDelta(t, 10, reqs[1].body["x"], 0)
	assert.Equal(t, "up", reqs[2].body["direction"])
	assert.Equal(t, "Enter", reqs[3].body["key"])
}

func TestClient_APIError(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, _ recorded) {
		http.Error(w, "machine asleep", http.StatusServiceUnavailable)
	})

	c, err := New(t.Context(), Config{BaseURL: srv.URL, APIKey: "key", ComputerID: "pc"})
	require.NoError(t, err)

	err = c.Type(t.Context(), "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "machine asleep", apiErr.Message)
}
