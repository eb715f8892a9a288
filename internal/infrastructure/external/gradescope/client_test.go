package gradescope

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeGradescope struct {
	signIns    int
	extensions map[string][]extensionRequest
	failTarget string
}

func newFakeGradescope() *fakeGradescope {
	return &fakeGradescope{extensions: make(map[string][]extensionRequest)}
}

func (f *fakeGradescope) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/user_session":
			f.signIns++
			var req sessionRequest
			raw, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(raw, &req))
			assert.Equal(t, "staff@berkeley.edu", req.Email)
			_ = json.NewEncoder(w).Encode(sessionResponse{Token: "session-token"})

		default:
			assert.Equal(t, "Bearer session-token", r.Header.Get("Authorization"))
			if r.URL.Path == f.failTarget {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			var req extensionRequest
			raw, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(raw, &req))
			f.extensions[r.URL.Path] = append(f.extensions[r.URL.Path], req)
			w.WriteHeader(http.StatusOK)
		}
	}
}

func newTestClient(serverURL string) *Client {
	cfg := DefaultClientConfig("staff@berkeley.edu", "password")
	cfg.BaseURL = serverURL
	return NewClient(cfg)
}

func TestApply(t *testing.T) {
	fake := newFakeGradescope()
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(server.URL)
	targets := []string{
		server.URL + "/courses/1/assignments/11",
		server.URL + "/courses/1/assignments/12/",
	}

	warnings, err := client.Apply(context.Background(), targets, "alice@berkeley.edu", 3)
	assert.NoError(t, err)
	assert.Empty(t, warnings)

	ext := fake.extensions["/courses/1/assignments/11/extensions"]
	assert.Len(t, ext, 1)
	assert.Equal(t, "alice@berkeley.edu", ext[0].UserEmail)
	assert.Equal(t, 3, ext[0].ExtraDays)

	// A trailing slash on the target must not double up.
	assert.Len(t, fake.extensions["/courses/1/assignments/12/extensions"], 1)
}

func TestApplyReusesSession(t *testing.T) {
	fake := newFakeGradescope()
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(server.URL)
	target := []string{server.URL + "/courses/1/assignments/11"}

	_, err := client.Apply(context.Background(), target, "alice@berkeley.edu", 2)
	assert.NoError(t, err)
	_, err = client.Apply(context.Background(), target, "bob@berkeley.edu", 2)
	assert.NoError(t, err)
	assert.Equal(t, 1, fake.signIns)
}

func TestApplyPerTargetFailureIsWarning(t *testing.T) {
	fake := newFakeGradescope()
	fake.failTarget = "/courses/1/assignments/11/extensions"
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(server.URL)
	targets := []string{
		server.URL + "/courses/1/assignments/11",
		server.URL + "/courses/1/assignments/12",
	}

	warnings, err := client.Apply(context.Background(), targets, "alice@berkeley.edu", 3)
	assert.NoError(t, err)
	assert.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Failed to create Gradescope assignment extension for alice@berkeley.edu")

	// The healthy target still got its extension.
	assert.Len(t, fake.extensions["/courses/1/assignments/12/extensions"], 1)
}

func TestApplySignInFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Apply(context.Background(),
		[]string{server.URL + "/courses/1/assignments/11"}, "alice@berkeley.edu", 3)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to sign in")
}
