package worker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialResolver_Resolve(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body sessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body.Session.Username)

		var resp sessionResponse
		resp.Session.Token = "tok-abc"
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/credentials/api_key", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
		var resp credentialResponse
		resp.Credential.Value = "s3cr3t"
		json.NewEncoder(w).Encode(resp)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	resolver := NewCredentialResolver(server.URL, "alice", "hunter2")
	value, err := resolver.Resolve("api_key", "vault")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", value)
}

func TestCredentialResolver_SessionFailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	resolver := NewCredentialResolver(server.URL, "alice", "wrong")
	_, err := resolver.Resolve("api_key", "vault")
	assert.Error(t, err)
}

func TestCredentialResolver_CredentialFetchFailurePropagates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		var resp sessionResponse
		resp.Session.Token = "tok-abc"
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/credentials/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	resolver := NewCredentialResolver(server.URL, "alice", "hunter2")
	_, err := resolver.Resolve("missing", "vault")
	assert.Error(t, err)
}
