package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CredentialResolver fetches secrets from the backend credential service:
// it opens a session to get a bearer token, then fetches the credential by
// key. Implements job.CredentialResolver.
//
// No example repo in this corpus imports a dedicated REST client library
// for a two-call session-then-fetch shape like this, so it's built directly
// on net/http the way the teacher's cli.Consumer talks to CouchDB (see
// DESIGN.md).
type CredentialResolver struct {
	BackendURL string
	Username   string
	Password   string
	HTTPClient *http.Client
}

// NewCredentialResolver builds a resolver with a bounded request timeout.
func NewCredentialResolver(backendURL, username, password string) *CredentialResolver {
	return &CredentialResolver{
		BackendURL: backendURL,
		Username:   username,
		Password:   password,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type sessionRequest struct {
	Session struct {
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"session"`
}

type sessionResponse struct {
	Session struct {
		Token string `json:"token"`
	} `json:"session"`
}

type credentialResponse struct {
	Credential struct {
		Value string `json:"value"`
	} `json:"credential"`
}

// Resolve implements job.CredentialResolver. store is accepted for parity
// with the wire format but the backend's session token already scopes
// access; it is not otherwise used in the request.
func (r *CredentialResolver) Resolve(key, store string) (string, error) {
	token, err := r.openSession()
	if err != nil {
		return "", fmt.Errorf("opening credential session: %w", err)
	}

	value, err := r.fetchCredential(key, token)
	if err != nil {
		return "", fmt.Errorf("fetching credential %q: %w", key, err)
	}

	return value, nil
}

func (r *CredentialResolver) openSession() (string, error) {
	var body sessionRequest
	body.Session.Username = r.Username
	body.Session.Password = r.Password

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, r.BackendURL+"/sessions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	var decoded sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	return decoded.Session.Token, nil
}

func (r *CredentialResolver) fetchCredential(key, token string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, r.BackendURL+"/credentials/"+key, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	var decoded credentialResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	return decoded.Credential.Value, nil
}
