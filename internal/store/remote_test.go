package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/auth"
	"gitlab.com/dirk.krummacker/qrinfo-service/pkg/model"
)

// fakeAPI imitates the REST API of the service on top of a local backend and records the
// requests it receives.
type fakeAPI struct {
	backend  *LocalStore
	password string

	mu       sync.Mutex
	requests []string
}

func newFakeAPI(password string) *fakeAPI {
	return &fakeAPI{backend: NewLocalStore(NewMemoryMedium()), password: password}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /persons", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		persons, _ := f.backend.ListAll(r.Context())
		SortByCreatedAtDesc(persons)
		writeJSON(w, http.StatusOK, persons)
	})
	mux.HandleFunc("POST /persons", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if !f.authorized(w, r) {
			return
		}
		var p model.Person
		json.NewDecoder(r.Body).Decode(&p)
		f.backend.Save(r.Context(), &p)
		writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
	})
	mux.HandleFunc("GET /persons/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		p, _ := f.backend.GetByID(r.Context(), r.PathValue("id"))
		if p == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
			return
		}
		writeJSON(w, http.StatusOK, p)
	})
	mux.HandleFunc("PUT /persons/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if !f.authorized(w, r) {
			return
		}
		var p model.Person
		json.NewDecoder(r.Body).Decode(&p)
		p.ID = r.PathValue("id")
		f.backend.Save(r.Context(), &p)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})
	mux.HandleFunc("POST /admin/login", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var req struct {
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password != f.password {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Incorrect password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})
	mux.HandleFunc("DELETE /persons/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if !f.authorized(w, r) {
			return
		}
		f.backend.DeleteByID(r.Context(), r.PathValue("id"))
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})
	return mux
}

func (f *fakeAPI) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
}

func (f *fakeAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get(auth.HeaderAdminPassword) != f.password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// startFakeAPI runs a fake API and returns it together with a remote store pointing to it.
func startFakeAPI(t *testing.T) (*fakeAPI, *RemoteStore) {
	api := newFakeAPI("adminadmin")
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)
	return api, NewRemoteStore(server.URL+"/", WithAdminPassword("adminadmin"))
}

// TestRemoteStoreRoundTrip verifies save, get, replace, list and delete against the API.
func TestRemoteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	api, s := startFakeAPI(t)

	p := newPerson("1", "2024-01-01T00:00:00Z")
	require.NoError(t, s.Save(ctx, &p))
	got, err := s.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, p, *got)

	replacement := newPerson("1", "2024-01-01T00:00:00Z")
	replacement.Name = "A2"
	replacement.Address = nil
	require.NoError(t, s.Save(ctx, &replacement))
	got, err = s.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "A2", got.Name)
	assert.Nil(t, got.Address)

	second := newPerson("2", "2024-02-01T00:00:00Z")
	require.NoError(t, s.Save(ctx, &second))
	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].ID)

	require.NoError(t, s.DeleteByID(ctx, "1"))
	require.NoError(t, s.DeleteByID(ctx, "999"))
	got, err = s.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Equal(t, []string{
		"GET /persons/1", "POST /persons",
		"GET /persons/1",
		"GET /persons/1", "PUT /persons/1",
		"GET /persons/1",
		"GET /persons/2", "POST /persons",
		"GET /persons",
		"DELETE /persons/1",
		"DELETE /persons/999",
		"GET /persons/1",
	}, api.requests)
}

// TestRemoteStoreSaveWithoutID verifies that a record without id is posted with a fresh id.
func TestRemoteStoreSaveWithoutID(t *testing.T) {
	ctx := context.Background()
	api, s := startFakeAPI(t)
	p := newPerson("", "")
	require.NoError(t, s.Save(ctx, &p))
	assert.NotEmpty(t, p.ID)
	assert.NotEmpty(t, p.CreatedAt)
	assert.Equal(t, []string{"POST /persons"}, api.requests)

	got, err := s.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, *got)
}

// TestRemoteStoreNonSuccessStatus verifies that error answers become StorageErrors carrying the
// status code and the body.
func TestRemoteStoreNonSuccessStatus(t *testing.T) {
	api := newFakeAPI("adminadmin")
	server := httptest.NewServer(api.handler())
	defer server.Close()
	s := NewRemoteStore(server.URL, WithAdminPassword("wrong"))

	err := s.DeleteByID(context.Background(), "1")
	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, http.StatusUnauthorized, storageErr.StatusCode)
	assert.Equal(t, `{"error":"Unauthorized"}`, storageErr.Body)
	assert.Equal(t, `delete: status 401: {"error":"Unauthorized"}`, err.Error())
}

// TestRemoteStoreServerError verifies that a 500 answer is not mistaken for an absent record.
func TestRemoteStoreServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "connection refused"})
	}))
	defer server.Close()
	s := NewRemoteStore(server.URL)

	_, err := s.GetByID(context.Background(), "1")
	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, http.StatusInternalServerError, storageErr.StatusCode)

	_, err = s.ListAll(context.Background())
	require.True(t, errors.As(err, &storageErr))
}

// TestRemoteStoreNetworkFailure verifies that an unreachable server yields a StorageError that
// wraps the transport error.
func TestRemoteStoreNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	s := NewRemoteStore(url)

	_, err := s.ListAll(context.Background())
	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Zero(t, storageErr.StatusCode)
	assert.NotNil(t, storageErr.Unwrap())
}

// TestRemoteStoreCancelledContext verifies that a cancelled context aborts the request.
func TestRemoteStoreCancelledContext(t *testing.T) {
	_, s := startFakeAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ListAll(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

// TestRemoteStoreVerifyPassword verifies the login call for right and wrong passwords.
func TestRemoteStoreVerifyPassword(t *testing.T) {
	ctx := context.Background()
	_, s := startFakeAPI(t)

	ok, err := s.VerifyPassword(ctx, "adminadmin")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.VerifyPassword(ctx, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestRemoteStoreSessionPassword verifies that mutating requests carry the password of the
// session and are refused after its logout.
func TestRemoteStoreSessionPassword(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI("adminadmin")
	server := httptest.NewServer(api.handler())
	defer server.Close()
	session := auth.NewGate("adminadmin").NewSession()
	require.True(t, session.Login("adminadmin"))
	s := NewRemoteStore(server.URL, WithSession(session), WithAdminPassword("ignored"))

	p := newPerson("1", "2024-01-01T00:00:00.000Z")
	require.NoError(t, s.Save(ctx, &p))

	session.Logout()
	err := s.DeleteByID(ctx, "1")
	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, http.StatusUnauthorized, storageErr.StatusCode)

	got, err := s.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
