package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.com/dirk.krummacker/qrinfo-service/internal/auth"
	"gitlab.com/dirk.krummacker/qrinfo-service/pkg/model"
)

// RemoteStore is the backend that delegates to the REST API of the service.
type RemoteStore struct {
	baseURL  string
	client   *http.Client
	password string
	session  *auth.Session
	now      func() time.Time
	logger   *slog.Logger
}

// RemoteOption configures a RemoteStore.
type RemoteOption func(*RemoteStore)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(s *RemoteStore) {
		s.client = client
	}
}

// WithAdminPassword makes mutating requests carry the admin password.
func WithAdminPassword(password string) RemoteOption {
	return func(s *RemoteStore) {
		s.password = password
	}
}

// WithSession makes mutating requests carry the password the session logged in with. After a
// logout they carry none, so the server refuses them.
func WithSession(session *auth.Session) RemoteOption {
	return func(s *RemoteStore) {
		s.session = session
	}
}

// WithRemoteClock replaces the clock used for ids and creation timestamps.
func WithRemoteClock(now func() time.Time) RemoteOption {
	return func(s *RemoteStore) {
		s.now = now
	}
}

// WithRemoteLogger sets the logger of the remote backend.
func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(s *RemoteStore) {
		s.logger = logger
	}
}

// NewRemoteStore creates a backend for the service listening at baseURL, e.g.
// "http://localhost:8080".
func NewRemoteStore(baseURL string, opts ...RemoteOption) *RemoteStore {
	s := &RemoteStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "remotestore", "url", s.baseURL)
	return s
}

// Save creates the person with POST if it has no id or the server does not know the id yet, and
// replaces it with PUT otherwise.
func (s *RemoteStore) Save(ctx context.Context, p *model.Person) error {
	if p.CreatedAt == "" {
		p.CreatedAt = model.Timestamp(s.now())
	}
	p.CreatedAt = model.CanonicalTimestamp(p.CreatedAt)
	p.Normalize()

	if p.ID == "" {
		p.ID = model.NewID(s.now())
		return s.send(ctx, "save", http.MethodPost, "/persons", p, nil)
	}
	existing, err := s.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return s.send(ctx, "save", http.MethodPost, "/persons", p, nil)
	}
	return s.send(ctx, "save", http.MethodPut, s.itemPath(p.ID), p, nil)
}

// ListAll fetches all records. The server orders them by creation time, newest first.
func (s *RemoteStore) ListAll(ctx context.Context) ([]model.Person, error) {
	persons := []model.Person{}
	if err := s.send(ctx, "list", http.MethodGet, "/persons", nil, &persons); err != nil {
		return nil, err
	}
	return persons, nil
}

// GetByID fetches one record. A 404 answer yields nil without error.
func (s *RemoteStore) GetByID(ctx context.Context, id string) (*model.Person, error) {
	var p model.Person
	err := s.send(ctx, "get", http.MethodGet, s.itemPath(id), nil, &p)
	var storageErr *StorageError
	if errors.As(err, &storageErr) && storageErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteByID deletes one record. The server answers success for unknown ids too.
func (s *RemoteStore) DeleteByID(ctx context.Context, id string) error {
	return s.send(ctx, "delete", http.MethodDelete, s.itemPath(id), nil, nil)
}

// VerifyPassword asks the server whether password is the admin secret.
func (s *RemoteStore) VerifyPassword(ctx context.Context, password string) (bool, error) {
	err := s.send(ctx, "login", http.MethodPost, "/admin/login", map[string]string{"password": password}, nil)
	var storageErr *StorageError
	if errors.As(err, &storageErr) && storageErr.StatusCode == http.StatusUnauthorized {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// adminPassword returns the password for mutating requests. A session takes precedence over a
// fixed password.
func (s *RemoteStore) adminPassword() string {
	if s.session != nil {
		return s.session.Password()
	}
	return s.password
}

func (s *RemoteStore) itemPath(id string) string {
	return "/persons/" + url.PathEscape(id)
}

// send executes one request. The request body is encoded from in, a successful response body is
// decoded into out unless it is nil.
func (s *RemoteStore) send(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &StorageError{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return &StorageError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if password := s.adminPassword(); password != "" && method != http.MethodGet {
		req.Header.Set(auth.HeaderAdminPassword, password)
	}

	res, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("request failed", "method", method, "path", path, "error", err)
		return &StorageError{Op: op, Err: err}
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return &StorageError{Op: op, StatusCode: res.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &StorageError{Op: op, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(resBody))}
	}
	if out != nil {
		if err := json.Unmarshal(resBody, out); err != nil {
			return &StorageError{Op: op, StatusCode: res.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return nil
}
