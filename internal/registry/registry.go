// Package registry holds the logic behind the admin pages and the public view page: who may do
// what, which fields a form needs and in which order records are shown.
package registry

import (
	"context"
	"errors"
	"time"

	"gitlab.com/dirk.krummacker/qrinfo-service/internal/auth"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/store"
	"gitlab.com/dirk.krummacker/qrinfo-service/pkg/model"
)

var (
	// ErrNotAdmin is returned by operations that need an admin session.
	ErrNotAdmin = errors.New("admin login required")
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// Form carries the fields an admin enters for a person. Empty optional fields are stored as null.
type Form struct {
	Name             string
	LastName         string
	PersonalCode     string
	PhoneNumber      string
	Address          string
	AdditionalInfo   string
	DiseaseOrProblem string
	Status           string
	EmergencyNote    string
}

// FormOf returns the form prefilled with the values of p, as the edit page shows it.
func FormOf(p model.Person) Form {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return Form{
		Name:             p.Name,
		LastName:         p.LastName,
		PersonalCode:     p.PersonalCode,
		PhoneNumber:      p.PhoneNumber,
		Address:          deref(p.Address),
		AdditionalInfo:   deref(p.AdditionalInfo),
		DiseaseOrProblem: deref(p.DiseaseOrProblem),
		Status:           deref(p.Status),
		EmergencyNote:    deref(p.EmergencyNote),
	}
}

// apply overwrites every field of p except id and createdAt with the form values.
func (f Form) apply(p *model.Person) {
	p.Name = f.Name
	p.LastName = f.LastName
	p.PersonalCode = f.PersonalCode
	p.PhoneNumber = f.PhoneNumber
	p.Address = model.StringPtr(f.Address)
	p.AdditionalInfo = model.StringPtr(f.AdditionalInfo)
	p.DiseaseOrProblem = model.StringPtr(f.DiseaseOrProblem)
	p.Status = model.StringPtr(f.Status)
	p.EmergencyNote = model.StringPtr(f.EmergencyNote)
}

// Registry combines a record store with the admin flag of one session.
type Registry struct {
	store   store.Store
	session *auth.Session
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now for id and createdAt generation.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New returns a registry working on s on behalf of session.
func New(s store.Store, session *auth.Session, opts ...Option) *Registry {
	r := &Registry{store: s, session: session, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add creates a new record from the form and returns it.
func (r *Registry) Add(ctx context.Context, form Form) (*model.Person, error) {
	if !r.session.IsAdmin() {
		return nil, ErrNotAdmin
	}
	p := model.Person{}
	form.apply(&p)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := r.now()
	p.ID = model.NewID(now)
	p.CreatedAt = model.Timestamp(now)
	if err := r.store.Save(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Edit replaces the fields of the record with the given id by the form values. The id and the
// creation time stay as they are.
func (r *Registry) Edit(ctx context.Context, id string, form Form) (*model.Person, error) {
	if !r.session.IsAdmin() {
		return nil, ErrNotAdmin
	}
	p, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	form.apply(p)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := r.store.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns all records, the most recently created first.
func (r *Registry) List(ctx context.Context) ([]model.Person, error) {
	if !r.session.IsAdmin() {
		return nil, ErrNotAdmin
	}
	persons, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	store.SortByCreatedAtDesc(persons)
	return persons, nil
}

// View returns the record with the given id. It is the target of the QR codes and needs no login.
func (r *Registry) View(ctx context.Context, id string) (*model.Person, error) {
	p, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// Remove deletes the record with the given id. Removing an unknown id succeeds.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if !r.session.IsAdmin() {
		return ErrNotAdmin
	}
	return r.store.DeleteByID(ctx, id)
}
