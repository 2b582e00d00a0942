// Package store persists person records. There are two interchangeable backends: a local one that
// keeps all records in a single serialized blob on a key-value medium, and a remote one that talks
// to the REST API of the service.
package store

import (
	"context"
	"fmt"
	"sort"

	"gitlab.com/dirk.krummacker/qrinfo-service/pkg/model"
)

// Store is the contract shared by all backends.
type Store interface {
	// Save inserts the person if no record with its id exists, otherwise it replaces the stored
	// record wholesale. A person without an id gets a new one assigned.
	Save(ctx context.Context, p *model.Person) error
	// ListAll returns every stored record in no particular order.
	ListAll(ctx context.Context) ([]model.Person, error)
	// GetByID returns the record with the given id, or nil if there is none.
	GetByID(ctx context.Context, id string) (*model.Person, error)
	// DeleteByID removes the record with the given id. A missing id is not an error.
	DeleteByID(ctx context.Context, id string) error
}

// StorageError reports that the underlying medium or the network failed. For the remote backend
// StatusCode and Body carry the server's answer if there was one.
type StorageError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *StorageError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": storage failure"
	}
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// SortByCreatedAtDesc sorts the records so that the most recently created one comes first.
// Creation times are compared as instants, so precision and offset do not matter. If one of two
// values does not parse, they are compared as strings.
func SortByCreatedAtDesc(persons []model.Person) {
	sort.SliceStable(persons, func(i, j int) bool {
		ti, errI := model.ParseTimestamp(persons[i].CreatedAt)
		tj, errJ := model.ParseTimestamp(persons[j].CreatedAt)
		if errI != nil || errJ != nil {
			return persons[i].CreatedAt > persons[j].CreatedAt
		}
		return ti.After(tj)
	})
}
