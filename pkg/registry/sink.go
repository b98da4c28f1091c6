package registry

import (
	"context"
	"errors"
	"fmt"
)

// Relation command operations, mirroring ORM one-to-many conventions: a
// create command carries a payload for a new sub-record, a link command
// references an existing row by id.
const (
	OpCreate = 0
	OpLink   = 4
)

// RelationCommand is a nested-entity reference destined for a one-to-many
// relation on a registrant.
type RelationCommand struct {
	Op     int
	ID     int64
	Values map[string]interface{}
}

// Create builds a create-and-link command.
func Create(values map[string]interface{}) RelationCommand {
	return RelationCommand{Op: OpCreate, Values: values}
}

// Link builds a link-existing command.
func Link(id int64) RelationCommand {
	return RelationCommand{Op: OpLink, ID: id}
}

// PersistenceError wraps a registry commit failure.
type PersistenceError struct {
	reason error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("registry commit: %v", e.reason)
}

func (e PersistenceError) Unwrap() error {
	return e.reason
}

func IsPersistenceError(err error) bool {
	var pe PersistenceError
	return errors.As(err, &pe)
}

// LookupMatch is one row of a name-keyed lookup table.
type LookupMatch struct {
	ID   int64
	Name string
}

// GenderMatch is one row of the gender lookup table; Code is the canonical
// value stored on registrants.
type GenderMatch struct {
	ID    int64
	Value string
	Code  string
}

// Sink is the registry boundary the import pipeline commits through. Every
// import is a new-record creation; the pipeline never updates. Lookup
// methods use exact-match, first-result semantics and report a miss through
// the boolean, never through the error.
type Sink interface {
	CreateRegistrant(ctx context.Context, record map[string]interface{}) (int64, error)
	FindIDType(ctx context.Context, name string) (LookupMatch, bool, error)
	FindMembershipKind(ctx context.Context, name string) (LookupMatch, bool, error)
	FindRelationshipKind(ctx context.Context, name string) (LookupMatch, bool, error)
	FindGender(ctx context.Context, value string) (GenderMatch, bool, error)
}
