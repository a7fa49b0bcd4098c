package cqrskit

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ID is a sortable, time-ordered 128-bit identifier used for aggregates,
// events, commands, queries, and the correlation/causation chain that ties
// them together. It is backed by a UUIDv7, which encodes a millisecond
// timestamp in its high bits, so IDs generated later sort after IDs
// generated earlier.
type ID uuid.UUID

// NilID is the zero value of ID, used to mean "absent" for optional fields
// such as CorrelationID/CausationID on a command that hasn't been dispatched
// through context-propagation middleware yet.
var NilID ID

// NewID generates a fresh, time-ordered ID.
func NewID() ID {
	generated, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the entropy source is broken; that is a fatal
		// condition for a process that depends on unique identifiers.
		panic(fmt.Sprintf("cqrskit: failed to generate id: %v", err))
	}
	return ID(generated)
}

// ParseID parses a textual UUID into an ID.
func ParseID(text string) (ID, error) {
	parsed, err := uuid.Parse(text)
	if err != nil {
		return NilID, fmt.Errorf("cqrskit: parse id %q: %w", text, err)
	}
	return ID(parsed), nil
}

// IsNil reports whether the ID is the zero value.
func (id ID) IsNil() bool {
	return id == NilID
}

// String returns the canonical textual representation of the ID.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// MarshalJSON marshals the ID as its string representation.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON parses the ID from its string representation.
func (id *ID) UnmarshalJSON(data []byte) error {
	var inner uuid.UUID
	if err := inner.UnmarshalText(trimQuotes(data)); err != nil {
		return err
	}
	*id = ID(inner)
	return nil
}

// Value implements driver.Valuer so an ID can be written directly by
// database/sql-based backends (e.g. the postgres event store adapter).
func (id ID) Value() (driver.Value, error) {
	return id.String(), nil
}

// Scan implements sql.Scanner so an ID can be read directly from
// database/sql-based backends.
func (id *ID) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseID(v)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	case []byte:
		parsed, err := ParseID(string(v))
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	default:
		return fmt.Errorf("cqrskit: cannot scan %T into ID", src)
	}
}

func trimQuotes(data []byte) []byte {
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		return data[1 : len(data)-1]
	}
	return data
}
