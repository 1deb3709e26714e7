// Package id issues identifiers for records Paylink creates off the
// settlement backend.
//
// Invoices are identified by the 256-bit hash the backend assigns (see the
// invoice package). Withdrawal transfers are recorded locally as well, and
// those records carry a TypeID such as "wdr_01h2xcejqtf2nbrexx3vqjhp41".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the type tag of a TypeID.
type Prefix string

// PrefixWithdrawal tags withdrawal transfer records.
const PrefixWithdrawal Prefix = "wdr"

// ID is a prefixed TypeID. The zero value is Nil and encodes as empty
// text or SQL NULL.
//
//nolint:recvcheck // UnmarshalText and Scan need pointer receivers.
type ID struct {
	tid typeid.TypeID
	set bool
}

// Nil is the absent ID.
var Nil ID

// WithdrawalID identifies a withdrawal record.
type WithdrawalID = ID

// New returns a fresh ID tagged with p. An invalid prefix is a programming
// error and panics.
func New(p Prefix) ID {
	tid, err := typeid.Generate(string(p))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", p, err))
	}
	return ID{tid: tid, set: true}
}

// NewWithdrawalID returns a fresh "wdr" ID.
func NewWithdrawalID() ID { return New(PrefixWithdrawal) }

// Parse decodes any TypeID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, set: true}, nil
}

// ParseWithdrawalID decodes s and requires the "wdr" prefix.
func ParseWithdrawalID(s string) (ID, error) {
	v, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if v.Prefix() != PrefixWithdrawal {
		return Nil, fmt.Errorf("id: %q is not a withdrawal id", s)
	}
	return v, nil
}

func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the type tag, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

// IsNil reports whether i is the zero ID.
func (i ID) IsNil() bool { return !i.set }

// ──────────────────────────────────────────────────
// Encoding
// ──────────────────────────────────────────────────

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Empty text yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	return i.decode(string(data))
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.set {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.tid.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.decode(v)
	case []byte:
		return i.decode(string(v))
	default:
		return fmt.Errorf("id: cannot scan %T", src)
	}
}

func (i *ID) decode(s string) error {
	if s == "" {
		*i = Nil
		return nil
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*i = v
	return nil
}
