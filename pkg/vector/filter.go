package vector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxSessionIDLength bounds accepted session identifiers.
const MaxSessionIDLength = 256

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:@!\-]+$`)

// ValidateSessionID rejects any session identifier outside the allow-listed
// character set. It must pass before the id is placed in a filter expression.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: session id is empty", ErrValidation)
	}
	if len(id) > MaxSessionIDLength {
		return fmt.Errorf("%w: session id longer than %d bytes", ErrValidation, MaxSessionIDLength)
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: session id %q contains disallowed characters", ErrValidation, id)
	}
	return nil
}

// Op is a filter comparison operator.
type Op int

const (
	opNone Op = iota

	// OpEq matches records whose string field equals Value.
	OpEq

	// OpGte matches records whose integer field is >= Int.
	OpGte

	// OpAll matches every record.
	OpAll
)

// Filter is a single-clause record predicate. It renders to the store
// expression grammar `<field> == "<escaped>"` or `<field> >= <int>`.
type Filter struct {
	Field string
	Op    Op
	Value string
	Int   int64
}

var (
	eqFields  = map[string]bool{FieldID: true, FieldSessionID: true, FieldPersonalityID: true}
	gteFields = map[string]bool{FieldCreateTime: true}
)

// All returns the match-all filter, rendered as `id >= 0`.
func All() Filter {
	return Filter{Field: FieldID, Op: OpAll}
}

// Eq builds an equality filter on a string field. Session ids are validated.
func Eq(field, value string) (Filter, error) {
	if !eqFields[field] {
		return Filter{}, fmt.Errorf("%w: field %q does not support ==", ErrValidation, field)
	}
	if field == FieldSessionID {
		if err := ValidateSessionID(value); err != nil {
			return Filter{}, err
		}
	}
	return Filter{Field: field, Op: OpEq, Value: value}, nil
}

// Gte builds a lower-bound filter on an integer field.
func Gte(field string, value int64) (Filter, error) {
	if !gteFields[field] {
		return Filter{}, fmt.Errorf("%w: field %q does not support >=", ErrValidation, field)
	}
	return Filter{Field: field, Op: OpGte, Int: value}, nil
}

// SessionFilter matches every record of one session.
func SessionFilter(sessionID string) (Filter, error) {
	return Eq(FieldSessionID, sessionID)
}

// IsZero reports whether f is the unset filter.
func (f Filter) IsZero() bool {
	return f.Op == opNone
}

// String renders f in the store expression grammar.
func (f Filter) String() string {
	switch f.Op {
	case OpEq:
		return fmt.Sprintf(`%s == "%s"`, f.Field, escapeValue(f.Value))
	case OpGte:
		return f.Field + " >= " + strconv.FormatInt(f.Int, 10)
	case OpAll:
		return FieldID + " >= 0"
	default:
		return ""
	}
}

// Validate returns an error for filters not built by this package's constructors.
func (f Filter) Validate() error {
	switch f.Op {
	case OpAll:
		return nil
	case OpEq:
		_, err := Eq(f.Field, f.Value)
		return err
	case OpGte:
		_, err := Gte(f.Field, f.Int)
		return err
	default:
		return fmt.Errorf("%w: empty filter", ErrValidation)
	}
}

// Match evaluates f against a record in memory.
func (f Filter) Match(r Record) bool {
	switch f.Op {
	case OpAll:
		return true
	case OpEq:
		switch f.Field {
		case FieldID:
			return r.ID == f.Value
		case FieldSessionID:
			return r.SessionID == f.Value
		case FieldPersonalityID:
			return r.PersonalityID == f.Value
		}
	case OpGte:
		if f.Field == FieldCreateTime {
			return r.CreateTime >= f.Int
		}
	}
	return false
}

var valueEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeValue(v string) string {
	return valueEscaper.Replace(v)
}
