package steamweb

import (
	"net/url"
	"sort"
	"strings"
)

// Field is a single name/value pair of a form body.
type Field struct {
	Name  string
	Value string
}

// Form is an ordered list of form fields. Unlike url.Values it preserves
// insertion order, which the mobileconf batch endpoint depends on, and it
// permits repeated names (cid[], ck[]).
type Form []Field

// Add appends a field.
func (f *Form) Add(name, value string) {
	*f = append(*f, Field{Name: name, Value: value})
}

// Get returns the first value recorded under name.
func (f Form) Get(name string) (string, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}

// SetUnique removes any prior pair with this exact name and value, then
// appends a fresh one.
func (f *Form) SetUnique(name, value string) {
	out := (*f)[:0]
	for _, field := range *f {
		if field.Name == name && field.Value == value {
			continue
		}
		out = append(out, field)
	}
	*f = append(out, Field{Name: name, Value: value})
}

// Clone returns an independent copy.
func (f Form) Clone() Form {
	if f == nil {
		return nil
	}
	out := make(Form, len(f))
	copy(out, f)
	return out
}

// Encode serializes the form as application/x-www-form-urlencoded,
// preserving field order.
func (f Form) Encode() string {
	var b strings.Builder
	for i, field := range f {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(field.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(field.Value))
	}
	return b.String()
}

// FormFromMap converts a plain map body into a Form. Keys are sorted so the
// encoding is deterministic.
func FormFromMap(values map[string]string) Form {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	form := make(Form, 0, len(values))
	for _, name := range names {
		form.Add(name, values[name])
	}
	return form
}

// SessionField selects the casing of the anti-CSRF session id field stamped
// into POST bodies. Steam endpoints are picky: market posts take camelCase,
// most others lowercase.
type SessionField int

const (
	// SessionFieldNone suppresses session id stamping entirely.
	SessionFieldNone SessionField = iota
	// SessionFieldLower stamps "sessionid".
	SessionFieldLower
	// SessionFieldCamel stamps "sessionID".
	SessionFieldCamel
	// SessionFieldPascal stamps "SessionID".
	SessionFieldPascal
)

func (s SessionField) fieldName() string {
	switch s {
	case SessionFieldLower:
		return "sessionid"
	case SessionFieldCamel:
		return "sessionID"
	case SessionFieldPascal:
		return "SessionID"
	default:
		return ""
	}
}
