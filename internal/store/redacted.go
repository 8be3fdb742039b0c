package store

import "encoding/json"

// RedactedSecret wraps sensitive credential material to prevent accidental
// logging or serialization.
//
// It implements fmt.Stringer and the marshal interfaces to return "[REDACTED]"
// instead of the actual value, so secrets cannot leak through log messages,
// error strings, or JSON output.
//
// Usage:
//
//	secret := store.NewRedactedSecret("sk-live-...")
//	fmt.Println(secret)     // prints: [REDACTED]
//	raw := secret.Value()   // returns the actual material
type RedactedSecret struct {
	value string
}

// NewRedactedSecret creates a RedactedSecret wrapping the given value.
func NewRedactedSecret(value string) RedactedSecret {
	return RedactedSecret{value: value}
}

// Value returns the actual secret material. Use this only when the secret
// must be handed to the credential store or sent in an authenticated request.
// Never log the result of this method.
func (s RedactedSecret) Value() string {
	return s.value
}

// IsEmpty returns true if no secret material is present.
func (s RedactedSecret) IsEmpty() bool {
	return s.value == ""
}

// String implements fmt.Stringer.
func (s RedactedSecret) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s RedactedSecret) GoString() string {
	return "store.RedactedSecret{[REDACTED]}"
}

// MarshalText implements encoding.TextMarshaler.
func (s RedactedSecret) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// MarshalJSON implements json.Marshaler.
func (s RedactedSecret) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}

// UnmarshalJSON accepts a plain string. "[REDACTED]" round-trips to an empty
// secret so a redacted export can never be mistaken for real material.
func (s *RedactedSecret) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == "[REDACTED]" {
		v = ""
	}
	s.value = v
	return nil
}
