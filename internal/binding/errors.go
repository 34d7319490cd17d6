package binding

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel causes carried by ValidationError, for errors.Is classification
var (
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrEmptyValue       = errors.New("empty value")
	ErrInvalidOption    = errors.New("value not in allowed options")
	ErrInvalidSelector  = errors.New("invalid period selector")
	ErrInvalidCount     = errors.New("invalid trailing count")
	ErrEmptyVariable    = errors.New("empty variable name")
	ErrMalformedBinding = errors.New("malformed binding")
	ErrUnknownParameter = errors.New("unknown parameter")
)

// ValidationError is a configuration-time problem with one parameter's binding
type ValidationError struct {
	Key     string
	Message string
	// Invalid lists the offending entries when an array value fails option checks
	Invalid []string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Key == "" {
		return e.Message
	}
	return fmt.Sprintf("parameter %s: %s", e.Key, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func invalid(cause error, format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Cause: cause}
}

// withKey attaches the parameter key to a coercion or validation error
func withKey(key string, err error) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		out := *ve
		out.Key = key
		return &out
	}
	return &ValidationError{Key: key, Message: err.Error(), Cause: err}
}

// FieldErrors collects validation errors by parameter key so callers can
// report every problem at once
type FieldErrors map[string]*ValidationError

func (fe FieldErrors) Error() string {
	keys := fe.Keys()
	msgs := make([]string, len(keys))
	for i, k := range keys {
		msgs[i] = fe[k].Error()
	}
	return strings.Join(msgs, "; ")
}

// Keys returns the failing parameter keys in sorted order
func (fe FieldErrors) Keys() []string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Messages flattens the errors into a key -> message map for API responses
func (fe FieldErrors) Messages() map[string]string {
	out := make(map[string]string, len(fe))
	for k, v := range fe {
		out[k] = v.Message
	}
	return out
}

// Err returns nil when fe is empty, so callers can write `if err := fe.Err(); err != nil`
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}
