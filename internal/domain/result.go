package domain

import (
	"encoding/json"
	"fmt"
)

// Result is the outcome of a storefront action: either data or a message
// fit for display. The zero value is a failure with an empty message.
type Result[T any] struct {
	data  T
	err   string
	cause error
	ok    bool
}

// Ok returns a successful result carrying data.
func Ok[T any](data T) Result[T] {
	return Result[T]{data: data, ok: true}
}

// Fail returns a failed result carrying a user-facing message.
func Fail[T any](message string) Result[T] {
	return Result[T]{err: message}
}

// FailWith returns a failed result that also keeps the error behind it. The
// cause never leaves the process: it is not part of the JSON form.
func FailWith[T any](message string, cause error) Result[T] {
	return Result[T]{err: message, cause: cause}
}

// IsSuccess reports whether r carries data.
func (r Result[T]) IsSuccess() bool { return r.ok }

// Data returns the carried data, or the zero value for a failure.
func (r Result[T]) Data() T { return r.data }

// Error returns the failure message, or "" for a success.
func (r Result[T]) Error() string { return r.err }

// Cause returns the error a failure was built from, if any.
func (r Result[T]) Cause() error { return r.cause }

// Get converts r into the usual Go pair. The returned error reads as the
// failure message and unwraps to the cause.
func (r Result[T]) Get() (T, error) {
	if r.ok {
		return r.data, nil
	}
	var zero T
	return zero, &failure{message: r.err, cause: r.cause}
}

type failure struct {
	message string
	cause   error
}

func (f *failure) Error() string { return f.message }

func (f *failure) Unwrap() error { return f.cause }

// Match calls exactly one of onOK or onErr.
func (r Result[T]) Match(onOK func(T), onErr func(string)) {
	if r.ok {
		onOK(r.data)
		return
	}
	onErr(r.err)
}

type resultJSON[T any] struct {
	Success bool    `json:"success"`
	Data    *T      `json:"data,omitempty"`
	Error   *string `json:"error,omitempty"`
}

// MarshalJSON encodes {"success":true,"data":...} or {"success":false,"error":"..."}.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if r.ok {
		return json.Marshal(resultJSON[T]{Success: true, Data: &r.data})
	}
	return json.Marshal(resultJSON[T]{Success: false, Error: &r.err})
}

// UnmarshalJSON decodes either variant and rejects a success without data.
func (r *Result[T]) UnmarshalJSON(b []byte) error {
	var raw resultJSON[T]
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Success {
		if raw.Data == nil {
			return fmt.Errorf("successful result without data")
		}
		*r = Ok(*raw.Data)
		return nil
	}
	msg := ""
	if raw.Error != nil {
		msg = *raw.Error
	}
	*r = Fail[T](msg)
	return nil
}
