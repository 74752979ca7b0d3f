// Package apperrors defines the error type used across driftline services.
// Errors form chains: a package declares a base error and derives more
// specific errors from it with New, so errors.Is works against any ancestor.
// Each error carries an HTTP status code for the API surface.
package apperrors

type Error interface {
	Error() string
	ErrorAll() string
	New(msg string) Error
	MsgErr(msg string, err ...error) Error
	Msg(msg string) Error
	Prefix(prefix string) Error
	Suffix(suffix string) Error
	Err(err ...error) Error
	Unwrap() []error
	Is(target error) bool
	SetExpandError(expand bool) Error
	SetStatusCode(code int) Error
	StatusCode() int
}
