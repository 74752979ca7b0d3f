package apperrors

import "strings"

// appError is the chainable implementation behind Error. Modifier methods
// never mutate the receiver: they derive a child that keeps the receiver as
// its base, so package-level sentinel errors stay immutable and errors.Is
// matches any ancestor in the chain.
type appError struct {
	msg         string
	prefix      string
	suffix      string
	base        Error
	wrapped     []error
	statuscode  int
	expandError bool
}

// New declares a root error. Derive more specific errors from it with the
// New method on the returned value.
func New(msg string) Error {
	return &appError{msg: msg}
}

// derive copies the receiver into a child whose base is the receiver.
func (e *appError) derive() *appError {
	return &appError{
		msg:         e.msg,
		prefix:      e.prefix,
		suffix:      e.suffix,
		base:        e,
		wrapped:     append([]error(nil), e.wrapped...),
		statuscode:  e.statuscode,
		expandError: e.expandError,
	}
}

func (e *appError) Error() string {
	var b strings.Builder
	if e.prefix != "" {
		b.WriteString(e.prefix)
		b.WriteString(": ")
	}
	b.WriteString(e.msg)
	if e.suffix != "" {
		b.WriteString(": ")
		b.WriteString(e.suffix)
	}
	return b.String()
}

func (e *appError) ErrorAll() string {
	if !e.expandError || len(e.wrapped) == 0 {
		return e.Error()
	}
	parts := make([]string, 0, len(e.wrapped))
	for _, err := range e.wrapped {
		parts = append(parts, err.Error())
	}
	return e.Error() + ": " + strings.Join(parts, "; ")
}

func (e *appError) Unwrap() []error {
	return e.wrapped
}

func (e *appError) New(msg string) Error {
	return &appError{
		msg:         msg,
		base:        e,
		statuscode:  e.statuscode,
		expandError: e.expandError,
	}
}

func (e *appError) Msg(msg string) Error {
	d := e.derive()
	d.msg = msg
	return d
}

func (e *appError) MsgErr(msg string, err ...error) Error {
	d := e.derive()
	d.msg = msg
	d.wrapped = append(d.wrapped, err...)
	return d
}

func (e *appError) Prefix(prefix string) Error {
	d := e.derive()
	d.prefix = prefix
	return d
}

func (e *appError) Suffix(suffix string) Error {
	d := e.derive()
	d.suffix = suffix
	return d
}

func (e *appError) Err(err ...error) Error {
	d := e.derive()
	d.wrapped = append(d.wrapped, err...)
	return d
}

func (e *appError) Is(target error) bool {
	if e == target {
		return true
	}
	if e.base != nil {
		if e.base == target || e.base.Is(target) {
			return true
		}
	}
	for _, err := range e.wrapped {
		if err == target {
			return true
		}
	}
	return false
}

func (e *appError) SetExpandError(expand bool) Error {
	d := e.derive()
	d.expandError = expand
	return d
}

func (e *appError) SetStatusCode(code int) Error {
	d := e.derive()
	d.statuscode = code
	return d
}

func (e *appError) StatusCode() int {
	return e.statuscode
}
