package errors

// ErrorCode identifies one failure mode. Each package declares its own codes
// in an errors.go file next to the code that raises them.
type ErrorCode string

// Error is a domain error carrying a code plus optional message, cause and
// attached data.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory creates domain errors. Obtain one with New() at the top of the
// raising function.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
