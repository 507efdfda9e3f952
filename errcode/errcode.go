package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Recoverable: routed to the ERROR state with a tagged category.
	CardReadError  Code = "card_read_error"
	UnknownCard    Code = "unknown_card"
	EmptyCard      Code = "empty_card"
	AudioLoadError Code = "audio_load_error"

	// Absorbed locally by the owning monitor, never raised to the core.
	HardwareFault Code = "hardware_fault"

	// Fails fast at startup.
	ConfigError Code = "config_error"

	InvalidPayload Code = "invalid_payload"
	Busy           Code = "busy"
	Timeout        Code = "timeout"

	Error Code = "error" // generic fallback
)

// Recoverable reports whether a code is routed to the ERROR state
// rather than aborting or being absorbed.
func Recoverable(c Code) bool {
	switch c {
	case CardReadError, UnknownCard, EmptyCard, AudioLoadError:
		return true
	}
	return false
}

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
