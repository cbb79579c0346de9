package avmu

import "fmt"

// ErrorKind is the tagged-variant equivalent of the C ABI's opaque ErrCode
// table. The ABI shim (out of scope, see spec §1) maps each Kind to a small
// stable integer; internally we keep the kind itself.
type ErrorKind int

const (
	// ErrOK is never returned as an error; it is the absence of one.
	ErrOK ErrorKind = iota

	// State errors.
	ErrWrongState
	ErrWrongProgramType

	// Configuration errors.
	ErrBadAtten
	ErrBadHop
	ErrBadPath
	ErrBadIPPort
	ErrMissingIP
	ErrMissingPort
	ErrMissingHop
	ErrMissingAtten
	ErrMissingFreqs
	ErrFreqOutOfBounds
	ErrTooManyPoints
	ErrInvalidParameter
	ErrNoPathsMeasured
	ErrPathAlreadyMeasured
	ErrFeatureNotPresent
	ErrNoAttenPresent
	ErrIndexOutOfBounds

	// Transport errors.
	ErrSocket
	ErrNoResponse
	ErrBytes
	ErrInterrupted

	// Device errors.
	ErrBadProm
	ErrEmptyProm
	ErrUnknownFeature
	ErrPromInvalidFeatureConfiguration
	ErrProgOverflow
	ErrBadCal

	// Handle errors.
	ErrBadHandle
	ErrTaskArrayInvalid
	ErrPathHasNoData
)

var errorKindNames = map[ErrorKind]string{
	ErrOK:                              "ok",
	ErrWrongState:                      "wrong-state",
	ErrWrongProgramType:                "wrong-program-type",
	ErrBadAtten:                        "bad-atten",
	ErrBadHop:                          "bad-hop",
	ErrBadPath:                         "bad-path",
	ErrBadIPPort:                       "bad-ip-port",
	ErrMissingIP:                       "missing-ip",
	ErrMissingPort:                     "missing-port",
	ErrMissingHop:                      "missing-hop",
	ErrMissingAtten:                    "missing-atten",
	ErrMissingFreqs:                    "missing-freqs",
	ErrFreqOutOfBounds:                 "freq-out-of-bounds",
	ErrTooManyPoints:                   "too-many-points",
	ErrInvalidParameter:                "invalid-parameter",
	ErrNoPathsMeasured:                 "no-paths-measured",
	ErrPathAlreadyMeasured:             "path-already-measured",
	ErrFeatureNotPresent:               "feature-not-present",
	ErrNoAttenPresent:                  "no-atten-present",
	ErrIndexOutOfBounds:                "index-out-of-bounds",
	ErrSocket:                          "socket",
	ErrNoResponse:                      "no-response",
	ErrBytes:                           "bytes",
	ErrInterrupted:                     "interrupted",
	ErrBadProm:                         "bad-prom",
	ErrEmptyProm:                       "empty-prom",
	ErrUnknownFeature:                  "unknown-feature",
	ErrPromInvalidFeatureConfiguration: "prom-invalid-feature-configuration",
	ErrProgOverflow:                    "prog-overflow",
	ErrBadCal:                          "bad-cal",
	ErrBadHandle:                       "bad-handle",
	ErrTaskArrayInvalid:                "task-array-invalid",
	ErrPathHasNoData:                   "path-has-no-data",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the error type every avmu operation returns. It carries a Kind
// from the closed taxonomy in spec §7 plus an optional wrapped cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("avmu: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("avmu: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("avmu: %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, avmu.KindError(avmu.ErrWrongState)) work, and also
// lets two *Error values with the same Kind compare equal regardless of
// Message/Cause, which is how callers are expected to branch on kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindError returns a bare *Error of the given kind, suitable for use with
// errors.Is as a sentinel: errors.Is(err, avmu.KindError(avmu.ErrBadHop)).
func KindError(kind ErrorKind) *Error {
	return &Error{Kind: kind}
}

func newErr(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapErr(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}
