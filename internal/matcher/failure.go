package matcher

import "errors"

// ErrorKind is the closed set of user-facing submission failures.
type ErrorKind int

const (
	// NoFaceDetected means the service answered but found no usable face or match.
	NoFaceDetected ErrorKind = iota + 1
	// RequestFailed covers transport errors, non-success statuses, timeouts and malformed bodies.
	RequestFailed
)

func (k ErrorKind) String() string {
	switch k {
	case NoFaceDetected:
		return "no_face_detected"
	case RequestFailed:
		return "request_failed"
	default:
		return "unknown"
	}
}

// Failure is the typed outcome of an unsuccessful submission.
type Failure struct {
	Kind ErrorKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NoFace builds a NoFaceDetected failure.
func NoFace(err error) *Failure {
	return &Failure{Kind: NoFaceDetected, Err: err}
}

// Failed builds a RequestFailed failure.
func Failed(err error) *Failure {
	return &Failure{Kind: RequestFailed, Err: err}
}

// KindOf classifies err. Anything that is not a *Failure counts as RequestFailed.
func KindOf(err error) ErrorKind {
	var f *Failure
	if errors.As(err, &f) && f.Kind != 0 {
		return f.Kind
	}
	return RequestFailed
}
