package capture

import "github.com/example/face-match/internal/matcher"

// Kind tags the variant of a State.
type Kind int

const (
	// KindIdle is the entry state, optionally carrying the previous attempt's error.
	KindIdle Kind = iota
	// KindAcquiring means the camera is framing and no image exists yet.
	KindAcquiring
	// KindSubmitting means an image is held and a match request is in flight.
	KindSubmitting
	// KindSucceeded holds the image together with its ranked results.
	KindSucceeded
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindAcquiring:
		return "acquiring"
	case KindSubmitting:
		return "submitting"
	case KindSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of the workflow. Only the fields relevant to
// Kind are populated.
type State struct {
	Kind    Kind
	Err     matcher.ErrorKind
	Image   matcher.CapturedImage
	Results matcher.ResultSet
}

// Error returns the error carried by Idle(error).
func (s State) Error() (matcher.ErrorKind, bool) {
	if s.Kind != KindIdle || s.Err == 0 {
		return 0, false
	}
	return s.Err, true
}

func (s State) String() string {
	if kind, ok := s.Error(); ok {
		return "idle(" + kind.String() + ")"
	}
	return s.Kind.String()
}

func idle() State {
	return State{Kind: KindIdle}
}

func idleWithError(kind matcher.ErrorKind) State {
	return State{Kind: KindIdle, Err: kind}
}

func acquiring() State {
	return State{Kind: KindAcquiring}
}

func submitting(image matcher.CapturedImage) State {
	return State{Kind: KindSubmitting, Image: image}
}

func succeeded(image matcher.CapturedImage, results matcher.ResultSet) State {
	return State{Kind: KindSucceeded, Image: image, Results: results}
}
