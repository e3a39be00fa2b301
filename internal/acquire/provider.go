package acquire

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoMatch           = errors.New("no matching result")
	ErrAttemptTimeout    = errors.New("attempt timed out")
	ErrDurationMismatch  = errors.New("duration outside accepted window")
	ErrNotFoundAnySource = errors.New("not found on any source")
	ErrEmptyQuery        = errors.New("empty search query")
)

// Request is the input contract of a single provider attempt.
type Request struct {
	Query      string
	Window     Window
	OutputPath string
	Timeout    time.Duration
}

// Candidate is a file produced at Request.OutputPath. DurationSec is -1 when
// the provider could not report it.
type Candidate struct {
	Path        string
	DurationSec float64
}

// Provider is one audio source in the fallback chain. Attempt must give up
// once Request.Timeout elapses.
type Provider interface {
	Name() string
	Attempt(ctx context.Context, req Request) (*Candidate, error)
}

// Source pairs a provider with its attempt timeout.
type Source struct {
	Provider Provider
	Timeout  time.Duration
}
