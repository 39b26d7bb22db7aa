package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Source errors
	ErrEmptyURL       = errors.New("empty URL")
	ErrUnsupportedURL = errors.New("unsupported URL")
	ErrMediaNotFound  = errors.New("media not found or is private")

	// Network and rate limiting errors
	ErrRateLimited    = errors.New("rate limited")
	ErrNetworkFailure = errors.New("network failure")

	// Transcription errors
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrModelNotFound       = errors.New("model not found")

	// Cache errors
	ErrCacheExpired = errors.New("cache expired")
	ErrCacheMiss    = errors.New("cache miss")

	// Dependency errors
	ErrYtDlpNotFound   = errors.New("yt-dlp not found")
	ErrWhisperNotFound = errors.New("whisper binary not found")
	ErrFFmpegNotFound  = errors.New("ffmpeg not found")
)

// FailureKind names the reason an external call failed.
type FailureKind string

const (
	KindNotSupported   FailureKind = "not_supported"
	KindNetwork        FailureKind = "network"
	KindContent        FailureKind = "content"
	KindTranscription  FailureKind = "transcription"
	KindRateLimited    FailureKind = "rate_limited"
	KindServer         FailureKind = "server"
	KindInvalidRequest FailureKind = "invalid_request"
	KindIO             FailureKind = "io"
	KindEnvironment    FailureKind = "environment"
	KindTimeout        FailureKind = "timeout"
	KindCanceled       FailureKind = "canceled"
	KindInternal       FailureKind = "internal"
)

// Class groups failure kinds by how the pipeline reacts to them.
type Class int

const (
	ClassInternal Class = iota
	ClassTransient
	ClassPermanentInput
	ClassPermanentEnvironment
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanentInput:
		return "permanent-input"
	case ClassPermanentEnvironment:
		return "permanent-environment"
	default:
		return "internal"
	}
}

// Class returns the taxonomy class of the kind.
func (k FailureKind) Class() Class {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimited, KindServer:
		return ClassTransient
	case KindNotSupported, KindContent, KindInvalidRequest:
		return ClassPermanentInput
	case KindEnvironment, KindTranscription, KindIO:
		return ClassPermanentEnvironment
	default:
		return ClassInternal
	}
}

// Error is a classified failure raised by an adapter.
type Error struct {
	Kind FailureKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and the operation that produced it.
func NewError(kind FailureKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind FailureKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf resolves the failure kind of err. Unclassified errors are internal.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrEmptyURL), errors.Is(err, ErrUnsupportedURL):
		return KindNotSupported
	case errors.Is(err, ErrMediaNotFound):
		return KindContent
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrNetworkFailure):
		return KindNetwork
	case errors.Is(err, ErrTranscriptionFailed):
		return KindTranscription
	case errors.Is(err, ErrModelNotFound), errors.Is(err, ErrYtDlpNotFound),
		errors.Is(err, ErrWhisperNotFound), errors.Is(err, ErrFFmpegNotFound):
		return KindEnvironment
	}
	return KindInternal
}
