package recognition

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is the closed set of speech-recognition failure kinds.
type ErrorCode int

const (
	ErrorUnclassified ErrorCode = iota
	ErrorNoSpeech
	ErrorAborted
	ErrorNotAllowed
	ErrorAudioCapture
	ErrorNetwork
	ErrorServiceNotAllowed
)

// Severity is the policy applied to a classified error.
type Severity int

const (
	// SeverityIgnore errors are continuous-mode noise; the stream just restarts.
	SeverityIgnore Severity = iota + 1
	// SeverityWarning errors are surfaced but the session keeps listening.
	SeverityWarning
	// SeverityFatal errors end the session and disable auto-restart.
	SeverityFatal
)

// ParseErrorCode maps a platform error string onto ErrorCode.
func ParseErrorCode(raw string) ErrorCode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "no-speech":
		return ErrorNoSpeech
	case "aborted":
		return ErrorAborted
	case "not-allowed":
		return ErrorNotAllowed
	case "audio-capture":
		return ErrorAudioCapture
	case "network":
		return ErrorNetwork
	case "service-not-allowed":
		return ErrorServiceNotAllowed
	default:
		return ErrorUnclassified
	}
}

func (c ErrorCode) String() string {
	switch c {
	case ErrorNoSpeech:
		return "no-speech"
	case ErrorAborted:
		return "aborted"
	case ErrorNotAllowed:
		return "not-allowed"
	case ErrorAudioCapture:
		return "audio-capture"
	case ErrorNetwork:
		return "network"
	case ErrorServiceNotAllowed:
		return "service-not-allowed"
	default:
		return "unclassified"
	}
}

// Classify returns the handling policy for code.
func Classify(code ErrorCode) Severity {
	switch code {
	case ErrorNoSpeech, ErrorAborted:
		return SeverityIgnore
	case ErrorNotAllowed, ErrorAudioCapture, ErrorServiceNotAllowed:
		return SeverityFatal
	case ErrorNetwork:
		return SeverityFatal
	case ErrorUnclassified:
		return SeverityWarning
	default:
		return SeverityWarning
	}
}

// Message returns the one-line user-facing text for code.
func (c ErrorCode) Message() string {
	switch c {
	case ErrorNoSpeech:
		return "No speech detected."
	case ErrorAborted:
		return "Listening was interrupted."
	case ErrorNotAllowed:
		return "Microphone access denied. Unmute or allow the input device and start again."
	case ErrorAudioCapture:
		return "No microphone available. Check the audio input device and start again."
	case ErrorServiceNotAllowed:
		return "Speech service refused the request. Sign in again or check the voice backend."
	case ErrorNetwork:
		return "Speech recognition needs a network connection. Check connectivity and start again."
	default:
		return "Speech recognition hit an unexpected problem; still listening."
	}
}

// Error is a classified recognition failure returned by a Recognizer.
type Error struct {
	Code ErrorCode
	Err  error
}

// NewError wraps cause with code.
func NewError(code ErrorCode, cause error) *Error {
	return &Error{Code: code, Err: cause}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "recognition: " + e.Code.String()
	}
	return fmt.Sprintf("recognition: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the ErrorCode carried by err, or ErrorUnclassified.
func CodeOf(err error) ErrorCode {
	var recErr *Error
	if errors.As(err, &recErr) {
		return recErr.Code
	}
	return ErrorUnclassified
}
