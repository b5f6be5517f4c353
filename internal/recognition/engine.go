package recognition

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// Progress statuses reported while an engine works through a capture.
const (
	StatusPreparing       = "preparing image"
	StatusInitializing    = "initializing api"
	StatusLoadingLanguage = "loading language traineddata"
	StatusRecognizing     = "recognizing text"
)

// Event is one step of a recognition run. A run yields zero or more
// progress events followed by exactly one terminal event (Done set, carrying
// either Text or Err).
type Event struct {
	Status   string
	Progress float64
	Done     bool
	Text     string
	Err      error
}

// Engine derives text from an image payload
type Engine interface {
	// Recognize returns a finite sequence of progress events ending in one
	// terminal event. lang is a BCP 47 tag or a Tesseract language code.
	Recognize(ctx context.Context, image []byte, contentType string, lang string) iter.Seq[Event]
}

// ErrNoResult is reported when a sequence ends without a terminal event.
var ErrNoResult = errors.New("recognition ended without a result")

func Progressing(status string, progress float64) Event {
	return Event{Status: status, Progress: progress}
}

func Completed(text string) Event {
	return Event{Status: StatusRecognizing, Progress: 1, Done: true, Text: text}
}

func Failed(err error) Event {
	return Event{Done: true, Err: err}
}

// Collect drains a recognition sequence and returns its terminal outcome.
func Collect(seq iter.Seq[Event]) (string, error) {
	for ev := range seq {
		if ev.Done {
			return ev.Text, ev.Err
		}
	}
	return "", ErrNoResult
}

// IsSupported reports whether a capture with the given content type can be
// recognized.
func IsSupported(contentType string) bool {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return strings.HasPrefix(mimeType, "image/") || mimeType == "application/pdf"
}
