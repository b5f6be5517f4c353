// Package tesseract recognizes receipt text with the Tesseract OCR library.
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/otiai10/gosseract/v2"

	"github.com/zombor/receipt-scanner/internal/recognition"
)

// ocrClient is the subset of *gosseract.Client used by Engine
type ocrClient interface {
	SetLanguage(langs ...string) error
	SetImageFromBytes(data []byte) error
	Text() (string, error)
	Close() error
}

// Engine implements recognition.Engine using the Tesseract OCR library
type Engine struct {
	newClient func() ocrClient
}

// New creates a Tesseract engine. A client is initialized for every
// recognition and torn down when it finishes.
func New() *Engine {
	return newWithClient(func() ocrClient {
		return gosseract.NewClient()
	})
}

var _ recognition.Engine = (*Engine)(nil)

func newWithClient(newClient func() ocrClient) *Engine {
	return &Engine{newClient: newClient}
}

// Recognize runs OCR over the image
func (t *Engine) Recognize(ctx context.Context, image []byte, contentType string, lang string) iter.Seq[recognition.Event] {
	return func(yield func(recognition.Event) bool) {
		text, err := t.recognize(ctx, image, contentType, lang, yield)
		switch {
		case errors.Is(err, errStopped):
		case err != nil:
			yield(recognition.Failed(err))
		default:
			yield(recognition.Completed(text))
		}
	}
}

// errStopped marks a run abandoned by its consumer; nothing more is yielded
var errStopped = errors.New("consumer stopped")

func (t *Engine) recognize(ctx context.Context, image []byte, contentType, lang string, yield func(recognition.Event) bool) (string, error) {
	progress := func(status string, p float64) error {
		if !yield(recognition.Progressing(status, p)) {
			return errStopped
		}
		return ctx.Err()
	}

	if err := progress(recognition.StatusPreparing, 0); err != nil {
		return "", err
	}
	langs, err := recognition.NormalizeLanguage(lang)
	if err != nil {
		return "", err
	}
	data, err := recognition.PrepareImage(image, contentType)
	if err != nil {
		return "", fmt.Errorf("preparing image: %w", err)
	}

	if err := progress(recognition.StatusInitializing, 0); err != nil {
		return "", err
	}
	client := t.newClient()
	defer client.Close()

	if err := progress(recognition.StatusLoadingLanguage, 0); err != nil {
		return "", err
	}
	if err := client.SetLanguage(langs...); err != nil {
		return "", fmt.Errorf("loading language %v: %w", langs, err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("loading image: %w", err)
	}

	if err := progress(recognition.StatusRecognizing, 0); err != nil {
		return "", err
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	return text, nil
}
