package analysis

import (
	"context"
	"fmt"
	"strings"
)

const (
	// DefaultModel is the chat model used when none is configured
	DefaultModel = "gpt-4o"

	// DefaultMaxTokens bounds the length of a generated summary
	DefaultMaxTokens = 500

	// SystemPrompt frames every receipt analysis
	SystemPrompt = "You are a helpful assistant that analyzes receipt data. Provide clear, concise responses."

	// DefaultInstructions seeds the instruction field after recognition
	DefaultInstructions = "Please summarize this receipt and tell me the total amount spent."
)

// Request is a single analysis call
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// Analyzer defines the interface for language-model analysis of receipt text
type Analyzer interface {
	// Analyze sends the request and returns the generated text
	Analyze(ctx context.Context, req Request) (string, error)
	// Close releases any client resources
	Close() error
}

// Factory builds an Analyzer from the credential current at call time.
type Factory func(credential string) (Analyzer, error)

// BuildPrompt combines recognized text and user instructions into the user
// message sent to the model.
func BuildPrompt(text, instructions string) string {
	return fmt.Sprintf("Analyze the following receipt text: %s\n\nUser instructions: %s", text, instructions)
}

// responseText cleans up a model reply
func responseText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}
