// Package extract recovers plain text from uploaded bill documents.
package extract

import "context"

// TextExtractor turns an uploaded document into plain text. Implementations
// fail when the document is unreadable; they never interpret the text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (Result, error)
}

type Result struct {
	Text   string
	Pages  int
	Method string // "pdf-text" | "plain-text"
}
