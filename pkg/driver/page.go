package driver

import (
	"context"
	"time"
)

// Page is the minimal browser surface a driver needs. The rod-backed
// implementation lives in pkg/browser; tests use in-memory fakes.
type Page interface {
	// Navigate loads a URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// URL returns the current page URL.
	URL() string
	// Find waits up to timeout for the first element matching the CSS
	// selector.
	Find(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	// FindAll returns every element currently matching the CSS selector,
	// in document order, without waiting.
	FindAll(ctx context.Context, selector string) ([]Element, error)
}

// Element is a handle to a located DOM element.
type Element interface {
	Click(ctx context.Context) error
	// Input replaces the element's current text with the given text.
	Input(ctx context.Context, text string) error
	Text(ctx context.Context) (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
}
