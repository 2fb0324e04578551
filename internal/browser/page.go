package browser

import (
	"context"
	"time"
)

// Page is the pipeline's view of one browser page. The extraction core
// consumes only these primitives and never assumes a specific engine API
// shape; the Rod adapter lives in this package, fakes live in tests.
type Page interface {
	// Navigate loads the URL and waits for the document to load, bounded by
	// the context deadline.
	Navigate(ctx context.Context, url string) error
	// WaitSettled absorbs asynchronous UI updates after an action. It is
	// always bounded: a hung portal surfaces as a timeout, never a stall.
	// Returning nil means either the page settled or the bound elapsed.
	WaitSettled(ctx context.Context, settle time.Duration) error
	// Elements returns all matches for a CSS selector, in document order.
	Elements(selector string) ([]Element, error)
	// Text returns the page's visible text.
	Text() (string, error)
	// HTML returns the page markup, best-effort, for diagnostics.
	HTML() string
	// Screenshot returns a capture of the page, best-effort, for diagnostics.
	Screenshot() []byte
	// URL reports the page's current location.
	URL() string
}

// Element is one resolved DOM node.
type Element interface {
	// Visible reports whether the element is rendered and on-screen.
	Visible() bool
	// Enabled reports whether the element can be interacted with.
	Enabled() bool
	// Text returns the element's visible text.
	Text() (string, error)
	// Attribute returns an attribute value and whether it is present.
	Attribute(name string) (string, bool)
	// Fill replaces the element's value with text.
	Fill(text string) error
	// Click activates the element.
	Click() error
	// SelectOption selects the option whose text matches label.
	SelectOption(label string) error
	// Elements returns descendant matches for a CSS selector.
	Elements(selector string) ([]Element, error)
}
