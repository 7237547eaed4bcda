// Package browser defines the narrow surface the scraper needs from a browser automation
// provider. Implementations live in the subpackages.
package browser

import (
	"context"
	"errors"
)

// Element is an opaque handle to a DOM node, it is only meaningful to the Session that
// produced it and only until that session navigates away.
type Element interface {
	// Key identifies the element within its session for logging and ancestry checks.
	Key() string
}

// ErrClickIntercepted is returned by Click when the native event could not reach the element.
var ErrClickIntercepted = errors.New("click intercepted")

// ErrStaleElement is returned when an element no longer belongs to the current page.
var ErrStaleElement = errors.New("stale element")

// Session is a single browser tab. It is not safe for concurrent use, callers must
// serialize navigations.
//
// note: fault injection point
type Session interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// PageSource returns the serialized document.
	PageSource(ctx context.Context) (string, error)

	// QueryAll returns every element matching the css selector in document order, searching
	// only the subtree of parent when parent is non-nil. No match is not an error.
	QueryAll(ctx context.Context, parent Element, selector string) ([]Element, error)
	// Contains reports whether child is a strict descendant of parent.
	Contains(ctx context.Context, parent, child Element) (bool, error)

	Text(ctx context.Context, el Element) (string, error)
	Attribute(ctx context.Context, el Element, name string) (value string, ok bool, err error)
	Visible(ctx context.Context, el Element) (bool, error)

	ScrollIntoView(ctx context.Context, el Element) error
	// Click dispatches a native (trusted) input event at the element's position.
	Click(ctx context.Context, el Element) error
	// DispatchClick calls the element's click() from script, bypassing hit testing.
	DispatchClick(ctx context.Context, el Element) error
	ScrollBy(ctx context.Context, dx, dy int) error

	Close() error
}

// Factory opens a fresh session, the caller owns it and must Close it.
type Factory func(ctx context.Context) (Session, error)
