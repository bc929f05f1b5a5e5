package context

import "errors"

var (
	// ErrSourceDisabled is returned by Add when the entry's source is not
	// in the store's enabled set.
	ErrSourceDisabled = errors.New("context: source not enabled")

	// ErrNotFound is returned by Update/Remove for an unknown entry id.
	ErrNotFound = errors.New("context: entry not found")

	// ErrEmptyMerge is returned by Merge when given no entries.
	ErrEmptyMerge = errors.New("context: cannot merge zero entries")

	// ErrUnknownStrategy is returned by Merge for an unrecognized Strategy.
	ErrUnknownStrategy = errors.New("context: unknown merge strategy")
)
