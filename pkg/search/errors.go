package search

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig reports an invalid construction option, an unknown option
	// name or an unusable snapshot.
	ErrConfig = errors.New("invalid configuration")

	// ErrUnsupportedVersion is returned when loading a snapshot written with
	// a serialization version this package cannot read.
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported serialization version", ErrConfig)

	// ErrMissingID is returned by Add and Remove for documents without a
	// usable id field.
	ErrMissingID = errors.New("document has no id")

	// ErrDuplicateID is returned by Add when a document with the same id is
	// already indexed.
	ErrDuplicateID = errors.New("duplicate document id")

	// ErrUnknownDocument is returned by Remove when the id is not indexed.
	ErrUnknownDocument = errors.New("document is not in the index")

	// ErrInvalidCombinator is returned for combine operators other than OR,
	// AND and AND_NOT.
	ErrInvalidCombinator = errors.New("invalid combination operator")
)

// CodeVersionConflict is the logger code of the warning emitted when a
// removed document no longer matches what was indexed.
const CodeVersionConflict = "version_conflict"
