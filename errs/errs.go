// Package errs defines sentinel errors shared across the clump packages.
//
// All errors returned by the library wrap one of these sentinels, so callers
// can classify failures with errors.Is while still receiving the full context
// (analysis UID, session and sample identifiers) in the error message.
package errs

import "errors"

var (
	// ErrMissingField indicates a record is missing a required input field.
	ErrMissingField = errors.New("missing required field")

	// ErrDuplicateUID indicates two analyses share the same unique identifier.
	ErrDuplicateUID = errors.New("duplicate analysis UID")

	// ErrUnknownSample indicates a referenced sample has no analyses in the dataset.
	ErrUnknownSample = errors.New("sample not present in dataset")

	// ErrUnknownSession indicates a referenced session has no analyses in the dataset.
	ErrUnknownSession = errors.New("session not present in dataset")

	// ErrStageOrder indicates a pipeline stage was invoked before its prerequisite
	// stage completed (e.g. standardizing before crunching).
	ErrStageOrder = errors.New("pipeline stage called out of order")

	// ErrNoConvergence indicates an iterative computation failed to converge
	// within its iteration budget.
	ErrNoConvergence = errors.New("iteration did not converge")

	// ErrUnderdetermined indicates the regression has more free parameters than
	// observations (negative degrees of freedom).
	ErrUnderdetermined = errors.New("under-determined fit: more free parameters than observations")

	// ErrRankDeficient indicates the regression normal matrix is singular.
	ErrRankDeficient = errors.New("rank-deficient fit")

	// ErrBadConstraint indicates a constraint is contradictory, circular, or
	// references an unknown parameter.
	ErrBadConstraint = errors.New("invalid constraint")

	// ErrNoAnchors indicates a session contains no usable anchor analyses.
	ErrNoAnchors = errors.New("no anchor analyses in session")

	// ErrNoSuchParam indicates a fit parameter name does not exist.
	ErrNoSuchParam = errors.New("no such fit parameter")

	// ErrInvalidCompression indicates an unsupported export compression type.
	ErrInvalidCompression = errors.New("invalid compression type")
)
