package pipeline

import (
	"errors"
	"fmt"

	"loreweaver/internal/store"
)

// Kind classifies a generation failure so the caller can decide between
// retrying verbatim, editing the prompt, or abandoning.
type Kind string

const (
	// KindInvalidRequest is caught before any model call and never retried.
	KindInvalidRequest Kind = "invalid_request"
	// KindProviderUnavailable covers network faults, timeouts, unsupported
	// capabilities, and malformed model output.
	KindProviderUnavailable Kind = "provider_unavailable"
	// KindRejected means the critic disapproved after the bounded retry.
	// The failure carries the last draft and report.
	KindRejected Kind = "rejected"
	// KindConsistencyViolation is an invariant breach detected at commit.
	KindConsistencyViolation Kind = "consistency_violation"
	// KindStoreUnavailable means a store was unreachable at whichever
	// phase needed it.
	KindStoreUnavailable Kind = "store_unavailable"
)

type Failure struct {
	Kind   Kind
	Detail string

	// Draft and Report are populated on rejection so the caller sees what
	// was written and why it was refused.
	Draft  string
	Report *store.CriticReport

	cause error
}

func (f *Failure) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
	}
	return string(f.Kind)
}

func (f *Failure) Unwrap() error { return f.cause }

func failf(kind Kind, cause error, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...), cause: cause}
}

// AsFailure unwraps err to the pipeline failure inside it, if any.
func AsFailure(err error) (*Failure, bool) {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}

// commitFailure classifies an updater error. A sequence conflict means the
// per-project serialization was subverted somewhere; everything else from
// the commit path is a store fault.
func commitFailure(err error) *Failure {
	if errors.Is(err, store.ErrSequenceConflict) {
		return failf(KindConsistencyViolation, err, "%v", err)
	}
	if errors.Is(err, store.ErrNotFound) {
		return failf(KindConsistencyViolation, err, "%v", err)
	}
	return failf(KindStoreUnavailable, err, "%v", err)
}
