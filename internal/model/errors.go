package model

import (
	"errors"
	"fmt"
)

// UnknownControlError reports a claim whose control ID does not resolve in the
// loaded taxonomy. This is taxonomy drift or a programming bug, never noise:
// the offending append is rejected whole and the error is surfaced.
type UnknownControlError struct {
	ControlID string
}

func (e *UnknownControlError) Error() string {
	return fmt.Sprintf("unknown control %q: not present in the loaded taxonomy", e.ControlID)
}

// IsUnknownControl reports whether err (or its chain) is an UnknownControlError.
func IsUnknownControl(err error) bool {
	var uc *UnknownControlError
	return errors.As(err, &uc)
}

// ProviderUnavailableError reports a failed inventory or document provider
// call (auth, quota, not-found). Recoverable: the caller is told to retry and
// no session state has been mutated.
type ProviderUnavailableError struct {
	Provider string
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// IsProviderUnavailable reports whether err is a ProviderUnavailableError.
func IsProviderUnavailable(err error) bool {
	var pu *ProviderUnavailableError
	return errors.As(err, &pu)
}

// ArtifactUnreadableError reports a malformed or unparseable artifact.
// Recoverable and per-artifact: one bad artifact does not abort the rest of a
// batch.
type ArtifactUnreadableError struct {
	Ref string
	Err error
}

func (e *ArtifactUnreadableError) Error() string {
	return fmt.Sprintf("artifact %s unreadable: %v", e.Ref, e.Err)
}

func (e *ArtifactUnreadableError) Unwrap() error { return e.Err }

// IsArtifactUnreadable reports whether err is an ArtifactUnreadableError.
func IsArtifactUnreadable(err error) bool {
	var au *ArtifactUnreadableError
	return errors.As(err, &au)
}
