package schedule

import "errors"

var (
	// ErrSchedulingDisabled is returned when a client's scheduling flag is off.
	ErrSchedulingDisabled = errors.New("scheduling is disabled for this client")
	// ErrSubjectNotFound is returned when the client does not exist.
	ErrSubjectNotFound = errors.New("client not found")
	// ErrMissingInputs marks a client without the data required to generate;
	// the job fails before any external call and is not retried.
	ErrMissingInputs = errors.New("client is missing required generation inputs")
)
