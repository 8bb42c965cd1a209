package tenant

import "errors"

// Sentinel errors for the tenant service layer.
var (
	ErrInvalidHandle       = errors.New("handle is empty after normalization")
	ErrOperationInProgress = errors.New("an email-domain operation is already running for this handle")
	ErrJournalUnavailable  = errors.New("run journal is not configured")
)
