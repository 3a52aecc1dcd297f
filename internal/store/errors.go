package store

import "errors"

var (
	ErrNotFound              = errors.New("record not found")
	ErrClientNotFound        = errors.New("client not found")
	ErrAuthorizationNotFound = errors.New("authorization not found")
	ErrTaskNotFound          = errors.New("task not found")
	ErrInsuranceMismatch     = errors.New("insurance does not belong to client")
	ErrInvalidStatus         = errors.New("invalid client status")
	ErrUnknownKind           = errors.New("unknown child record kind")
	ErrSnapshotTarget        = errors.New("snapshot path is required")

	ErrSnapshotInProgress = errors.New("snapshot generation already in progress")
)
