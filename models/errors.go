package models

import "errors"

// Sentinel errors for the acceptance workflow. The transport layer maps these
// to HTTP statuses; anything else coming out of the persistence layer is
// surfaced to the caller verbatim and never retried here.
var (
	ErrorQuantityOutOfRange = errors.New("accepted and rejected quantities exceed the delivered quantity")
	ErrorMissingAcceptor    = errors.New("acceptor name is required")
	ErrorEmptyMessage       = errors.New("message is required")
	ErrorStaleVersion       = errors.New("record was modified by another session")
	ErrorRecordFinalized    = errors.New("acceptance record has been finalized")
)
