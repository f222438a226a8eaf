package config

import (
	"os"
	"strings"
)

// StrictFinalizedAcceptanceLock locks an acceptance record once it has been
// saved with a non-empty acceptor name: further quantity edits and saves are
// refused. The legacy behavior leaves finalized records mutable, so the lock
// ships behind a flag.
//
// Set via env:
// - STRICT_FINALIZED_ACCEPTANCE_LOCK=true
func StrictFinalizedAcceptanceLock() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_FINALIZED_ACCEPTANCE_LOCK")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// OutboxDispatcherDisabled turns off the background outbox publisher. Useful
// for one-off maintenance runs and local work without Pub/Sub.
//
// Set via env:
// - OUTBOX_DISPATCHER_DISABLED=true
func OutboxDispatcherDisabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_DISPATCHER_DISABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
