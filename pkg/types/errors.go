package types

import "errors"

// Sentinel error kinds from spec.md §7. Wrap with fmt.Errorf("...: %w", ...)
// and compare with errors.Is. handler-failed is intentionally not exported:
// per spec.md §7 it never surfaces past the bus's delivery site.
var (
	ErrNotAllocated       = errors.New("not allocated")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrOperationFailed    = errors.New("operation failed")
	ErrShutdownTimeout    = errors.New("shutdown timeout")
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrImageNotFound      = errors.New("image not found")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrNoViableImage      = errors.New("no viable image")
	ErrAddressExhausted   = errors.New("address exhausted")
	ErrAddressConflict    = errors.New("address already specified in network configuration")
	ErrNotSubscribed      = errors.New("not subscribed")
)
