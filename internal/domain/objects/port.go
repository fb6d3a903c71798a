package objects

import "context"

// Store is content-addressed byte storage with deduplication. Objects are
// never modified or deleted through this interface.
type Store interface {
	// Write stores data under its content address. Writing bytes that are
	// already stored reuses the existing object.
	Write(ctx context.Context, data []byte) (Object, error)
	// Read returns the bytes at path, or an error wrapping
	// custody.ErrNotFound when absent.
	Read(ctx context.Context, path string) ([]byte, error)
	// Verify recomputes the hash of the object at path and compares it to
	// expectedHash.
	Verify(ctx context.Context, path, expectedHash string) (matches bool, actualHash string, err error)
}
