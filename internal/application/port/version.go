package port

import "context"

type expectedVersionKey struct{}

// WithExpectedVersion attaches the version a caller last saw. Mutating operations
// fail with ErrVersionConflict when the stored version differs.
func WithExpectedVersion(ctx context.Context, version int64) context.Context {
	return context.WithValue(ctx, expectedVersionKey{}, version)
}

// ExpectedVersion returns the version attached by WithExpectedVersion, or 0
func ExpectedVersion(ctx context.Context) int64 {
	v, _ := ctx.Value(expectedVersionKey{}).(int64)
	return v
}

type idempotencyKeyKey struct{}

// WithIdempotencyKey pins the key a create or submit call is sent under, so that
// repeated attempts of one logical operation share it
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyKey{}, key)
}

// IdempotencyKey returns the key attached by WithIdempotencyKey, or ""
func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyKey{}).(string)
	return key
}
