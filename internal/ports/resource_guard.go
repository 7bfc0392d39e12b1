package ports

// ResourceGuard is a non-reference-counted power resource (wake lock).
// Acquire while held is a no-op; Release while not held is a no-op.
type ResourceGuard interface {
	Acquire() error
	Release() error
	Held() bool
}
