package port

import (
	"context"
	"time"
)

// URLSigner issues time-limited retrieval handles for private file objects.
type URLSigner interface {
	SignURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}
