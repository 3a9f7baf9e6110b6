// internal/app/system/limits/limits.go
package limits

// Request body size limits for inbound endpoints.
// These limits help prevent memory exhaustion from oversized requests.
const (
	// MaxCallbackBody is the largest mobile-money callback accepted. Result
	// callbacks are well under 4 KB; the headroom covers verbose metadata.
	MaxCallbackBody = 64 << 10 // 64 KB
)
