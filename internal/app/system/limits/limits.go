// internal/app/system/limits/limits.go
package limits

// Request body size limits for the JSON API.
const (
	// MaxJSONBody bounds every decoded request body.
	MaxJSONBody = 16 << 10 // 16 KB

	// MaxStreamMessage bounds frames read from a change stream client.
	MaxStreamMessage = 512
)
