package internal

import (
	"fmt"
	"runtime"
)

// Version is the current version of parlor
// This should be updated with each release
const Version = "0.3.0"

// UserAgent identifies the client on every API request, which makes server
// logs readable when several builds talk to the same instance.
func UserAgent() string {
	return fmt.Sprintf("parlor/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}
