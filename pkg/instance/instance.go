package instance

import "os"

// GetID returns the process instance identifier used in startup logs.
func GetID() string {
	if id := os.Getenv("STOCKTAKE_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
