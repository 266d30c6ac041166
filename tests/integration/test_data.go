package integration

import (
	"fmt"
	"time"
)

// AttackerAddress is the source address used for hostile traffic in fixtures
const AttackerAddress = "203.0.113.66"

// TestTenant scopes audit rows written by one test run
const TestTenant = "integration"

// TestEmail generates a unique login identifier using a timestamp
func TestEmail(suffix string) string {
	return fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
}
