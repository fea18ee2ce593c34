package scheduler

import (
	"strings"
	"time"

	"github.com/nimburion/mountsync/pkg/health"
)

const defaultLockProviderHealthCheckName = "refresh-lock"

// NewLockProviderHealthChecker creates a health checker for the cycle lock provider.
func NewLockProviderHealthChecker(name string, provider LockProvider, timeout time.Duration) health.Checker {
	checkName := strings.TrimSpace(name)
	if checkName == "" {
		checkName = defaultLockProviderHealthCheckName
	}
	return health.NewAdapterChecker(checkName, provider, timeout)
}
