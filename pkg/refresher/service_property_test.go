package refresher

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nimburion/mountsync/pkg/directory"
	"github.com/nimburion/mountsync/pkg/testutil"
)

// For any mix of router outcomes, every router is counted exactly once and
// exactly the failed routers are evicted from the client cache.
func TestProperty_TallyMatchesOutcomes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 60
	properties := gopter.NewProperties(parameters)

	properties.Property("success+failure equals routers and failures are invalidated", prop.ForAll(
		func(outcomes []int) bool {
			addresses := make([]string, len(outcomes))
			reloaders := make(map[string]Reloader, len(outcomes))
			var wantFailed []string
			wantSuccess := 0
			for i, outcome := range outcomes {
				addr := fmt.Sprintf("router-%d:8111", i)
				addresses[i] = addr
				switch outcome {
				case 0:
					reloaders[addr] = reloadReturning(true)
					wantSuccess++
				case 1:
					reloaders[addr] = reloadReturning(false)
					wantFailed = append(wantFailed, addr)
				default:
					reloaders[addr] = ReloaderFunc(func(context.Context) (bool, error) {
						return false, fmt.Errorf("router %d failed", i)
					})
					wantFailed = append(wantFailed, addr)
				}
			}

			cache := newFakeCache()
			log := testutil.NewMockLogger()
			svc, err := New(directory.NewStatic(addresses), cache, tasksFor(reloaders), log, Options{BatchTimeout: 5 * time.Second})
			if err != nil {
				return false
			}
			result, err := svc.Refresh(context.Background())
			if err != nil {
				return false
			}

			sort.Strings(wantFailed)
			invalidated := cache.Invalidated()
			if len(invalidated) != len(wantFailed) {
				return false
			}
			for i := range wantFailed {
				if invalidated[i] != wantFailed[i] {
					return false
				}
			}

			tally := fmt.Sprintf("Mount table entries cache refresh successCount=%d,failureCount=%d", wantSuccess, len(wantFailed))
			if len(outcomes) == 0 {
				return len(log.Entries()) == 0
			}
			warned := log.Has("Not all router admins updated their cache")
			return result.Success == wantSuccess &&
				result.Failure == len(wantFailed) &&
				result.Success+result.Failure == len(outcomes) &&
				log.Count("info", tally) == 1 &&
				warned == (len(wantFailed) > 0)
		},
		gen.SliceOf(gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}
