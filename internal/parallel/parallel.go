// Package parallel implements a fixed-group work splitter adapted from
// this module's teacher repository's utils.GroupWorkParallel: it divides a
// fixed amount of index-addressable work into Factor contiguous
// groups and runs one goroutine per group. correlate uses it to generate a
// large synthetic random catalog without serializing on a single
// goroutine, while keeping each group's output in a caller-addressable
// slot so the result stays reproducible under a fixed seed.
package parallel

import (
	"math"
	"runtime"
	"sync"

	"go.viam.com/utils"
)

// Factor controls the number of groups work is split into.
var Factor = runtime.GOMAXPROCS(0)

func init() {
	if Factor <= 0 {
		Factor = 1
	}
}

// MemberWorkFunc runs for each work item (member) of a group. memberNum is
// the item's position within its group; workNum is its global index.
type MemberWorkFunc func(memberNum, workNum int)

// GroupWorkFunc is called once per group to obtain the function that
// processes that group's members, given the group's index and the
// half-open range [from, to) of global work indices it owns.
type GroupWorkFunc func(groupNum, from, to int) MemberWorkFunc

// GroupWork splits [0, totalSize) into Factor contiguous groups and runs
// each group's work concurrently, returning once every group has
// finished. Work item ordering within a group is always ascending, so a
// GroupWorkFunc that writes workNum into a pre-sized slice produces a
// result independent of goroutine scheduling.
func GroupWork(totalSize int, groupWork GroupWorkFunc) {
	if totalSize == 0 {
		return
	}
	numGroups := Factor
	if numGroups > totalSize {
		numGroups = totalSize
	}
	groupSize := int(math.Floor(float64(totalSize) / float64(numGroups)))
	extra := totalSize - groupSize*numGroups

	var wg sync.WaitGroup
	wg.Add(numGroups)
	for groupNum := 0; groupNum < numGroups; groupNum++ {
		groupNum := groupNum
		from := groupSize * groupNum
		to := from + groupSize
		if groupNum == numGroups-1 {
			to += extra
		}
		// utils.PanicCapturingGo matches the teacher's own convention for
		// worker goroutines: a panic in one group is logged rather than
		// bringing down the whole process.
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			memberWork := groupWork(groupNum, from, to)
			if memberWork == nil {
				return
			}
			for workNum, memberNum := from, 0; workNum < to; workNum, memberNum = workNum+1, memberNum+1 {
				memberWork(memberNum, workNum)
			}
		})
	}
	wg.Wait()
}
