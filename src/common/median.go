package common

import (
	"sort"
	"time"
)

// MedianTime returns the median of times at second precision. With an even
// count it is the mean of the two middle values, rounded down. An empty input
// gives the Unix epoch.
func MedianTime(times []time.Time) time.Time {
	secs := make([]int64, len(times))
	for i, t := range times {
		secs[i] = t.Unix()
	}
	sort.Slice(secs, func(i, j int) bool { return secs[i] < secs[j] })

	switch l := len(secs); {
	case l == 0:
		return time.Unix(0, 0)
	case l%2 == 0:
		return time.Unix((secs[l/2-1]+secs[l/2])/2, 0)
	default:
		return time.Unix(secs[l/2], 0)
	}
}
