package common

import (
	"testing"
	"time"
)

func unixTimes(secs ...int64) []time.Time {
	res := make([]time.Time, len(secs))
	for i, s := range secs {
		res[i] = time.Unix(s, 0)
	}
	return res
}

func TestMedianTime(t *testing.T) {
	for _, c := range []struct {
		in  []time.Time
		out int64
	}{
		{unixTimes(5, 3, 4, 2, 1), 3},
		{unixTimes(6, 3, 2, 4, 5, 1), 3},
		{unixTimes(1), 1},
		{nil, 0},
	} {
		if got := MedianTime(c.in).Unix(); got != c.out {
			t.Errorf("MedianTime(%v) => %d != %d", c.in, got, c.out)
		}
	}

	// sub-second parts do not count
	in := []time.Time{time.Unix(10, 900), time.Unix(12, 1)}
	if got := MedianTime(in); !got.Equal(time.Unix(11, 0)) {
		t.Errorf("MedianTime => %v", got)
	}
}
