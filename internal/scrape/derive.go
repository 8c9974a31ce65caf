package scrape

import (
	"math"
	"sort"
	"time"

	"alrt/internal/types"
)

// maxIntervalGaps caps how many posting gaps contribute to the average
// interval, so one very old post cannot skew the cadence of an otherwise
// active profile.
const maxIntervalGaps = 10

// DeriveProfileMetrics turns a list of fetched posts into posting-cadence
// metrics. Posts must be non-empty and are sorted newest first in place.
// Followers and profile picture are filled in by the caller from the
// details fetch.
//
// The traffic-light signal is inverted relative to its colloquial reading:
// RED means the profile is posting normally and needs no attention, YELLOW
// means it has fallen behind its own cadence, GREEN means it has been silent
// for over two weeks and is a prime outreach target.
func DeriveProfileMetrics(posts []FetchedPost, now time.Time) *types.ProfileMetrics {
	sortPostsNewestFirst(posts)

	latest := posts[0]
	daysInactive := int(now.Sub(latest.PostedAt).Hours() / 24)
	if daysInactive < 0 {
		daysInactive = 0
	}

	avgInterval := averagePostingInterval(posts)

	signal := types.SignalRed
	threshold := math.Max(avgInterval+2, 5)
	if float64(daysInactive) > threshold {
		signal = types.SignalYellow
	}
	if daysInactive > 14 {
		signal = types.SignalGreen
	}

	return &types.ProfileMetrics{
		LastPostDate:       latest.PostedAt,
		LastPostURL:        latest.URL,
		DaysInactive:       daysInactive,
		AvgPostingInterval: math.Round(avgInterval*10) / 10,
		StatusSignal:       signal,
	}
}

// averagePostingInterval computes the mean gap, in whole days, between
// consecutive posts, over at most maxIntervalGaps most recent gaps. A single
// post yields zero.
func averagePostingInterval(posts []FetchedPost) float64 {
	if len(posts) < 2 {
		return 0
	}

	gaps := len(posts) - 1
	if gaps > maxIntervalGaps {
		gaps = maxIntervalGaps
	}

	total := 0
	for i := 0; i < gaps; i++ {
		diff := int(posts[i].PostedAt.Sub(posts[i+1].PostedAt).Hours() / 24)
		total += diff
	}
	return float64(total) / float64(gaps)
}

func sortPostsNewestFirst(posts []FetchedPost) {
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].PostedAt.After(posts[j].PostedAt)
	})
}
