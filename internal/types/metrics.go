package types

import "time"

// ProfileMetrics is the derived outcome of a successful profile fetch: the
// posting-cadence numbers and the traffic-light signal computed from them.
// Workers persist these onto the TrackedAccount verbatim.
type ProfileMetrics struct {
	LastPostDate       time.Time    `json:"last_post_date"`
	LastPostURL        string       `json:"last_post_url"`
	DaysInactive       int          `json:"days_inactive"`
	FollowersCount     int          `json:"followers_count"`
	AvgPostingInterval float64      `json:"avg_posting_interval"`
	StatusSignal       StatusSignal `json:"status_signal"`
	ProfilePictureURL  string       `json:"profile_picture_url,omitempty"`
}

// AdsResult is the outcome of a Facebook ads-library check.
type AdsResult struct {
	Count  int       `json:"count"`
	Status AdsStatus `json:"status"`
}
