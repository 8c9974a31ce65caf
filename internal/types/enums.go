package types

// CheckStatus represents the lifecycle state of an account's most recent
// profile check. These values MUST match the CHECK constraint on the
// tracked_accounts table.
type CheckStatus string

const (
	CheckPending    CheckStatus = "pending"
	CheckQueued     CheckStatus = "queued"
	CheckProcessing CheckStatus = "processing"
	CheckSuccess    CheckStatus = "success"
	CheckFailed     CheckStatus = "failed"
)

// Valid reports whether s is a known check status.
func (s CheckStatus) Valid() bool {
	switch s {
	case CheckPending, CheckQueued, CheckProcessing, CheckSuccess, CheckFailed:
		return true
	}
	return false
}

// StatusSignal is the activity-health classification derived from posting
// cadence. RED means the account posts normally, YELLOW means it has gone
// quiet relative to its own cadence, GREEN means it has been silent for more
// than two weeks.
type StatusSignal string

const (
	SignalRed    StatusSignal = "RED"
	SignalYellow StatusSignal = "YELLOW"
	SignalGreen  StatusSignal = "GREEN"
)

// Valid reports whether s is a known status signal.
func (s StatusSignal) Valid() bool {
	switch s {
	case SignalRed, SignalYellow, SignalGreen:
		return true
	}
	return false
}

// AdsStatus represents the state of the Facebook ads-library check for an
// account's linked page.
type AdsStatus string

const (
	AdsUnknown  AdsStatus = "UNKNOWN"
	AdsChecking AdsStatus = "CHECKING"
	AdsActive   AdsStatus = "ACTIVE"
	AdsInactive AdsStatus = "INACTIVE"
	AdsError    AdsStatus = "ERROR"
)

// Valid reports whether s is a known ads status.
func (s AdsStatus) Valid() bool {
	switch s {
	case AdsUnknown, AdsChecking, AdsActive, AdsInactive, AdsError:
		return true
	}
	return false
}

// LeadStatus is the CRM pipeline stage a tracked account is in.
type LeadStatus string

const (
	LeadNew         LeadStatus = "NEW_LEAD"
	LeadContacted   LeadStatus = "CONTACTED"
	LeadNegotiating LeadStatus = "NEGOTIATING"
	LeadWon         LeadStatus = "WON"
	LeadLost        LeadStatus = "LOST"
)

// Valid reports whether s is a known lead status.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadContacted, LeadNegotiating, LeadWon, LeadLost:
		return true
	}
	return false
}

// TaskKind identifies which work queue a scrape task belongs to.
type TaskKind string

const (
	TaskProfileRefresh TaskKind = "profile_refresh"
	TaskAdsCheck       TaskKind = "ads_check"
	TaskStoriesRefresh TaskKind = "stories_refresh"
)

// PlanTier identifies the subscription tier of a user, which caps how many
// accounts they may track.
type PlanTier string

const (
	PlanBronze PlanTier = "bronze"
	PlanSilver PlanTier = "silver"
	PlanGold   PlanTier = "gold"
)
