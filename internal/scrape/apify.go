package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"alrt/internal/config"
	"alrt/internal/types"

	"golang.org/x/sync/errgroup"
)

// profileFetchLimit is how many recent posts a cadence fetch requests: enough
// for ten posting gaps plus one spare in case the newest item is pinned.
const profileFetchLimit = 12

// ApifyDataSource implements ProfileDataSource against the Apify actor API
// using synchronous actor runs (run-sync-get-dataset-items). Each method
// performs a single attempt; transient failures are mapped to retryable
// AppErrors for the Retrier to handle.
type ApifyDataSource struct {
	http         *httpClient
	baseURL      string
	token        string
	profileActor string
	adsActor     string
	clock        types.Clock
}

// NewApifyDataSource creates an ApifyDataSource from the scrape configuration.
// The provided http.Client should carry no timeout of its own; per-attempt
// deadlines come from the Retrier's context.
func NewApifyDataSource(cfg config.ScrapeConfig, client *http.Client, clock types.Clock) *ApifyDataSource {
	return &ApifyDataSource{
		http:         newHTTPClient(client, "apify", "alrt/1.0"),
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		token:        cfg.APIToken,
		profileActor: cfg.ProfileActor,
		adsActor:     cfg.AdsActor,
		clock:        clock,
	}
}

// actorInput is the run input for the profile scraping actor.
type actorInput struct {
	DirectURLs   []string        `json:"directUrls,omitempty"`
	ResultsLimit int             `json:"resultsLimit,omitempty"`
	ResultsType  string          `json:"resultsType,omitempty"`
	URLs         []actorInputURL `json:"urls,omitempty"`
	Proxy        map[string]any  `json:"proxy,omitempty"`
}

type actorInputURL struct {
	URL string `json:"url"`
}

// residentialProxy is the proxy configuration the profile actor needs to
// avoid upstream blocks on datacenter IPs.
func residentialProxy() map[string]any {
	return map[string]any{
		"useApifyProxy":    true,
		"apifyProxyGroups": []string{"RESIDENTIAL"},
	}
}

// FetchProfile runs the details and posts scrapes concurrently, then derives
// the posting-cadence metrics. An account with no retrievable posts yields
// upstream_no_data, which the Retrier surfaces without further attempts.
func (a *ApifyDataSource) FetchProfile(ctx context.Context, handle string) (*types.ProfileMetrics, error) {
	var (
		details ProfileDetails
		posts   []FetchedPost
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := a.FetchProfileDetails(gctx, handle)
		if err != nil {
			return err
		}
		details = d
		return nil
	})
	g.Go(func() error {
		p, err := a.FetchPosts(gctx, handle, profileFetchLimit)
		if err != nil {
			return err
		}
		posts = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(posts) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamNoData,
			"no posts returned; profile may be private or empty", nil)
	}

	metrics := DeriveProfileMetrics(posts, a.clock.Now())
	metrics.FollowersCount = details.FollowersCount
	metrics.ProfilePictureURL = details.ProfilePictureURL
	return metrics, nil
}

// FetchProfileDetails retrieves account-level metadata (followers, profile
// picture).
func (a *ApifyDataSource) FetchProfileDetails(ctx context.Context, handle string) (ProfileDetails, error) {
	input := actorInput{
		DirectURLs:   []string{profileURL(handle)},
		ResultsLimit: 1,
		ResultsType:  "details",
		Proxy:        residentialProxy(),
	}

	var items []struct {
		FollowersCount int    `json:"followersCount"`
		FollowsCount   int    `json:"followsCount"`
		ProfilePicURL  string `json:"profilePicUrl"`
	}
	if err := a.runActor(ctx, a.profileActor, input, &items); err != nil {
		return ProfileDetails{}, err
	}
	if len(items) == 0 {
		return ProfileDetails{}, types.NewAppError(types.ErrCodeUpstreamNoData,
			"provider returned no profile details", nil)
	}
	return ProfileDetails{
		FollowersCount:    items[0].FollowersCount,
		FollowingCount:    items[0].FollowsCount,
		ProfilePictureURL: items[0].ProfilePicURL,
	}, nil
}

// FetchPosts returns up to limit most recent posts, newest first. Items
// without a parseable timestamp are skipped.
func (a *ApifyDataSource) FetchPosts(ctx context.Context, handle string, limit int) ([]FetchedPost, error) {
	input := actorInput{
		DirectURLs:   []string{profileURL(handle)},
		ResultsLimit: limit,
		ResultsType:  "posts",
		Proxy:        residentialProxy(),
	}

	var items []struct {
		ID            string `json:"id"`
		ShortCode     string `json:"shortCode"`
		URL           string `json:"url"`
		DisplayURL    string `json:"displayUrl"`
		Caption       string `json:"caption"`
		LikesCount    int    `json:"likesCount"`
		CommentsCount int    `json:"commentsCount"`
		Timestamp     string `json:"timestamp"`
		TakenAt       string `json:"takenAt"`
		IsPinned      bool   `json:"isPinned"`
	}
	if err := a.runActor(ctx, a.profileActor, input, &items); err != nil {
		return nil, err
	}

	posts := make([]FetchedPost, 0, len(items))
	for _, item := range items {
		postedAt, ok := parseProviderTime(item.Timestamp, item.TakenAt)
		if !ok {
			continue
		}
		postURL := item.URL
		if postURL == "" && item.ShortCode != "" {
			postURL = "https://www.instagram.com/p/" + item.ShortCode + "/"
		}
		contentID := item.ID
		if contentID == "" {
			contentID = item.ShortCode
		}
		if contentID == "" {
			continue
		}
		posts = append(posts, FetchedPost{
			ContentID:     contentID,
			URL:           postURL,
			ThumbnailURL:  item.DisplayURL,
			Caption:       item.Caption,
			LikesCount:    item.LikesCount,
			CommentsCount: item.CommentsCount,
			PostedAt:      postedAt,
			IsPinned:      item.IsPinned,
		})
	}
	sortPostsNewestFirst(posts)
	return posts, nil
}

// FetchActiveStories returns the currently-active stories for the handle.
// A profile with no live stories is a normal empty result, not an error.
func (a *ApifyDataSource) FetchActiveStories(ctx context.Context, handle string) ([]FetchedStory, error) {
	input := actorInput{
		DirectURLs:   []string{profileURL(handle)},
		ResultsLimit: 50,
		ResultsType:  "stories",
		Proxy:        residentialProxy(),
	}

	var items []struct {
		ID         string `json:"id"`
		DisplayURL string `json:"displayUrl"`
		VideoURL   string `json:"videoUrl"`
		Timestamp  string `json:"timestamp"`
		ExpiresAt  string `json:"expiresAt"`
	}
	if err := a.runActor(ctx, a.profileActor, input, &items); err != nil {
		return nil, err
	}

	stories := make([]FetchedStory, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		postedAt, ok := parseProviderTime(item.Timestamp, "")
		if !ok {
			continue
		}
		mediaURL := item.DisplayURL
		if item.VideoURL != "" {
			mediaURL = item.VideoURL
		}
		expiresAt := postedAt.Add(24 * time.Hour)
		if t, tok := parseProviderTime(item.ExpiresAt, ""); tok {
			expiresAt = t
		}
		stories = append(stories, FetchedStory{
			ContentID: item.ID,
			MediaURL:  mediaURL,
			PostedAt:  postedAt,
			ExpiresAt: expiresAt,
		})
	}
	return stories, nil
}

// CheckAdsLibrary counts currently listed ads for a Facebook page. An item
// counts only if it looks like a real ad record and carries no not-found
// marker; zero valid items means the page runs no ads right now.
func (a *ApifyDataSource) CheckAdsLibrary(ctx context.Context, pageURL string) (types.AdsResult, error) {
	input := actorInput{
		URLs:         []actorInputURL{{URL: NormalizeFacebookURL(pageURL)}},
		ResultsLimit: 10,
		Proxy:        map[string]any{"useApifyProxy": true},
	}

	var items []json.RawMessage
	if err := a.runActor(ctx, a.adsActor, input, &items); err != nil {
		return types.AdsResult{Status: types.AdsError}, err
	}

	count := 0
	for _, raw := range items {
		if adsItemIsValid(raw) {
			count++
		}
	}

	status := types.AdsInactive
	if count > 0 {
		status = types.AdsActive
	}
	return types.AdsResult{Count: count, Status: status}, nil
}

// adsItemIsValid reports whether a dataset item represents an actual ad
// record: it must carry a page-name or ad-id field and no not-found marker.
func adsItemIsValid(raw json.RawMessage) bool {
	if bytes.Contains(raw, []byte("ADS_NOT_FOUND")) {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	for _, key := range []string{"page_name", "Page_name", "ad_id", "Ad_id"} {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}

// NormalizeFacebookURL rewrites regional Facebook hosts to the canonical one
// so the ads-library actor recognizes the page.
func NormalizeFacebookURL(pageURL string) string {
	return strings.Replace(pageURL, "web.facebook.com", "www.facebook.com", 1)
}

// runActor starts a synchronous actor run and decodes its dataset items into
// out, which must be a pointer to a slice.
func (a *ApifyDataSource) runActor(ctx context.Context, actor string, input actorInput, out any) error {
	body, err := json.Marshal(input)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to encode actor input", err)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		a.baseURL, url.PathEscape(actor), url.QueryEscape(a.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build actor request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusNotFound {
			return types.NewAppError(types.ErrCodeUpstreamNoData,
				fmt.Sprintf("actor %s not found or returned no dataset", actor), nil)
		}
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("actor run failed with status %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"failed to decode actor dataset", err)
	}
	return nil
}

// parseProviderTime parses the provider's ISO-8601 timestamps, trying the
// primary field first and the fallback second.
func parseProviderTime(primary, fallback string) (time.Time, bool) {
	for _, raw := range []string{primary, fallback} {
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func profileURL(handle string) string {
	return "https://www.instagram.com/" + url.PathEscape(handle) + "/"
}
