package clients

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Luismorlan/community/collector"
	twitterscraper "github.com/n0madic/twitter-scraper"
	"github.com/pkg/errors"
)

const (
	KindUserTweets   = "user_tweets"
	KindSearchTweets = "search_tweets"
	KindLikingUsers  = "liking_users"
	KindFollowers    = "followers"
	KindUsers        = "users"

	TwitterApiBaseUri = "https://api.twitter.com/2"

	twitterUserFields = "created_at,description,entities,id,location,name,pinned_tweet_id," +
		"profile_image_url,protected,public_metrics,url,username,verified,withheld"

	tweetsPerPage = 100
)

// TwitterProfile is what AddHandle needs to register a handle.
type TwitterProfile struct {
	UserID   int64
	Username string
	Name     string
}

// TwitterClient reads timelines and searches through the web scraper, and user
// graphs through the v2 REST API.
//
// Records of tweets carry id, user_id, username, text and timestamp (unix
// seconds) on top of the scraped tweet fields. Records of users are the v2 user
// objects.
type TwitterClient struct {
	scraper *twitterscraper.Scraper
	http    *HttpClient
	baseUri string
}

func NewTwitterClient(scraper *twitterscraper.Scraper, http *HttpClient) *TwitterClient {
	return &TwitterClient{scraper: scraper, http: http, baseUri: TwitterApiBaseUri}
}

// WithBaseUri points the REST calls somewhere else, tests use it.
func (t *TwitterClient) WithBaseUri(uri string) *TwitterClient {
	t.baseUri = strings.TrimSuffix(uri, "/")
	return t
}

func (t *TwitterClient) Fetch(ctx context.Context, q collector.Query, cursor string) (collector.Page, error) {
	switch q.Kind {
	case KindUserTweets:
		tweets, next, err := t.scraper.FetchTweets(q.Target, tweetsPerPage, cursor)
		if err != nil {
			return collector.Page{}, errors.Wrapf(err, "fail to fetch tweets of %s", q.Target)
		}
		return tweetsToPage(tweets, next, q)
	case KindSearchTweets:
		tweets, next, err := t.scraper.FetchSearchTweets(SearchQuery(q), tweetsPerPage, cursor)
		if err != nil {
			return collector.Page{}, errors.Wrapf(err, "fail to search tweets for %s", q.Target)
		}
		return tweetsToPage(tweets, next, q)
	case KindLikingUsers:
		return t.fetchUsers(ctx, fmt.Sprintf("/tweets/%s/liking_users", q.Target), map[string]string{}, cursor)
	case KindFollowers:
		return t.fetchUsers(ctx, fmt.Sprintf("/users/%s/followers", q.Target), map[string]string{"max_results": "1000"}, cursor)
	case KindUsers:
		// Target is a comma separated id list, at most 100 ids, never paged.
		return t.fetchUsers(ctx, "/users", map[string]string{"ids": q.Target}, "")
	}
	return collector.Page{}, fmt.Errorf("twitter client does not support %s", q.Kind)
}

// GetProfile resolves a handle to its numeric user id.
func (t *TwitterClient) GetProfile(ctx context.Context, handle string) (TwitterProfile, error) {
	profile, err := t.scraper.GetProfile(strings.TrimPrefix(handle, "@"))
	if err != nil {
		return TwitterProfile{}, errors.Wrapf(err, "fail to get profile of %s", handle)
	}
	id, err := strconv.ParseInt(profile.UserID, 10, 64)
	if err != nil {
		return TwitterProfile{}, errors.Wrapf(err, "profile of %s has invalid id %q", handle, profile.UserID)
	}
	return TwitterProfile{UserID: id, Username: profile.Username, Name: profile.Name}, nil
}

type twitterUsersResponse struct {
	Data []map[string]interface{} `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

func (t *TwitterClient) fetchUsers(ctx context.Context, path string, params map[string]string, cursor string) (collector.Page, error) {
	params["user.fields"] = twitterUserFields
	if cursor != "" {
		params["pagination_token"] = cursor
	}
	var res twitterUsersResponse
	if err := t.http.GetJSONWithQueryParams(ctx, t.baseUri+path, params, &res); err != nil {
		return collector.Page{}, err
	}
	page := collector.Page{NextCursor: res.Meta.NextToken}
	for _, u := range res.Data {
		page.Records = append(page.Records, collector.Record(u))
	}
	return page, nil
}

// SearchQuery appends the crawl window of q as search operators.
func SearchQuery(q collector.Query) string {
	parts := []string{q.Target}
	if !q.Since.IsZero() {
		parts = append(parts, "since:"+q.Since.Format("2006-01-02"))
	}
	if !q.Until.IsZero() {
		parts = append(parts, "until:"+q.Until.Format("2006-01-02"))
	}
	return strings.Join(parts, " ")
}

func tweetsToPage(tweets []*twitterscraper.Tweet, next string, q collector.Query) (collector.Page, error) {
	page := collector.Page{NextCursor: next}
	if len(tweets) == 0 {
		// The scraper keeps handing out cursors past the last tweet.
		page.NextCursor = ""
		return page, nil
	}
	older := 0
	for _, tweet := range tweets {
		ts := time.Unix(tweet.Timestamp, 0).UTC()
		if !q.Since.IsZero() && ts.Before(q.Since) {
			older++
			continue
		}
		if !q.Until.IsZero() && !ts.Before(q.Until) {
			continue
		}
		record, err := TweetToRecord(tweet)
		if err != nil {
			return collector.Page{}, err
		}
		page.Records = append(page.Records, record)
	}
	// Timelines are newest first, once a whole page predates the window there
	// is nothing left to read.
	if older == len(tweets) {
		page.NextCursor = ""
	}
	return page, nil
}

// TweetToRecord flattens a scraped tweet. Nested tweets are dropped, they are
// crawled on their own.
func TweetToRecord(tweet *twitterscraper.Tweet) (collector.Record, error) {
	flat := *tweet
	flat.InReplyToStatus = nil
	flat.QuotedStatus = nil
	flat.RetweetedStatus = nil
	record, err := collector.NewRecord(flat)
	if err != nil {
		return nil, err
	}
	record["id"] = tweet.ID
	record["user_id"] = tweet.UserID
	record["username"] = tweet.Username
	record["text"] = tweet.Text
	record["timestamp"] = tweet.Timestamp
	return record, nil
}
