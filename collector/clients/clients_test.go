package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/Luismorlan/community/collector"
	"github.com/bwmarrin/discordgo"
	twitterscraper "github.com/n0madic/twitter-scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwitterClient_Followers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/42/followers", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		if r.URL.Query().Get("pagination_token") == "" {
			w.Write([]byte(`{"data": [{"id": "1", "username": "ann"}], "meta": {"next_token": "p2"}}`))
			return
		}
		w.Write([]byte(`{"data": [{"id": "2", "username": "bob"}], "meta": {}}`))
	}))
	defer server.Close()

	client := NewTwitterClient(nil, NewBearerHttpClient("token", server.Client())).WithBaseUri(server.URL)
	records, err := collector.Collect(context.Background(), client, collector.Query{Kind: KindFollowers, Target: "42"})
	require.Nil(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ann", records[0].String("username"))
	assert.Equal(t, "bob", records[1].String("username"))
}

func TestTwitterClient_RateLimitIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewTwitterClient(nil, NewBearerHttpClient("token", server.Client())).WithBaseUri(server.URL)
	_, err := client.Fetch(context.Background(), collector.Query{Kind: KindUsers, Target: "1,2"}, "")
	assert.True(t, collector.IsRetryable(err))
}

func TestSearchQuery(t *testing.T) {
	q := collector.Query{
		Target: "#golang",
		Since:  time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC),
		Until:  time.Date(2022, 2, 3, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "#golang since:2022-01-02 until:2022-02-03", SearchQuery(q))
	assert.Equal(t, "@ann", SearchQuery(collector.Query{Target: "@ann"}))
}

func TestTweetsToPage(t *testing.T) {
	since := time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC)
	tweet := func(id string, ts time.Time) *twitterscraper.Tweet {
		return &twitterscraper.Tweet{ID: id, UserID: "7", Username: "ann", Text: "hi", Timestamp: ts.Unix()}
	}

	page, err := tweetsToPage([]*twitterscraper.Tweet{
		tweet("2", since.Add(time.Hour)),
		tweet("1", since.Add(-time.Hour)),
	}, "next", collector.Query{Since: since})
	require.Nil(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "2", page.Records[0].String("id"))
	assert.Equal(t, "next", page.NextCursor)

	page, err = tweetsToPage([]*twitterscraper.Tweet{tweet("1", since.Add(-time.Hour))}, "next", collector.Query{Since: since})
	require.Nil(t, err)
	assert.Empty(t, page.Records)
	assert.Equal(t, "", page.NextCursor)
}

func TestMessagesToPage(t *testing.T) {
	ts := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)
	messages := []*discordgo.Message{}
	for i := discordMessagesPerPage; i > 0; i-- {
		messages = append(messages, &discordgo.Message{
			ID:        strconv.Itoa(1000 + i),
			ChannelID: "9",
			Content:   "hello",
			Timestamp: ts,
			Author:    &discordgo.User{ID: "5", Username: "ann"},
		})
	}

	page, err := MessagesToPage(messages)
	require.Nil(t, err)
	require.Len(t, page.Records, discordMessagesPerPage)
	assert.Equal(t, "1001", page.Records[0].String("id"))
	assert.Equal(t, "1100", page.NextCursor)
	assert.Equal(t, "ann", page.Records[0].String("author", "username"))
	assert.Equal(t, "5", page.Records[0].String("user_id"))
	parsed, err := page.Records[0].Time("timestamp")
	require.Nil(t, err)
	assert.Equal(t, ts, parsed)

	page, err = MessagesToPage(messages[:3])
	require.Nil(t, err)
	assert.Equal(t, "", page.NextCursor)
}

func TestSnowflakeFromTime(t *testing.T) {
	// Discord documents 175928847299117063 as created at 2016-04-30 11:18:25.796 UTC.
	ts := time.Date(2016, 4, 30, 11, 18, 25, 796*int(time.Millisecond), time.UTC)
	flake, err := strconv.ParseInt(SnowflakeFromTime(ts), 10, 64)
	require.Nil(t, err)
	assert.Equal(t, int64(175928847299117063)>>22, flake>>22)
	assert.Equal(t, "0", SnowflakeFromTime(time.Unix(0, 0)))
}

func TestArchiveSearchBody(t *testing.T) {
	since := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	body, err := ArchiveSearchBody(collector.Query{Kind: KindRepoRelations, Target: "77", Since: since}, `[1641000000000]`)
	require.Nil(t, err)

	var decoded map[string]interface{}
	require.Nil(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, []interface{}{float64(1641000000000)}, decoded["search_after"])
	boolQuery := decoded["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Len(t, boolQuery["filter"], 2)
	assert.Len(t, boolQuery["should"], 3)
	assert.Equal(t, float64(1), boolQuery["minimum_should_match"])

	_, err = ArchiveSearchBody(collector.Query{Kind: KindRepoMessages, Target: "77"}, "not json")
	assert.NotNil(t, err)
}

func TestArchiveResponseToPage(t *testing.T) {
	page, err := ArchiveResponseToPage([]byte(`{"hits": {"hits": [{"_source": {"id": 1}, "sort": [10]}]}}`))
	require.Nil(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "1", page.Records[0].String("id"))
	// A short page is the last one.
	assert.Equal(t, "", page.NextCursor)
}

func TestGithubArchiveClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/github-gha-issues,github-gha-comments/_search", r.URL.Path)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hits": {"hits": [{"_source": {"id": 3, "title": "bug"}, "sort": [1]}]}}`))
	}))
	defer server.Close()

	client, err := NewGithubArchiveClient(ArchiveConfig{Addresses: []string{server.URL}})
	require.Nil(t, err)
	page, err := client.Fetch(context.Background(), collector.Query{Kind: KindRepoMessages, Target: "77"}, "")
	require.Nil(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "bug", page.Records[0].String("title"))

	_, err = client.Fetch(context.Background(), collector.Query{Kind: "unknown"}, "")
	assert.NotNil(t, err)
}
