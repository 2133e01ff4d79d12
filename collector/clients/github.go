package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Luismorlan/community/collector"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/go-github/v68/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	KindRepoEvents    = "repo_events"
	KindRepoRelations = "repo_relations"
	KindRepoMessages  = "repo_messages"
	KindUserProfiles  = "user_profiles"

	archivePageSize = 1000
)

// Archive indices, one per record family.
var archiveIndices = map[string][]string{
	KindRepoEvents:    {"github-gha-events"},
	KindRepoRelations: {"github-repo-user-stat"},
	KindRepoMessages:  {"github-gha-issues", "github-gha-comments"},
	KindUserProfiles:  {"github-gha-users"},
}

type ArchiveConfig struct {
	Addresses []string
	Username  string
	Password  string
}

// GithubArchiveClient searches the GitHub activity archive kept in
// Elasticsearch. Records are the stored documents.
type GithubArchiveClient struct {
	es *elasticsearch.Client
}

func NewGithubArchiveClient(cfg ArchiveConfig) (*GithubArchiveClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "fail to create elasticsearch client")
	}
	return &GithubArchiveClient{es: es}, nil
}

// Fetch runs one search_after page. For repo kinds Target is the repo id, for
// KindUserProfiles it is a comma separated user id list.
func (g *GithubArchiveClient) Fetch(ctx context.Context, q collector.Query, cursor string) (collector.Page, error) {
	indices, ok := archiveIndices[q.Kind]
	if !ok {
		return collector.Page{}, fmt.Errorf("github archive does not support %s", q.Kind)
	}
	body, err := ArchiveSearchBody(q, cursor)
	if err != nil {
		return collector.Page{}, err
	}

	res, err := g.es.Search(
		g.es.Search.WithContext(ctx),
		g.es.Search.WithIndex(indices...),
		g.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return collector.Page{}, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return collector.Page{}, errors.Wrap(err, "fail to read search response")
	}
	if res.IsError() {
		return collector.Page{}, collector.NewHTTPError(res.StatusCode, string(raw))
	}
	return ArchiveResponseToPage(raw)
}

// ArchiveSearchBody builds the search request for q resuming after cursor.
func ArchiveSearchBody(q collector.Query, cursor string) ([]byte, error) {
	filters := []interface{}{}
	should := []interface{}{}
	switch q.Kind {
	case KindRepoEvents:
		for _, field := range []string{"repo_id", "prrepo_id", "forkrepo_id"} {
			should = append(should, term(field, q.Target))
		}
	case KindRepoRelations:
		filters = append(filters, term("repo_id", q.Target))
		for _, field := range []string{"watching", "starred", "forked"} {
			should = append(should, term(field, true))
		}
	case KindRepoMessages:
		filters = append(filters, term("repo_id", q.Target))
	case KindUserProfiles:
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"user_id": strings.Split(q.Target, ",")},
		})
	}
	if !q.Since.IsZero() {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"timestamp": map[string]interface{}{"gte": q.Since}},
		})
	}
	boolQuery := map[string]interface{}{"filter": filters}
	if len(should) > 0 {
		boolQuery["should"] = should
		boolQuery["minimum_should_match"] = 1
	}
	body := map[string]interface{}{
		"size":  archivePageSize,
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  []interface{}{map[string]interface{}{"timestamp": "asc"}},
	}
	if cursor != "" {
		var after []interface{}
		if err := json.Unmarshal([]byte(cursor), &after); err != nil {
			return nil, errors.Wrapf(err, "invalid archive cursor %q", cursor)
		}
		body["search_after"] = after
	}
	return json.Marshal(body)
}

type archiveResponse struct {
	Hits struct {
		Hits []struct {
			Source map[string]interface{} `json:"_source"`
			Sort   []interface{}          `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

// ArchiveResponseToPage turns a search response into a page, the sort values
// of the last hit are the cursor.
func ArchiveResponseToPage(raw []byte) (collector.Page, error) {
	var res archiveResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return collector.Page{}, errors.Wrap(err, "fail to decode search response")
	}
	page := collector.Page{}
	for _, hit := range res.Hits.Hits {
		page.Records = append(page.Records, collector.Record(hit.Source))
	}
	hits := res.Hits.Hits
	if len(hits) == archivePageSize {
		cursor, err := json.Marshal(hits[len(hits)-1].Sort)
		if err != nil {
			return collector.Page{}, errors.Wrap(err, "fail to encode archive cursor")
		}
		page.NextCursor = string(cursor)
	}
	return page, nil
}

func term(field string, value interface{}) map[string]interface{} {
	return map[string]interface{}{"term": map[string]interface{}{field: value}}
}

// GithubRepo is a discovery result.
type GithubRepo struct {
	ID    int64
	Owner string
	Name  string
}

// GithubRepoClient lists repositories through the REST API.
type GithubRepoClient struct {
	client *github.Client
}

// NewGithubRepoClient authenticates with token when it is not empty.
func NewGithubRepoClient(ctx context.Context, token string) *GithubRepoClient {
	if token == "" {
		return &GithubRepoClient{client: github.NewClient(nil)}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &GithubRepoClient{client: github.NewClient(oauth2.NewClient(ctx, ts))}
}

// ListRepos returns every public repository of a user or organization.
func (g *GithubRepoClient) ListRepos(ctx context.Context, owner string) ([]GithubRepo, error) {
	opts := &github.RepositoryListByUserOptions{ListOptions: github.ListOptions{PerPage: 100}}
	res := []GithubRepo{}
	for {
		repos, resp, err := g.client.Repositories.ListByUser(ctx, owner, opts)
		if err != nil {
			return nil, translateGithubError(err)
		}
		for _, r := range repos {
			res = append(res, GithubRepo{ID: r.GetID(), Owner: r.GetOwner().GetLogin(), Name: r.GetName()})
		}
		if resp.NextPage == 0 {
			return res, nil
		}
		opts.Page = resp.NextPage
	}
}

func translateGithubError(err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return collector.NewHTTPError(429, rateErr.Message)
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return collector.NewHTTPError(respErr.Response.StatusCode, respErr.Message)
	}
	return err
}
