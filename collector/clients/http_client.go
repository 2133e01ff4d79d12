package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/Luismorlan/community/collector"
	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/pkg/errors"
)

// HttpClient is a thin wrapper over http.Client carrying fixed headers, used
// for platform REST endpoints that have no Go SDK in use here.
type HttpClient struct {
	header http.Header

	client *http.Client
}

func NewDefaultHttpClient() *HttpClient {
	return &HttpClient{header: http.Header{}, client: &http.Client{}}
}

func NewHttpClient(header http.Header, client *http.Client) *HttpClient {
	if client == nil {
		client = &http.Client{}
	}
	return &HttpClient{header: header, client: client}
}

// NewBearerHttpClient authenticates every request with a bearer token.
func NewBearerHttpClient(bearerToken string, client *http.Client) *HttpClient {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+bearerToken)
	return NewHttpClient(header, client)
}

// GetJSONWithQueryParams sends a GET to uri with params appended as query
// string and decodes the json response into out. A non 2XX response becomes a
// collector.HTTPError.
func (c *HttpClient) GetJSONWithQueryParams(ctx context.Context, uri string, params map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return errors.Wrapf(err, "fail to build request for %s", uri)
	}
	req.Header = c.header.Clone()
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	req.URL.RawQuery = query.Encode()

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "fail to read response of %s", uri)
	}
	if IsNon200HttpResponse(res) {
		Logger.Log.Errorf("non-200 http code: %d, response body is: %s", res.StatusCode, string(body))
		return collector.NewHTTPError(res.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "fail to decode response of %s", uri)
	}
	return nil
}

func IsNon200HttpResponse(res *http.Response) bool {
	return res.StatusCode >= 300
}
