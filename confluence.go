// Confluence REST API client.
// Only the read endpoints the exporter and the page-link lookup need.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// pageSize is the limit requested from every paginated endpoint.
const pageSize = 100

// apiError is a non-2xx response from the API.
type apiError struct {
	Status int
	URL    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.Status, e.URL)
}

// Unwrap makes errors.Is(err, errPageNotFound) hold for 404 responses.
func (e *apiError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return errPageNotFound
	}
	return nil
}

type apiSpace struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Homepage *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"homepage"`
}

type apiPage struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		ExportView struct {
			Value string `json:"value"`
		} `json:"export_view"`
	} `json:"body"`
	Version struct {
		Number int    `json:"number"`
		When   string `json:"when"`
	} `json:"version"`
	Ancestors []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"ancestors"`
}

type apiAttachment struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Links struct {
		Download string `json:"download"`
	} `json:"_links"`
}

// apiList is the envelope of every paginated response.
type apiList[T any] struct {
	Results []T `json:"results"`
	Size    int `json:"size"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// confluenceClient talks to one Confluence instance with HTTP basic auth.
type confluenceClient struct {
	base     string // instance root without trailing slash, e.g. https://x.atlassian.net/wiki
	username string
	token    string
	http     *http.Client
	maxBody  int64
}

func newConfluenceClient(rawURL, username, token string, opts httpOptions, maxBody int64) (*confluenceClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL %q: scheme must be http or https", rawURL)
	}
	return &confluenceClient{
		base:     strings.TrimRight(rawURL, "/"),
		username: username,
		token:    token,
		http:     newHTTPClient(opts, u.Scheme),
		maxBody:  maxBody,
	}, nil
}

// get issues an authenticated GET for base+ref and returns the decoded
// response body. The caller closes it.
func (c *confluenceClient) get(ctx context.Context, ref string) (io.ReadCloser, error) {
	target := c.base + ref
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if c.username != "" || c.token != "" {
		req.SetBasicAuth(c.username, c.token)
	}
	req.Header.Set("User-Agent", "wikiexport/"+version)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br, gzip")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &apiError{Status: resp.StatusCode, URL: target}
	}

	body, err := decodedBody(resp)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{body, resp.Body}, nil
}

func (c *confluenceClient) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	ref := path
	if len(query) > 0 {
		ref += "?" + query.Encode()
	}
	body, err := c.get(ctx, ref)
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := readLimited(body, c.maxBody)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// paginate collects every result of a paginated endpoint.
func paginate[T any](ctx context.Context, c *confluenceClient, path string, query url.Values) ([]T, error) {
	var all []T
	for start := 0; ; {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("start", strconv.Itoa(start))
		q.Set("limit", strconv.Itoa(pageSize))

		var list apiList[T]
		if err := c.getJSON(ctx, path, q, &list); err != nil {
			return nil, err
		}
		all = append(all, list.Results...)
		if list.Links.Next == "" || len(list.Results) == 0 {
			return all, nil
		}
		start += len(list.Results)
	}
}

func (c *confluenceClient) spaces(ctx context.Context) ([]apiSpace, error) {
	return paginate[apiSpace](ctx, c, "/rest/api/space", url.Values{
		"expand": {"description.plain,homepage"},
	})
}

func (c *confluenceClient) page(ctx context.Context, id string) (apiPage, error) {
	var p apiPage
	err := c.getJSON(ctx, "/rest/api/content/"+url.PathEscape(id), url.Values{
		"expand": {"body.export_view,version"},
	}, &p)
	if err != nil {
		return apiPage{}, fmt.Errorf("page %s: %w", id, err)
	}
	return p, nil
}

func (c *confluenceClient) childPageIDs(ctx context.Context, id string) ([]string, error) {
	children, err := paginate[apiPage](ctx, c, "/rest/api/content/"+url.PathEscape(id)+"/child/page", nil)
	if err != nil {
		return nil, fmt.Errorf("children of page %s: %w", id, err)
	}
	ids := make([]string, 0, len(children))
	for _, ch := range children {
		ids = append(ids, ch.ID)
	}
	return ids, nil
}

func (c *confluenceClient) attachments(ctx context.Context, id string) ([]apiAttachment, error) {
	atts, err := paginate[apiAttachment](ctx, c, "/rest/api/content/"+url.PathEscape(id)+"/child/attachment", nil)
	if err != nil {
		return nil, fmt.Errorf("attachments of page %s: %w", id, err)
	}
	return atts, nil
}

// download streams the resource at ref (an API "download" link, relative to
// the instance root) into w.
func (c *confluenceClient) download(ctx context.Context, ref string, w io.Writer) (int64, error) {
	body, err := c.get(ctx, ref)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	return copyLimited(w, body, c.maxBody)
}

// Ancestry implements pageLookup against the live API.
func (c *confluenceClient) Ancestry(ctx context.Context, pageID string) (pagePath, error) {
	var p apiPage
	err := c.getJSON(ctx, "/rest/api/content/"+url.PathEscape(pageID), url.Values{
		"expand": {"ancestors"},
	}, &p)
	if err != nil {
		return pagePath{}, err
	}
	pp := pagePath{Title: p.Title}
	for _, a := range p.Ancestors {
		if a.Title != "" {
			pp.Ancestors = append(pp.Ancestors, a.Title)
		}
	}
	return pp, nil
}
