// Package github fetches pull request metadata and per-file diffs from the
// GitHub REST API. It holds no state between calls.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"prreview/internal/config"
)

// Fetch stages reported by UpstreamFetchError.
const (
	StageMetadata = "metadata"
	StageFiles    = "files"
)

const (
	filesPerPage = 100
	maxBodyBytes = 10 << 20
)

// UpstreamFetchError covers network failures, non-2xx responses and
// malformed bodies from either fetch stage.
type UpstreamFetchError struct {
	Stage  string
	Detail string
}

func (e *UpstreamFetchError) Error() string {
	if e.Stage == StageFiles {
		return "Failed to fetch PR files: " + e.Detail
	}
	return "Failed to fetch PR data: " + e.Detail
}

// ChangeSet is the subset of pull request metadata the pipeline needs.
type ChangeSet struct {
	Repo         string `json:"-"`
	Number       int    `json:"number"`
	Title        string `json:"title"`
	State        string `json:"state"`
	URL          string `json:"url"`
	HTMLURL      string `json:"html_url"`
	ChangedFiles int    `json:"changed_files"`
	Head         struct {
		SHA string `json:"sha"`
	} `json:"head"`
}

// FileDiff is one changed file. Patch is nil for files GitHub returns no
// textual diff for, such as binaries, pure renames or oversized diffs.
type FileDiff struct {
	Filename string  `json:"filename"`
	Status   string  `json:"status"`
	Patch    *string `json:"patch"`
}

// HasPatch reports whether there is diff text to analyze.
func (f FileDiff) HasPatch() bool {
	return f.Patch != nil && strings.TrimSpace(*f.Patch) != ""
}

type Client struct {
	baseURL      string
	defaultToken string
	maxPages     int
	http         *http.Client
}

// NewClient builds a client from config. The default token is used for
// jobs submitted without their own credential.
func NewClient(cfg config.GitHubConfig) *Client {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 30
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		defaultToken: cfg.Token,
		maxPages:     maxPages,
		http:         &http.Client{Timeout: timeout},
	}
}

// httpClient returns a client that sends credential as a bearer token.
func (c *Client) httpClient(credential string) *http.Client {
	if credential == "" {
		credential = c.defaultToken
	}
	if credential == "" {
		return c.http
	}
	return &http.Client{
		Timeout: c.http.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential}),
			Base:   c.http.Transport,
		},
	}
}

// FetchChangeSet loads pull request metadata for repo ("owner/name").
func (c *Client) FetchChangeSet(ctx context.Context, repo string, number int, credential string) (ChangeSet, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/pulls/%d", c.baseURL, repo, number)

	var cs ChangeSet
	if err := c.getJSON(ctx, c.httpClient(credential), endpoint, StageMetadata, &cs); err != nil {
		return ChangeSet{}, err
	}
	if cs.URL == "" {
		return ChangeSet{}, &UpstreamFetchError{Stage: StageMetadata, Detail: "response has no url"}
	}
	cs.Repo = repo
	return cs, nil
}

// FetchFiles lists the changed files of cs in API order, following
// pagination up to the configured page cap.
func (c *Client) FetchFiles(ctx context.Context, cs ChangeSet, credential string) ([]FileDiff, error) {
	base, err := url.Parse(cs.URL + "/files")
	if err != nil {
		return nil, &UpstreamFetchError{Stage: StageFiles, Detail: "invalid files url: " + err.Error()}
	}
	client := c.httpClient(credential)

	var files []FileDiff
	for page := 1; page <= c.maxPages; page++ {
		q := base.Query()
		q.Set("per_page", strconv.Itoa(filesPerPage))
		q.Set("page", strconv.Itoa(page))
		base.RawQuery = q.Encode()

		var batch []FileDiff
		if err := c.getJSON(ctx, client, base.String(), StageFiles, &batch); err != nil {
			return nil, err
		}
		files = append(files, batch...)
		if len(batch) < filesPerPage {
			break
		}
	}
	return files, nil
}

func (c *Client) getJSON(ctx context.Context, client *http.Client, endpoint, stage string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &UpstreamFetchError{Stage: stage, Detail: err.Error()}
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := client.Do(req)
	if err != nil {
		return &UpstreamFetchError{Stage: stage, Detail: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &UpstreamFetchError{Stage: stage, Detail: "read body: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamFetchError{Stage: stage, Detail: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &UpstreamFetchError{Stage: stage, Detail: "malformed response body: " + err.Error()}
	}
	return nil
}
