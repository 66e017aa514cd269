package gnomebot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// GitHubClient fetches organization and contributor data for the status
// and community commands.
type GitHubClient struct {
	apiURL          string
	token           string
	org             string
	repo            string
	contributorsURL string
	client          *http.Client
	logger          *slog.Logger
}

func NewGitHubClient(cfg *GitHubConfig, client *http.Client, logger *slog.Logger) *GitHubClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &GitHubClient{
		apiURL:          strings.TrimSuffix(cfg.APIURL, "/"),
		token:           cfg.Token,
		org:             cfg.Org,
		repo:            cfg.Repo,
		contributorsURL: cfg.ContributorsURL,
		client:          client,
		logger:          logger,
	}
}

// Organization is the subset of GET /orgs/{org} shown by /about
type Organization struct {
	Login           string `json:"login"`
	Description     string `json:"description"`
	PublicRepos     int    `json:"public_repos"`
	Followers       int    `json:"followers"`
	Location        string `json:"location"`
	Blog            string `json:"blog"`
	TwitterUsername string `json:"twitter_username"`
	HTMLURL         string `json:"html_url"`
	AvatarURL       string `json:"avatar_url"`
}

// Contributor is a repository contributor. The profile fields are only
// present in the curated contributors list, not the repository API.
type Contributor struct {
	Login         string `json:"login"`
	HTMLURL       string `json:"html_url"`
	AvatarURL     string `json:"avatar_url"`
	Contributions int    `json:"contributions"`
	Name          string `json:"name"`
	Location      string `json:"location"`
	Bio           string `json:"bio"`
	Company       string `json:"company"`
	Blog          string `json:"blog"`
}

// Organization fetches the configured organization
func (g *GitHubClient) Organization(ctx context.Context) (*Organization, error) {
	var org Organization
	if err := g.api(ctx, "/orgs/"+url.PathEscape(g.org), &org); err != nil {
		return nil, fmt.Errorf("error fetching organization %q: %w", g.org, err)
	}
	return &org, nil
}

// RepoContributors lists contributors to the configured repository, most
// contributions first.
func (g *GitHubClient) RepoContributors(ctx context.Context) ([]Contributor, error) {
	var contributors []Contributor
	path := fmt.Sprintf("/repos/%s/%s/contributors", url.PathEscape(g.org), url.PathEscape(g.repo))
	if err := g.api(ctx, path, &contributors); err != nil {
		return nil, fmt.Errorf("error fetching contributors for %s/%s: %w", g.org, g.repo, err)
	}
	return contributors, nil
}

// Contributors fetches the curated contributor list used by /contributors
func (g *GitHubClient) Contributors(ctx context.Context) ([]Contributor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.contributorsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent())

	var contributors []Contributor
	if err := doJSON(g.client, req, &contributors); err != nil {
		return nil, fmt.Errorf("error fetching contributor list: %w", err)
	}
	return contributors, nil
}

func (g *GitHubClient) api(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent())
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	contextLoggerOr(ctx, g.logger).DebugContext(ctx, "github request", "path", path)
	return doJSON(g.client, req, v)
}

// topContributorLogins returns up to n logins, in the order given
func topContributorLogins(contributors []Contributor, n int) []string {
	logins := make([]string, 0, n)
	for _, c := range contributors {
		if len(logins) == n {
			break
		}
		logins = append(logins, c.Login)
	}
	return logins
}
