package gnomebot

import (
	"context"
	"encoding/json"
	"fmt"
	"golang.org/x/time/rate"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	// wikipediaTopResults is how many search results are inspected
	wikipediaTopResults = 3

	// wikipediaMinTaxonomyTerms is how many taxonomy terms a result's
	// snippet needs before its title counts as an animal
	wikipediaMinTaxonomyTerms = 2

	wikipediaEndpointSearch  = "search"
	wikipediaEndpointSummary = "summary"
)

var taxonomyTerms = []string{
	"species",
	"genus",
	"family",
	"order",
	"class",
	"phylum",
	"kingdom",
	"mammal",
	"bird",
	"reptile",
	"amphibian",
	"fish",
	"insect",
	"arachnid",
	"taxonomy",
	"zoology",
	"wildlife",
	"fauna",
}

// WikipediaClient looks up animals via the MediaWiki search API and
// fetches page summaries via the REST API.
type WikipediaClient struct {
	apiURL  string
	restURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *Metrics
}

func NewWikipediaClient(
	cfg *WikipediaConfig,
	client *http.Client,
	logger *slog.Logger,
	metrics *Metrics,
) *WikipediaClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &WikipediaClient{
		apiURL:  cfg.APIURL,
		restURL: strings.TrimSuffix(cfg.RESTURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
		metrics: metrics,
	}
}

type wikipediaSearchResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"search"`
	} `json:"query"`
}

// PageSummary is the subset of the REST page summary used in embeds
type PageSummary struct {
	Title     string `json:"title"`
	Extract   string `json:"extract"`
	Thumbnail *struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// ThumbnailURL returns the summary's thumbnail, or an empty string
func (p PageSummary) ThumbnailURL() string {
	if p.Thumbnail == nil {
		return ""
	}
	return p.Thumbnail.Source
}

// IsAnimal searches for term and reports a hit if one of the top results
// has a title containing the term, and a snippet mentioning at least two
// taxonomy terms.
func (w *WikipediaClient) IsAnimal(ctx context.Context, term string) (bool, error) {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "search")
	q.Set("format", "json")
	q.Set("srsearch", term)

	var resp wikipediaSearchResponse
	if err := w.getJSON(ctx, w.apiURL+"?"+q.Encode(), &resp); err != nil {
		w.metrics.wikipediaLookup(wikipediaEndpointSearch, outcomeError)
		return false, err
	}

	lowerTerm := strings.ToLower(term)
	results := resp.Query.Search
	if len(results) > wikipediaTopResults {
		results = results[:wikipediaTopResults]
	}
	for _, result := range results {
		if !strings.Contains(strings.ToLower(result.Title), lowerTerm) {
			continue
		}
		if countTaxonomyTerms(result.Snippet) >= wikipediaMinTaxonomyTerms {
			w.metrics.wikipediaLookup(wikipediaEndpointSearch, "hit")
			return true, nil
		}
	}
	w.metrics.wikipediaLookup(wikipediaEndpointSearch, "miss")
	return false, nil
}

func countTaxonomyTerms(snippet string) int {
	snippet = strings.ToLower(snippet)
	count := 0
	for _, term := range taxonomyTerms {
		if strings.Contains(snippet, term) {
			count++
		}
	}
	return count
}

// Summary fetches the REST page summary for the given title
func (w *WikipediaClient) Summary(ctx context.Context, title string) (*PageSummary, error) {
	var summary PageSummary
	err := w.getJSON(ctx, w.restURL+"/page/summary/"+url.PathEscape(title), &summary)
	if err != nil {
		w.metrics.wikipediaLookup(wikipediaEndpointSummary, outcomeError)
		return nil, err
	}
	w.metrics.wikipediaLookup(wikipediaEndpointSummary, outcomeOK)
	return &summary, nil
}

func (w *WikipediaClient) getJSON(ctx context.Context, u string, v any) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent())
	req.Header.Set("Accept", "application/json")

	w.logger.DebugContext(ctx, "wikipedia request", "url", u)
	return doJSON(w.client, req, v)
}

// doJSON sends req and decodes a 200 response body into v
func doJSON(client *http.Client, req *http.Request, v any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	u := req.URL.Host + req.URL.Path
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status from %s: %s", u, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("error decoding response from %s: %w", u, err)
	}
	return nil
}

func userAgent() string {
	return "gnomebot/" + Version + " (+https://github.com/NightSling/discord-bot)"
}
