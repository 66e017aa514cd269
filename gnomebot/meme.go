package gnomebot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var errInvalidMeme = errors.New("invalid meme response")

// Meme is the response of the meme API's /gimme endpoint
type Meme struct {
	Title     string `json:"title"`
	Subreddit string `json:"subreddit"`
	URL       string `json:"url"`
	Ups       int    `json:"ups"`
	Author    string `json:"author"`
}

// MemeClient fetches random memes
type MemeClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewMemeClient(cfg *MemeConfig, client *http.Client) *MemeClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &MemeClient{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
	}
}

// Random returns a random meme. A response without an image URL is
// reported as errInvalidMeme.
func (m *MemeClient) Random(ctx context.Context) (*Meme, error) {
	u := m.baseURL + "/gimme"
	if m.apiKey != "" {
		u += "?" + url.Values{"api-key": {m.apiKey}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent())

	var meme Meme
	if err := doJSON(m.client, req, &meme); err != nil {
		return nil, fmt.Errorf("error fetching meme: %w", err)
	}
	if meme.URL == "" {
		return nil, errInvalidMeme
	}
	return &meme, nil
}
