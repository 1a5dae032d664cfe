package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// shortenTimeout bounds the shortlink API call; this is the only network
// call in the system with an explicit timeout, everything else rides on the
// transport defaults.
const shortenTimeout = 10 * time.Second

// Shortener turns a verification deep link into a shortlink. Any failure
// falls back to the unshortened link, so verification never depends on the
// shortlink provider being up.
type Shortener struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewShortener(baseURL, apiKey string, logger *zap.Logger) *Shortener {
	return &Shortener{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: shortenTimeout},
		logger:  logger,
	}
}

type shortenResponse struct {
	Status       string `json:"status"`
	ShortenedURL string `json:"shortenedUrl"`
}

func (s *Shortener) Shorten(ctx context.Context, longURL string) string {
	api := fmt.Sprintf("%s/api?api=%s&url=%s", s.baseURL, s.apiKey, url.QueryEscape(longURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api, nil)
	if err != nil {
		return longURL
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("shortlink request failed, using long url", zap.Error(err))
		return longURL
	}
	defer resp.Body.Close()

	var body shortenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		s.logger.Warn("shortlink response unreadable, using long url", zap.Error(err))
		return longURL
	}
	if body.Status != "success" || body.ShortenedURL == "" {
		return longURL
	}
	return body.ShortenedURL
}
