// Package retrieval fetches video transcripts from the public watch and
// timedtext endpoints.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/woktalk/recipe-engine/internal/recipe"
	"github.com/woktalk/recipe-engine/internal/videoid"
)

// Config controls the transcript client.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Languages is the caption language preference order, e.g.
	// ["zh-HK", "zh-TW", "en", "zh-CN"].
	Languages []string
}

// Client retrieves transcripts via a Colly collector. A video without
// captions yields an empty transcript, not an error: the enrichment call can
// still work from the video alone.
type Client struct {
	baseCollector *colly.Collector
	languages     []string
	logger        *zap.Logger

	// watchBase is overridable in tests.
	watchBase string
}

// New constructs a configured transcript client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	opts := []colly.CollectorOption{
		colly.Async(true),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	base := colly.NewCollector(opts...)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)

	return &Client{
		baseCollector: base,
		languages:     append([]string(nil), cfg.Languages...),
		logger:        logger,
		watchBase:     "https://www.youtube.com/watch?v=",
	}, nil
}

// Fetch resolves rawInput to a video key, scrapes the watch page for caption
// tracks, and downloads the best matching track as plain text.
func (c *Client) Fetch(ctx context.Context, rawInput string) (recipe.Transcript, error) {
	key, err := videoid.Normalize(rawInput)
	if err != nil {
		return recipe.Transcript{}, fmt.Errorf("normalize input: %w", err)
	}

	watchURL := c.watchBase + key.String()
	body, err := c.get(ctx, watchURL)
	if err != nil {
		return recipe.Transcript{}, fmt.Errorf("fetch watch page: %w", err)
	}

	tracks, err := extractCaptionTracks(body)
	if err != nil {
		return recipe.Transcript{}, fmt.Errorf("extract caption tracks: %w", err)
	}
	track, ok := selectTrack(tracks, c.languages)
	if !ok {
		c.logger.Info("video has no caption tracks", zap.String("key", key.String()))
		return recipe.Transcript{Key: key}, nil
	}

	ttBody, err := c.get(ctx, track.BaseURL)
	if err != nil {
		return recipe.Transcript{}, fmt.Errorf("fetch timedtext: %w", err)
	}
	text, err := parseTimedText(ttBody)
	if err != nil {
		return recipe.Transcript{}, fmt.Errorf("parse timedtext: %w", err)
	}
	c.logger.Debug("transcript fetched",
		zap.String("key", key.String()),
		zap.String("language", track.LanguageCode),
		zap.Int("chars", len(text)))
	return recipe.Transcript{Key: key, Text: text}, nil
}

// get retrieves one URL via a cloned collector.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	collector := c.baseCollector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{body: append([]byte{}, r.Body...)})
	})
	collector.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", redactedURL(rawURL), err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return res.body, res.err
	default:
		return nil, errors.New("fetch produced no result")
	}
}

type fetchResult struct {
	body []byte
	err  error
}

// redactedURL trims query parameters from error text; timedtext URLs carry
// signature tokens.
func redactedURL(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
