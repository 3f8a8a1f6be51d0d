package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prism-data/prism/internal/config"
)

// SentinelScore marks documents that were not actually scored: the client
// had no credential or the provider call failed, and the input order was
// preserved instead.
const SentinelScore = -1.0

// Document is a candidate submitted for scoring.
type Document struct {
	ID   string
	Text string
}

// Ranked is one scored candidate, in the provider's score order.
type Ranked struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(cfg config.RerankConfig) *Client {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type rerankRequest struct {
	Model           string       `json:"model"`
	Query           string       `json:"query"`
	Documents       []rerankText `json:"documents"`
	ReturnDocuments bool         `json:"return_documents"`
	TopN            int          `json:"top_n"`
}

type rerankText struct {
	Text string `json:"text"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Rerank reorders docs by relevance to query using the external scorer.
// It never fails the caller: on missing credentials, transport errors, or a
// malformed response it returns every input document with SentinelScore in
// the original order. Response entries referencing unknown indices are
// skipped.
func (c *Client) Rerank(ctx context.Context, query string, docs []Document, topN int) []Ranked {
	if len(docs) == 0 {
		return nil
	}

	if c.apiKey == "" {
		slog.Warn("rerank API key not configured, returning unscored candidates")
		return passthrough(docs)
	}

	if topN <= 0 || topN > len(docs) {
		topN = len(docs)
	}

	texts := make([]rerankText, len(docs))
	for i, d := range docs {
		texts[i] = rerankText{Text: d.Text}
	}

	body, err := json.Marshal(rerankRequest{
		Model:           c.model,
		Query:           query,
		Documents:       texts,
		ReturnDocuments: false,
		TopN:            topN,
	})
	if err != nil {
		slog.Error("rerank request marshal failed", "error", err)
		return passthrough(docs)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		slog.Error("rerank request build failed", "error", err)
		return passthrough(docs)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("rerank call failed", "error", err)
		return passthrough(docs)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("rerank response read failed", "error", err)
		return passthrough(docs)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("rerank provider error",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return passthrough(docs)
	}

	var parsed rerankResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		slog.Error("rerank response unmarshal failed", "error", err, "body", string(respBody))
		return passthrough(docs)
	}
	if parsed.Results == nil {
		slog.Error("rerank response missing results", "body", string(respBody))
		return passthrough(docs)
	}

	ranked := make([]Ranked, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			slog.Warn("rerank response references unknown document index",
				"index", r.Index,
				"submitted", len(docs),
			)
			continue
		}
		ranked = append(ranked, Ranked{
			ID:    docs[r.Index].ID,
			Text:  docs[r.Index].Text,
			Score: r.RelevanceScore,
		})
	}
	return ranked
}

func passthrough(docs []Document) []Ranked {
	ranked := make([]Ranked, len(docs))
	for i, d := range docs {
		ranked[i] = Ranked{ID: d.ID, Text: d.Text, Score: SentinelScore}
	}
	return ranked
}
