// Package notion publishes reports as pages in a Notion database.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"feedbackbot/internal/domain"
	"feedbackbot/internal/httpx"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
	maxBlockChars  = 2000
)

type Client struct {
	apiKey     string
	databaseID string
	baseURL    string
	logger     *zap.Logger
	now        func() time.Time
}

func New(apiKey, databaseID, baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:     apiKey,
		databaseID: databaseID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
		now:        time.Now,
	}
}

func (c *Client) Name() string { return "notion" }

func (c *Client) IsConfigured() bool {
	return c.apiKey != "" && c.databaseID != ""
}

func (c *Client) Deliver(ctx context.Context, report domain.Report) error {
	day := report.GeneratedAt
	if day.IsZero() {
		day = c.now()
	}
	title := "Weekly Feedback Report - " + day.Format("2006-01-02")
	return c.CreatePage(ctx, title, report.Excerpt(maxBlockChars))
}

type richText struct {
	Type string   `json:"type,omitempty"`
	Text textBody `json:"text"`
}

type textBody struct {
	Content string `json:"content"`
}

type pageRequest struct {
	Parent struct {
		DatabaseID string `json:"database_id"`
	} `json:"parent"`
	Properties map[string]any `json:"properties"`
	Children   []block        `json:"children"`
}

type block struct {
	Object    string `json:"object"`
	Type      string `json:"type"`
	Paragraph struct {
		RichText []richText `json:"rich_text"`
	} `json:"paragraph"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreatePage creates one page titled title holding content as a single
// paragraph. Any non-2xx answer is an error.
func (c *Client) CreatePage(ctx context.Context, title, content string) error {
	if !c.IsConfigured() {
		return errors.New("notion is not configured")
	}

	var req pageRequest
	req.Parent.DatabaseID = c.databaseID
	req.Properties = map[string]any{
		"Name": map[string]any{"title": []richText{{Text: textBody{Content: title}}}},
	}
	var para block
	para.Object = "block"
	para.Type = "paragraph"
	para.Paragraph.RichText = []richText{{Type: "text", Text: textBody{Content: content}}}
	req.Children = []block{para}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding notion page: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Notion-Version", apiVersion)

	resp, err := httpx.ExternalHTTPClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("notion request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("notion API error (%d %s): %s", resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("notion API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	c.logger.Info("report posted to notion", zap.String("title", title))
	return nil
}
