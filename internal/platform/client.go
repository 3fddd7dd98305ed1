package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/siyinging/social-publisher/internal/logger"
)

const defaultRequestTimeout = 30 * time.Second

// Client is an HTTP implementation of Adapter against a v2-style posting
// API: POST {base}/2/tweets with optional reply / quote references.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  logger.Logger
}

// NewClient creates a platform client. The token is sent as a bearer token
// on every request.
func NewClient(baseURL, token string, log logger.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("platform URL is required")
	}
	if token == "" {
		return nil, errors.New("platform token is required")
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: defaultRequestTimeout},
		logger:  log,
	}, nil
}

type postRequest struct {
	Text         string     `json:"text"`
	Reply        *replyRef  `json:"reply,omitempty"`
	QuoteTweetID string     `json:"quote_tweet_id,omitempty"`
}

type replyRef struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type postResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors,omitempty"`
}

// Post creates a top-level post.
func (c *Client) Post(ctx context.Context, text string) (string, error) {
	return c.send(ctx, postRequest{Text: text})
}

// Reply creates a post in reply to postID.
func (c *Client) Reply(ctx context.Context, postID, text string) (string, error) {
	return c.send(ctx, postRequest{Text: text, Reply: &replyRef{InReplyToTweetID: postID}})
}

// Quote creates a post quoting postID.
func (c *Client) Quote(ctx context.Context, postID, text string) (string, error) {
	return c.send(ctx, postRequest{Text: text, QuoteTweetID: postID})
}

func (c *Client) send(ctx context.Context, req postRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal post request: %w", err)
	}

	url := c.baseURL + "/2/tweets"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create post request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Transport failures are worth retrying.
		return "", &PlatformError{Detail: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &PlatformError{StatusCode: resp.StatusCode, Detail: "read response: " + err.Error(), Retryable: true}
	}

	if err := classifyStatus(resp, body); err != nil {
		c.logger.Warn("platform call failed",
			logger.Int("status", resp.StatusCode),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err),
		)
		return "", err
	}

	var parsed postResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &PlatformError{StatusCode: resp.StatusCode, Detail: "decode response: " + err.Error()}
	}
	if parsed.Data.ID == "" {
		return "", &PlatformError{StatusCode: resp.StatusCode, Detail: "response carried no post id"}
	}

	c.logger.Debug("platform call succeeded",
		logger.String("post_id", parsed.Data.ID),
		logger.Duration("elapsed", time.Since(start)),
	)
	return parsed.Data.ID, nil
}

// classifyStatus converts HTTP status codes to the adapter error taxonomy.
func classifyStatus(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Detail: errorDetail(resp, body)}
	case resp.StatusCode >= 500:
		return &PlatformError{StatusCode: resp.StatusCode, Detail: errorDetail(resp, body), Retryable: true}
	default:
		return &PlatformError{StatusCode: resp.StatusCode, Detail: errorDetail(resp, body)}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func errorDetail(resp *http.Response, body []byte) string {
	var parsed postResponse
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		return parsed.Errors[0].Detail
	}
	return resp.Status
}
