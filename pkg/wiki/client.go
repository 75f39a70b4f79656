// Package wiki ingests a wiki content tree through its integration API
// and regroups it into per-section knowledge chunks. The HTTP client
// refreshes expired OAuth tokens transparently, retries transient
// server errors with backoff, and treats per-item fetch failures as
// soft so a single bad article never aborts a run.
package wiki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kbforge/kbforge/pkg/models"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultThrottle     = 300 * time.Millisecond
	maxTransientRetries = 3
)

// ClientConfig holds the settings for the wiki API client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "https://acme.wiki.example/api/v1".
	BaseURL     string
	AccountSlug string
	SpaceID     string

	ClientID     string
	ClientSecret string

	// Seed tokens from configuration, used when the token store is
	// empty (first run).
	AccessToken  string
	RefreshToken string

	// ExcludedIDs are item ids dropped from listings; exclusion
	// propagates to their descendants during grouping.
	ExcludedIDs []string

	// Throttle is the fixed delay inserted before each paging or
	// detail call. Zero selects the default.
	Throttle time.Duration
}

// Pagination mirrors the listing endpoint's paging envelope.
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	LastPage    int `json:"lastPage"`
}

// Client performs authenticated calls against the wiki content API.
type Client struct {
	httpClient *http.Client
	cfg        ClientConfig
	tokens     Tokens
	store      TokenStore
	excluded   map[string]struct{}
	throttle   time.Duration
	logger     *slog.Logger

	// backoffInterval is the initial transient-retry delay; tests
	// shrink it.
	backoffInterval time.Duration
}

// NewClient creates a wiki API client. Tokens come from the store when
// present, otherwise from the config seeds.
func NewClient(cfg ClientConfig, store TokenStore, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("wiki base URL cannot be empty")
	}

	tokens, err := store.Load()
	if err != nil {
		return nil, err
	}
	if tokens.Access == "" {
		tokens = Tokens{Access: cfg.AccessToken, Refresh: cfg.RefreshToken}
	}

	excluded := make(map[string]struct{}, len(cfg.ExcludedIDs))
	for _, id := range cfg.ExcludedIDs {
		excluded[id] = struct{}{}
	}

	throttle := cfg.Throttle
	if throttle == 0 {
		throttle = defaultThrottle
	}

	return &Client{
		httpClient:      &http.Client{Timeout: defaultTimeout},
		cfg:             cfg,
		tokens:          tokens,
		store:           store,
		excluded:        excluded,
		throttle:        throttle,
		logger:          logger,
		backoffInterval: 500 * time.Millisecond,
	}, nil
}

// Excluded exposes the configured exclusion set for the grouper.
func (c *Client) Excluded() map[string]struct{} {
	return c.excluded
}

// request performs an authenticated call. A 401/403 response triggers
// exactly one token refresh followed by one retry; if the refresh
// fails, the original unauthorized response is returned unchanged.
func (c *Client) request(ctx context.Context, method, endpoint string, params url.Values, body any) (*http.Response, error) {
	payload, err := marshalBody(body)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, method, endpoint, params, payload)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.logger.Info("access token rejected, attempting refresh and retry",
			"status", resp.StatusCode)
		if err := c.refreshTokens(ctx); err != nil {
			c.logger.Error("token refresh failed", "error", err)
			return resp, nil
		}
		resp.Body.Close()
		return c.send(ctx, method, endpoint, params, payload)
	}

	return resp, nil
}

// serverError marks a transient server error that survived every
// retry. It is fatal for the call site, unlike a network-level failure.
type serverError struct {
	status   int
	endpoint string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error %d from %s", e.status, e.endpoint)
}

// send issues one HTTP call, retrying transient 5xx responses with
// exponential backoff. Any other outcome is returned as-is.
func (c *Client) send(ctx context.Context, method, endpoint string, params url.Values, payload []byte) (*http.Response, error) {
	var resp *http.Response

	op := func() error {
		req, err := c.newRequest(ctx, method, endpoint, params, payload)
		if err != nil {
			return backoff.Permanent(err)
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("request to %s failed: %w", endpoint, err))
		}

		switch r.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			r.Body.Close()
			return &serverError{status: r.StatusCode, endpoint: endpoint}
		}

		resp = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.backoffInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxTransientRetries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, params url.Values, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-Slug", c.cfg.AccountSlug)
	req.Header.Set("Authorization", "Bearer "+c.tokens.Access)
	return req, nil
}

// refreshTokens exchanges the refresh token for a new token pair and
// persists the result. It never retries.
func (c *Client) refreshTokens(ctx context.Context) error {
	payload, err := marshalBody(map[string]string{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"refresh_token": c.tokens.Refresh,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/auth/integration/refresh", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-Slug", c.cfg.AccountSlug)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("refresh rejected with status %d: %s", resp.StatusCode, body)
	}

	var refreshed struct {
		AccessToken     string `json:"access_token"`
		AccessTokenAlt  string `json:"accessToken"`
		Token           string `json:"token"`
		RefreshToken    string `json:"refresh_token"`
		RefreshTokenAlt string `json:"refreshToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		return fmt.Errorf("failed to decode refresh response: %w", err)
	}

	access := firstNonEmpty(refreshed.AccessToken, refreshed.AccessTokenAlt, refreshed.Token)
	if access == "" {
		return fmt.Errorf("refresh response missing access token")
	}

	c.tokens.Access = access
	if refresh := firstNonEmpty(refreshed.RefreshToken, refreshed.RefreshTokenAlt); refresh != "" {
		c.tokens.Refresh = refresh
	}

	if err := c.store.Save(c.tokens); err != nil {
		c.logger.Warn("failed to persist refreshed tokens", "error", err)
	} else {
		c.logger.Info("tokens refreshed and persisted")
	}
	return nil
}

// listItem is the wire shape of one tree listing entry.
type listItem struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Type          string `json:"type"`
	IsArchived    bool   `json:"isArchived"`
	ParentSpaceID string `json:"parentSpaceId"`
}

func (it listItem) toModel() models.WikiItem {
	return models.WikiItem{
		ID:            it.ID,
		Title:         it.Title,
		Type:          it.Type,
		Archived:      it.IsArchived,
		ParentSpaceID: it.ParentSpaceID,
	}
}

// ListPage fetches one page of the space content tree. Excluded ids
// are filtered out before the page is returned.
func (c *Client) ListPage(ctx context.Context, page int) ([]models.WikiItem, Pagination, error) {
	c.pause(ctx)
	c.logger.Info("fetching content tree page", "page", page, "space", c.cfg.SpaceID)

	params := url.Values{"page": []string{strconv.Itoa(page)}}
	endpoint := "/integrations/space/" + c.cfg.SpaceID + "/tree"

	resp, err := c.request(ctx, http.MethodGet, endpoint, params, nil)
	if err != nil {
		return nil, Pagination{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, Pagination{}, fmt.Errorf("failed to fetch page %d: status %d: %s",
			page, resp.StatusCode, body)
	}

	var envelope struct {
		Items      []listItem `json:"items"`
		Pagination Pagination `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to decode page %d: %w", page, err)
	}

	items := make([]models.WikiItem, 0, len(envelope.Items))
	removed := 0
	for _, it := range envelope.Items {
		if _, banned := c.excluded[it.ID]; banned {
			removed++
			continue
		}
		items = append(items, it.toModel())
	}
	if removed > 0 {
		c.logger.Info("excluded items on page", "page", page, "removed", removed)
	}

	return items, envelope.Pagination, nil
}

// ListAll pages through the whole content tree.
func (c *Client) ListAll(ctx context.Context) ([]models.WikiItem, error) {
	var all []models.WikiItem

	page := 1
	lastPage := 1
	for page <= lastPage {
		items, pagination, err := c.ListPage(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)

		if pagination.LastPage > 0 {
			lastPage = pagination.LastPage
		}
		c.logger.Info("accumulated items", "count", len(all), "page", page, "last_page", lastPage)
		page++
	}

	c.logger.Info("content tree listing complete", "total", len(all))
	return all, nil
}

// GetDetails fetches one item's detail record. Network failures and
// 404 responses are soft: they are logged and produce a zero detail.
// Any other error status is fatal and propagates.
func (c *Client) GetDetails(ctx context.Context, itemID string) (models.WikiDetail, error) {
	c.pause(ctx)

	body := map[string]any{
		"query": map[string]any{
			"__filter": map[string]string{"id": itemID},
		},
	}
	resp, err := c.request(ctx, http.MethodPost, "/wiki/ql/article", nil, body)
	if err != nil {
		// Exhausted server errors are fatal; network-level failures
		// only cost this one item.
		var srvErr *serverError
		if errors.As(err, &srvErr) {
			return models.WikiDetail{}, err
		}
		c.logger.Warn("detail fetch failed, skipping item", "item", itemID, "error", err)
		return models.WikiDetail{}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Warn("item not found, skipping", "item", itemID)
		return models.WikiDetail{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return models.WikiDetail{}, fmt.Errorf("failed to fetch item %s: status %d: %s",
			itemID, resp.StatusCode, respBody)
	}

	var envelope struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		ParentID    string `json:"parentId"`
		Breadcrumbs []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"breadcrumbs"`
		EditorContentObject struct {
			Content json.RawMessage `json:"content"`
		} `json:"editorContentObject"`
		LatestProperties struct {
			Title struct {
				Text string `json:"text"`
			} `json:"title"`
		} `json:"latestProperties"`
	}
	// A malformed body on a 200 is a protocol violation, not an absent
	// item, so it aborts the run.
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return models.WikiDetail{}, fmt.Errorf("malformed detail response for item %s: %w", itemID, err)
	}

	detail := models.WikiDetail{
		ID:       envelope.ID,
		Title:    firstNonEmpty(envelope.LatestProperties.Title.Text, envelope.Title),
		ParentID: envelope.ParentID,
		Content:  envelope.EditorContentObject.Content,
	}
	if detail.ID == "" {
		detail.ID = itemID
	}
	for _, crumb := range envelope.Breadcrumbs {
		detail.Breadcrumbs = append(detail.Breadcrumbs, models.Crumb{ID: crumb.ID, Title: crumb.Title})
	}

	return detail, nil
}

// pause applies the constant request throttle.
func (c *Client) pause(ctx context.Context) {
	select {
	case <-time.After(c.throttle):
	case <-ctx.Done():
	}
}

func marshalBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return payload, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
