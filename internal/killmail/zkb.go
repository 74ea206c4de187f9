package killmail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ZKillboardClient looks up killmail hashes by id. zKillboard is a separate
// service and is not subject to the ESI throttle, so it gets its own plain
// HTTP client.
type ZKillboardClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewZKillboardClient creates a hash-lookup client.
func NewZKillboardClient(baseURL string, logger *slog.Logger, httpClient *http.Client) *ZKillboardClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &ZKillboardClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		logger:     logger.With("component", "zkillboard_client"),
	}
}

type zkbKill struct {
	KillmailID int64 `json:"killmail_id"`
	ZKB        struct {
		Hash string `json:"hash"`
	} `json:"zkb"`
}

// Hash fetches the killmail hash for the given id.
func (c *ZKillboardClient) Hash(ctx context.Context, killmailID int64) (string, error) {
	url := fmt.Sprintf("%s/killID/%d/", c.baseURL, killmailID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("zkillboard: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("zkillboard: hash lookup for %d failed: %w", killmailID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return "", fmt.Errorf("zkillboard: hash lookup for %d returned status %d: %s", killmailID, resp.StatusCode, body)
	}

	var kills []zkbKill
	if err := json.NewDecoder(resp.Body).Decode(&kills); err != nil {
		return "", fmt.Errorf("zkillboard: failed to decode hash lookup for %d: %w", killmailID, err)
	}
	for _, k := range kills {
		if k.KillmailID == killmailID && k.ZKB.Hash != "" {
			return k.ZKB.Hash, nil
		}
	}
	return "", fmt.Errorf("zkillboard: no hash found for killmail %d", killmailID)
}
