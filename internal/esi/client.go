package esi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// namesChunkSize is ESI's per-call limit for POST /universe/names/.
const namesChunkSize = 1000

// Client exposes the typed ESI endpoints the SRP pipeline consumes. All calls
// go through the shared rate-limited Transport.
type Client struct {
	transport     *Transport
	characterID   int64
	corporationID int64
}

// NewClient wraps transport with the SRP character/corporation identity.
func NewClient(transport *Transport, characterID, corporationID int64) *Client {
	return &Client{transport: transport, characterID: characterID, corporationID: corporationID}
}

// MailHeader is one row of the character's inbox listing.
type MailHeader struct {
	MailID    int64     `json:"mail_id"`
	From      int64     `json:"from"`
	Subject   string    `json:"subject"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}

// Mail is the full content of one message.
type Mail struct {
	From      int64     `json:"from"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Killmail is the canonical loss record.
type Killmail struct {
	KillmailID    int64          `json:"killmail_id"`
	KillmailTime  time.Time      `json:"killmail_time"`
	SolarSystemID int64          `json:"solar_system_id"`
	Victim        KillmailVictim `json:"victim"`
}

type KillmailVictim struct {
	CharacterID   int64          `json:"character_id"`
	CorporationID int64          `json:"corporation_id"`
	AllianceID    int64          `json:"alliance_id"`
	ShipTypeID    int64          `json:"ship_type_id"`
	Items         []KillmailItem `json:"items"`
}

// KillmailItem is one fitted or carried item, with its inventory slot flag.
type KillmailItem struct {
	ItemTypeID        int64 `json:"item_type_id"`
	Flag              int   `json:"flag"`
	QuantityDestroyed int64 `json:"quantity_destroyed"`
	QuantityDropped   int64 `json:"quantity_dropped"`
}

// JournalEntry is one row of the corporation wallet journal.
type JournalEntry struct {
	ID            int64           `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Reason        string          `json:"reason"`
	RefType       string          `json:"ref_type"`
	FirstPartyID  int64           `json:"first_party_id"`
	SecondPartyID int64           `json:"second_party_id"`
}

// NameRef maps an id to its name and category.
type NameRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// MailHeaders lists inbox headers older than lastMailID (0 for the newest
// page). ESI returns up to 50 headers per call.
func (c *Client) MailHeaders(ctx context.Context, lastMailID int64) ([]MailHeader, error) {
	query := url.Values{}
	if lastMailID > 0 {
		query.Set("last_mail_id", strconv.FormatInt(lastMailID, 10))
	}
	var headers []MailHeader
	path := fmt.Sprintf("/characters/%d/mail/", c.characterID)
	if err := c.transport.Do(ctx, http.MethodGet, path, query, nil, &headers); err != nil {
		return nil, err
	}
	return headers, nil
}

// MailContent fetches the full body of one mail.
func (c *Client) MailContent(ctx context.Context, mailID int64) (*Mail, error) {
	var mail Mail
	path := fmt.Sprintf("/characters/%d/mail/%d/", c.characterID, mailID)
	if err := c.transport.Do(ctx, http.MethodGet, path, nil, nil, &mail); err != nil {
		return nil, err
	}
	return &mail, nil
}

// SendMail sends an EVE mail to a single character. The mail endpoint is
// subject to the spam-prevention backoff; a *MailRateLimitedError carries the
// server's requested wait.
func (c *Client) SendMail(ctx context.Context, recipientID int64, subject, body string) error {
	payload := map[string]any{
		"approved_cost": 0,
		"body":          body,
		"subject":       subject,
		"recipients": []map[string]any{
			{"recipient_id": recipientID, "recipient_type": "character"},
		},
	}
	path := fmt.Sprintf("/characters/%d/mail/", c.characterID)
	return c.transport.Do(ctx, http.MethodPost, path, nil, payload, nil)
}

// Killmail fetches the canonical loss record by id and hash.
func (c *Client) Killmail(ctx context.Context, killmailID int64, hash string) (*Killmail, error) {
	var km Killmail
	path := fmt.Sprintf("/killmails/%d/%s/", killmailID, hash)
	if err := c.transport.Do(ctx, http.MethodGet, path, nil, nil, &km); err != nil {
		return nil, err
	}
	return &km, nil
}

// WalletJournal fetches one page of the corporation wallet journal for a
// division. Pages are newest-first.
func (c *Client) WalletJournal(ctx context.Context, division, page int) ([]JournalEntry, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	var entries []JournalEntry
	path := fmt.Sprintf("/corporations/%d/wallets/%d/journal/", c.corporationID, division)
	if err := c.transport.Do(ctx, http.MethodGet, path, query, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ResolveNames resolves ids to names in chunks of at most 1000 per call.
// Duplicate ids are collapsed before chunking.
func (c *Client) ResolveNames(ctx context.Context, ids []int64) ([]NameRef, error) {
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	var all []NameRef
	for start := 0; start < len(unique); start += namesChunkSize {
		end := start + namesChunkSize
		if end > len(unique) {
			end = len(unique)
		}
		var chunk []NameRef
		if err := c.transport.Do(ctx, http.MethodPost, "/universe/names/", nil, unique[start:end], &chunk); err != nil {
			return nil, err
		}
		all = append(all, chunk...)
	}
	return all, nil
}
