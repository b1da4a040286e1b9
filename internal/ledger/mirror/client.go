// Package mirror reads public ledger records from a Hedera mirror node REST API.
// No credentials are involved: anything served here is visible to any verifier.
package mirror

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"agrocert/certification-backend/internal/ledger"
)

var entityIDPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Client implements ledger.PublicRecords over the mirror node REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// nftResponse is the body of GET /api/v1/tokens/{id}/nfts/{serial}
type nftResponse struct {
	AccountID        string `json:"account_id"`
	CreatedTimestamp string `json:"created_timestamp"`
	Deleted          bool   `json:"deleted"`
	Metadata         string `json:"metadata"`
	SerialNumber     int64  `json:"serial_number"`
	TokenID          string `json:"token_id"`
}

// topicMessageResponse is the body of GET /api/v1/topics/{id}/messages/{sequence}
type topicMessageResponse struct {
	ConsensusTimestamp string `json:"consensus_timestamp"`
	Message            string `json:"message"`
	PayerAccountID     string `json:"payer_account_id"`
	RunningHash        string `json:"running_hash"`
	SequenceNumber     uint64 `json:"sequence_number"`
	TopicID            string `json:"topic_id"`
}

// NewClient creates a mirror node client. The http.Client is reused across requests.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Query fetches a unit or a topic message
func (c *Client) Query(ctx context.Context, key ledger.RecordKey) (*ledger.Record, error) {
	if !entityIDPattern.MatchString(key.EntityID) || key.Position < 1 {
		return nil, fmt.Errorf("%w: invalid record key %s/%d", ledger.ErrNotFound, key.EntityID, key.Position)
	}

	switch key.Kind {
	case ledger.RecordUnit:
		return c.unit(ctx, key)
	case ledger.RecordMessage:
		return c.message(ctx, key)
	default:
		return nil, fmt.Errorf("%w: unsupported record kind %q", ledger.ErrInvalidTransaction, key.Kind)
	}
}

func (c *Client) unit(ctx context.Context, key ledger.RecordKey) (*ledger.Record, error) {
	var body nftResponse
	path := fmt.Sprintf("/api/v1/tokens/%s/nfts/%d", key.EntityID, key.Position)
	if err := c.get(ctx, path, &body); err != nil {
		return nil, err
	}

	metadata, err := base64.StdEncoding.DecodeString(body.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata is not base64: %v", ledger.ErrUnavailable, err)
	}
	ts, err := ParseTimestamp(body.CreatedTimestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}

	return &ledger.Record{
		Key:                ledger.UnitKey(body.TokenID, body.SerialNumber),
		Data:               metadata,
		ConsensusTimestamp: ts,
		Owner:              body.AccountID,
		Deleted:            body.Deleted,
	}, nil
}

func (c *Client) message(ctx context.Context, key ledger.RecordKey) (*ledger.Record, error) {
	var body topicMessageResponse
	path := fmt.Sprintf("/api/v1/topics/%s/messages/%d", key.EntityID, key.Position)
	if err := c.get(ctx, path, &body); err != nil {
		return nil, err
	}

	message, err := base64.StdEncoding.DecodeString(body.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: message is not base64: %v", ledger.ErrUnavailable, err)
	}
	ts, err := ParseTimestamp(body.ConsensusTimestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}

	return &ledger.Record{
		Key:                ledger.MessageKey(body.TopicID, body.SequenceNumber),
		Data:               message,
		ConsensusTimestamp: ts,
		Owner:              body.PayerAccountID,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ledger.ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Mirror node request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, path)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Mirror node returned non-success status",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("body", snippet))
		return fmt.Errorf("%w: status %d from %s", ledger.ErrUnavailable, resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ledger.ErrUnavailable, path, err)
	}
	return nil
}

// ParseTimestamp converts a "seconds.nanoseconds" consensus timestamp
func ParseTimestamp(s string) (time.Time, error) {
	secPart, nanoPart, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid consensus timestamp %q", s)
	}
	var nanos int64
	if nanoPart != "" {
		if len(nanoPart) > 9 {
			return time.Time{}, fmt.Errorf("invalid consensus timestamp %q", s)
		}
		nanoPart += strings.Repeat("0", 9-len(nanoPart))
		if nanos, err = strconv.ParseInt(nanoPart, 10, 64); err != nil {
			return time.Time{}, fmt.Errorf("invalid consensus timestamp %q", s)
		}
	}
	return time.Unix(sec, nanos).UTC(), nil
}
