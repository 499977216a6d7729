// client.go - JSON-RPC client for the pool's ledger node.
//
// Wraps the three ledger interactions the pipelines need: the paginated
// LeafInserted event query, transaction submission, and the confirmation
// wait. All payloads coming off the wire are decoded into typed structs at
// this boundary; anything with an unexpected shape is rejected here instead
// of leaking loosely-typed values into the pipelines.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"shroud/internal/common"
)

// Error classes surfaced by this package. Pipelines match on these with
// errors.Is; the concrete transport fault stays in the wrapped message.
var (
	ErrLogUnavailable      = errors.New("commitment log unavailable")
	ErrSubmissionFailed    = errors.New("transaction submission failed")
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
)

// DefaultPageLimit is the page size requested from the event query.
const DefaultPageLimit = 200

// Client talks JSON-RPC 2.0 to a single ledger node.
type Client struct {
	endpoint  string
	packageID string
	http      *http.Client
	log       zerolog.Logger

	pollInterval time.Duration
	pollAttempts int

	nextID atomic.Uint64
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithConfirmationPolling sets the poll cadence and attempt bound used by
// WaitForTransaction.
func WithConfirmationPolling(interval time.Duration, attempts int) Option {
	return func(c *Client) {
		c.pollInterval = interval
		c.pollAttempts = attempts
	}
}

// NewClient creates a ledger client for one node endpoint. packageID scopes
// event types and call targets to one deployed instance of the pool.
func NewClient(endpoint, packageID string, opts ...Option) *Client {
	c := &Client{
		endpoint:     endpoint,
		packageID:    packageID,
		http:         &http.Client{Timeout: 30 * time.Second},
		log:          zerolog.Nop(),
		pollInterval: 500 * time.Millisecond,
		pollAttempts: 60,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PackageID returns the deployment identifier this client is scoped to.
func (c *Client) PackageID() string {
	return c.packageID
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", method, resp.Status)
	}
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// LeafEvent is one leaf insertion into the global commitment structure.
type LeafEvent struct {
	Index uint64
	Value common.Hash
}

// EventPage is one reverse-chronological page of leaf events.
type EventPage struct {
	Events      []LeafEvent
	NextCursor  string
	HasNextPage bool
}

// Wire shapes for the event query. parsedJson carries the event-specific
// fields; index arrives as a decimal string.
type rawEventPage struct {
	Data        []rawEvent `json:"data"`
	NextCursor  string     `json:"nextCursor"`
	HasNextPage bool       `json:"hasNextPage"`
}

type rawEvent struct {
	Type       string          `json:"type"`
	ParsedJSON json.RawMessage `json:"parsedJson"`
}

type rawLeafInserted struct {
	Index json.Number `json:"index"`
	Value string      `json:"value"`
}

func (c *Client) leafEventType() string {
	return c.packageID + "::core::LeafInserted"
}

func decodeLeafEvent(raw rawEvent, wantType string) (LeafEvent, error) {
	if raw.Type != wantType {
		return LeafEvent{}, fmt.Errorf("unexpected event type %q", raw.Type)
	}
	var fields rawLeafInserted
	dec := json.NewDecoder(bytes.NewReader(raw.ParsedJSON))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fields); err != nil {
		return LeafEvent{}, fmt.Errorf("malformed LeafInserted payload: %w", err)
	}
	if fields.Index == "" || fields.Value == "" {
		return LeafEvent{}, fmt.Errorf("LeafInserted payload missing fields")
	}
	index, err := strconv.ParseUint(fields.Index.String(), 10, 64)
	if err != nil {
		return LeafEvent{}, fmt.Errorf("invalid leaf index %q: %w", fields.Index, err)
	}
	value, err := common.HexToHash(fields.Value)
	if err != nil {
		return LeafEvent{}, fmt.Errorf("invalid leaf value: %w", err)
	}
	return LeafEvent{Index: index, Value: value}, nil
}

// QueryLeafEvents fetches one page of LeafInserted events, newest first.
// An empty cursor requests the first page.
func (c *Client) QueryLeafEvents(ctx context.Context, cursor string) (*EventPage, error) {
	params := map[string]any{
		"eventType":  c.leafEventType(),
		"limit":      DefaultPageLimit,
		"descending": true,
	}
	if cursor != "" {
		params["cursor"] = cursor
	}
	var raw rawEventPage
	if err := c.call(ctx, "queryEvents", params, &raw); err != nil {
		return nil, err
	}
	page := &EventPage{
		Events:      make([]LeafEvent, 0, len(raw.Data)),
		NextCursor:  raw.NextCursor,
		HasNextPage: raw.HasNextPage,
	}
	for _, ev := range raw.Data {
		leaf, err := decodeLeafEvent(ev, c.leafEventType())
		if err != nil {
			return nil, err
		}
		page.Events = append(page.Events, leaf)
	}
	return page, nil
}

// TxRef identifies a submitted transaction on the ledger.
type TxRef struct {
	Digest string `json:"digest"`
}

// SubmitTransaction signs-and-submits a call to the pool and returns its
// digest. Any transport or node-side rejection is an ErrSubmissionFailed.
func (c *Client) SubmitTransaction(ctx context.Context, tx *Transaction) (TxRef, error) {
	var ref TxRef
	if err := c.call(ctx, "submitTransaction", tx, &ref); err != nil {
		return TxRef{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	if ref.Digest == "" {
		return TxRef{}, fmt.Errorf("%w: node returned empty digest", ErrSubmissionFailed)
	}
	c.log.Debug().Str("digest", ref.Digest).Str("target", tx.Target).Msg("transaction submitted")
	return ref, nil
}

// Confirmation is the ledger's acknowledgment of an executed transaction.
type Confirmation struct {
	Digest string     `json:"digest"`
	Status string     `json:"status"`
	Events []rawEvent `json:"events"`
}

// LeafInserted extracts the leaf-insertion event from the confirmation.
// The event's index is the authoritative new tree index for the account.
func (conf *Confirmation) LeafInserted(packageID string) (LeafEvent, error) {
	wantType := packageID + "::core::LeafInserted"
	for _, ev := range conf.Events {
		if ev.Type != wantType {
			continue
		}
		return decodeLeafEvent(ev, wantType)
	}
	return LeafEvent{}, fmt.Errorf("%w: no LeafInserted event in transaction %s", ErrSubmissionFailed, conf.Digest)
}

// WaitForTransaction polls the node until the transaction is executed.
// The attempt bound and the context both cap the wait; exhausting either
// yields ErrConfirmationTimeout.
func (c *Client) WaitForTransaction(ctx context.Context, digest string) (*Confirmation, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		var conf *Confirmation
		err := c.call(ctx, "getTransaction", map[string]any{"digest": digest}, &conf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfirmationTimeout, ctx.Err())
			}
			// transient node errors are retried until the attempt bound
			c.log.Debug().Err(err).Str("digest", digest).Msg("confirmation poll failed")
		} else if conf != nil && conf.Digest != "" {
			if conf.Status != "" && conf.Status != "success" {
				return nil, fmt.Errorf("%w: transaction %s status %s", ErrSubmissionFailed, digest, conf.Status)
			}
			return conf, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrConfirmationTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil, fmt.Errorf("%w: digest %s", ErrConfirmationTimeout, digest)
}
