package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/universalnft/marketplace-indexer/internal/adapter"
	"github.com/universalnft/marketplace-indexer/internal/domain"
	"github.com/universalnft/marketplace-indexer/internal/logger"
)

const (
	// SnapshotPageLimit is the page size for collection snapshot requests
	SnapshotPageLimit = 250
	// ActivityPageLimit is the page size for transaction history requests
	ActivityPageLimit = 100
	// OfferBatchLimit is the maximum number of mints per bid lookup
	OfferBatchLimit = 100

	metadataAttempts   = 3
	metadataRetryDelay = 2 * time.Second
)

// Client talks to the marketplace REST API.
type Client interface {
	// ResolveCollectionID resolves an on-chain collection address to the
	// marketplace's collection ID. Returns domain.ErrCollectionNotFound when
	// the marketplace does not know the address.
	ResolveCollectionID(ctx context.Context, address string) (string, error)

	// FetchSnapshotPage fetches one page of a collection's full snapshot,
	// sorted by listing price ascending. An empty cursor starts from the top.
	FetchSnapshotPage(ctx context.Context, collID string, cursor string) (*SnapshotPage, error)

	// FetchAllOffers fetches the standing bids for every given mint,
	// batching requests internally.
	FetchAllOffers(ctx context.Context, mints []string) ([]MintBids, error)

	// FetchMetadataBlob fetches the raw token metadata JSON from an
	// arbitrary URI. Returns domain.ErrMetadataUnavailable after all
	// attempts fail; callers log and skip.
	FetchMetadataBlob(ctx context.Context, uri string) ([]byte, error)

	// FetchActivityPage fetches one page of a collection's transaction
	// history, newest first.
	FetchActivityPage(ctx context.Context, collID string, cursor string) (*ActivityPage, error)

	// BuildTransaction asks the marketplace to build an unsigned transaction
	// of the given kind and returns the raw response. No retry; callers
	// surface failures to their own clients.
	BuildTransaction(ctx context.Context, kind string, params url.Values) ([]byte, error)
}

// ClientConfig configures the marketplace client.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	RetryInterval     time.Duration
	RequestsPerSecond float64
	MetadataTimeout   time.Duration
}

type client struct {
	baseURL         string
	apiKey          string
	retryInterval   time.Duration
	metadataTimeout time.Duration
	http            adapter.HTTPClient
	limiter         *rate.Limiter
	clock           adapter.Clock
	log             *zap.Logger
}

// NewClient creates a marketplace API client
func NewClient(cfg ClientConfig, httpClient adapter.HTTPClient, clock adapter.Clock) Client {
	retryInterval := cfg.RetryInterval
	if retryInterval == 0 {
		retryInterval = 2 * time.Second
	}
	metadataTimeout := cfg.MetadataTimeout
	if metadataTimeout == 0 {
		metadataTimeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 5
	}

	return &client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          cfg.APIKey,
		retryInterval:   retryInterval,
		metadataTimeout: metadataTimeout,
		http:            httpClient,
		limiter:         rate.NewLimiter(rate.Limit(rps), 1),
		clock:           clock,
		log:             logger.Default(),
	}
}

func (c *client) headers() map[string]string {
	return map[string]string{"x-tensor-api-key": c.apiKey}
}

// getJSON performs a paced GET against the marketplace API, retrying any
// non-success status at a fixed interval until ctx is cancelled. A 404 is
// terminal when notFoundErr is non-nil.
func (c *client) getJSON(ctx context.Context, endpoint string, result interface{}, notFoundErr error) error {
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		err := c.http.Get(ctx, endpoint, c.headers(), result)
		if err == nil {
			return nil
		}

		var statusErr *adapter.StatusError
		if errors.As(err, &statusErr) {
			if statusErr.StatusCode == 404 && notFoundErr != nil {
				return backoff.Permanent(notFoundErr)
			}
			c.log.Warn("marketplace request failed, retrying",
				zap.String("endpoint", endpoint),
				zap.Int("status", statusErr.StatusCode))
			return err
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		c.log.Warn("marketplace request failed, retrying",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return err
	}

	return backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(c.retryInterval), ctx))
}

func (c *client) ResolveCollectionID(ctx context.Context, address string) (string, error) {
	endpoint := fmt.Sprintf("%s/collections/find_collection?filter=%s", c.baseURL, url.QueryEscape(address))

	var resp findCollectionResponse
	if err := c.getJSON(ctx, endpoint, &resp, domain.ErrCollectionNotFound); err != nil {
		return "", err
	}
	if resp.CollID == "" {
		return "", domain.ErrCollectionNotFound
	}
	return resp.CollID, nil
}

func (c *client) FetchSnapshotPage(ctx context.Context, collID string, cursor string) (*SnapshotPage, error) {
	q := url.Values{}
	q.Set("collId", collID)
	q.Set("sortBy", "ListingPriceAsc")
	q.Set("limit", fmt.Sprintf("%d", SnapshotPageLimit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := fmt.Sprintf("%s/mint/collection?%s", c.baseURL, q.Encode())

	var resp snapshotResponse
	if err := c.getJSON(ctx, endpoint, &resp, nil); err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot page: %w", err)
	}

	return &SnapshotPage{
		Items:      resp.Mints,
		NextCursor: resp.Page.EndCursor,
		HasMore:    resp.Page.HasMore,
	}, nil
}

func (c *client) FetchAllOffers(ctx context.Context, mints []string) ([]MintBids, error) {
	var all []MintBids
	for i := 0; i < len(mints); i += OfferBatchLimit {
		end := min(i+OfferBatchLimit, len(mints))

		q := url.Values{}
		for _, mint := range mints[i:end] {
			q.Add("mints", mint)
		}
		endpoint := fmt.Sprintf("%s/collections/nft_bids?%s", c.baseURL, q.Encode())

		var batch []MintBids
		if err := c.getJSON(ctx, endpoint, &batch, nil); err != nil {
			return nil, fmt.Errorf("failed to fetch offers: %w", err)
		}
		all = append(all, batch...)
	}
	return all, nil
}

func (c *client) FetchMetadataBlob(ctx context.Context, uri string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < metadataAttempts; attempt++ {
		if attempt > 0 {
			c.clock.Sleep(metadataRetryDelay)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
		body, err := c.http.GetBytes(attemptCtx, uri, nil)
		cancel()

		if err == nil {
			if !json.Valid(body) {
				return nil, fmt.Errorf("%w: %s returned non-JSON content", domain.ErrMetadataUnavailable, uri)
			}
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %s: %v", domain.ErrMetadataUnavailable, uri, lastErr)
}

func (c *client) FetchActivityPage(ctx context.Context, collID string, cursor string) (*ActivityPage, error) {
	q := url.Values{}
	q.Set("collId", collID)
	q.Set("limit", fmt.Sprintf("%d", ActivityPageLimit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := fmt.Sprintf("%s/collections/tx_history?%s", c.baseURL, q.Encode())

	var resp historyResponse
	if err := c.getJSON(ctx, endpoint, &resp, nil); err != nil {
		return nil, fmt.Errorf("failed to fetch activity page: %w", err)
	}

	return &ActivityPage{
		Txs:        resp.Txs,
		NextCursor: resp.Page.Cursor,
		HasMore:    resp.Page.HasMore,
	}, nil
}

func (c *client) BuildTransaction(ctx context.Context, kind string, params url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/tx/%s?%s", c.baseURL, url.PathEscape(kind), params.Encode())

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := c.http.GetBytes(ctx, endpoint, c.headers())
	if err != nil {
		return nil, fmt.Errorf("failed to build %s transaction: %w", kind, err)
	}
	return body, nil
}
