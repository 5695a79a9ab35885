package assets

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/universalnft/marketplace-indexer/internal/adapter"
	"github.com/universalnft/marketplace-indexer/internal/domain"
)

// Asset is the resolved on-chain state of one digital asset.
type Asset struct {
	Address     string
	Name        string
	Image       string
	MetadataURI string
	Owner       string
	// Collection is the verified collection address the asset belongs to,
	// empty when the asset has no verified grouping
	Collection string
}

// Resolver looks up digital assets on chain. Live events reference assets by
// address only; the resolver supplies the rest when the store has no record.
type Resolver interface {
	// GetAsset resolves an asset by its on-chain address. Returns
	// domain.ErrAssetNotFound when the chain has no record of it.
	GetAsset(ctx context.Context, address string) (*Asset, error)

	// LatestBlockhash returns a recent blockhash for transaction building.
	LatestBlockhash(ctx context.Context) (string, error)
}

type resolver struct {
	rpcURL    string
	http      adapter.HTTPClient
	json      adapter.JSON
	requestID atomic.Uint64
}

// NewResolver creates a resolver backed by a DAS-capable JSON-RPC endpoint
func NewResolver(rpcURL string, httpClient adapter.HTTPClient, json adapter.JSON) Resolver {
	return &resolver{
		rpcURL: rpcURL,
		http:   httpClient,
		json:   json,
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result *getAssetResult `json:"result"`
	Error  *rpcError       `json:"error"`
}

type getAssetResult struct {
	ID      string `json:"id"`
	Content struct {
		JSONURI  string `json:"json_uri"`
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Links struct {
			Image string `json:"image"`
		} `json:"links"`
	} `json:"content"`
	Grouping []struct {
		GroupKey   string `json:"group_key"`
		GroupValue string `json:"group_value"`
		Verified   *bool  `json:"verified"`
	} `json:"grouping"`
	Ownership struct {
		Owner string `json:"owner"`
	} `json:"ownership"`
}

func (r *resolver) GetAsset(ctx context.Context, address string) (*Asset, error) {
	body, err := r.json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      r.requestID.Add(1),
		Method:  "getAsset",
		Params:  map[string]interface{}{"id": address},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal getAsset request: %w", err)
	}

	respBody, err := r.http.Post(ctx, r.rpcURL, "application/json", bytes.NewReader(body), nil)
	if err != nil {
		return nil, fmt.Errorf("getAsset request failed: %w", err)
	}

	var resp rpcResponse
	if err := r.json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode getAsset response: %w", err)
	}
	if resp.Error != nil {
		if strings.Contains(strings.ToLower(resp.Error.Message), "not found") {
			return nil, fmt.Errorf("%w: %s", domain.ErrAssetNotFound, address)
		}
		return nil, resp.Error
	}
	if resp.Result == nil || resp.Result.ID == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrAssetNotFound, address)
	}

	asset := &Asset{
		Address:     resp.Result.ID,
		Name:        resp.Result.Content.Metadata.Name,
		Image:       resp.Result.Content.Links.Image,
		MetadataURI: resp.Result.Content.JSONURI,
		Owner:       resp.Result.Ownership.Owner,
	}
	for _, g := range resp.Result.Grouping {
		if g.GroupKey == "collection" && (g.Verified == nil || *g.Verified) {
			asset.Collection = g.GroupValue
			break
		}
	}
	return asset, nil
}

type blockhashResponse struct {
	Result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

func (r *resolver) LatestBlockhash(ctx context.Context) (string, error) {
	body, err := r.json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      r.requestID.Add(1),
		Method:  "getLatestBlockhash",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal getLatestBlockhash request: %w", err)
	}

	respBody, err := r.http.Post(ctx, r.rpcURL, "application/json", bytes.NewReader(body), nil)
	if err != nil {
		return "", fmt.Errorf("getLatestBlockhash request failed: %w", err)
	}

	var resp blockhashResponse
	if err := r.json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to decode getLatestBlockhash response: %w", err)
	}
	if resp.Error != nil {
		return "", resp.Error
	}
	if resp.Result.Value.Blockhash == "" {
		return "", fmt.Errorf("empty blockhash in response")
	}
	return resp.Result.Value.Blockhash, nil
}
