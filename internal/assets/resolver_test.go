package assets_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalnft/marketplace-indexer/internal/adapter"
	"github.com/universalnft/marketplace-indexer/internal/assets"
	"github.com/universalnft/marketplace-indexer/internal/domain"
)

type stubHTTPClient struct {
	response []byte
	err      error
	requests [][]byte
}

func (s *stubHTTPClient) Get(ctx context.Context, u string, headers map[string]string, result interface{}) error {
	return errors.New("not used")
}

func (s *stubHTTPClient) GetBytes(ctx context.Context, u string, headers map[string]string) ([]byte, error) {
	return nil, errors.New("not used")
}

func (s *stubHTTPClient) Post(ctx context.Context, u string, contentType string, body io.Reader, headers map[string]string) ([]byte, error) {
	data, _ := io.ReadAll(body)
	s.requests = append(s.requests, data)
	return s.response, s.err
}

func TestResolver_GetAsset_Success(t *testing.T) {
	stub := &stubHTTPClient{response: []byte(`{
		"jsonrpc": "2.0",
		"id": 1,
		"result": {
			"id": "MintA",
			"content": {
				"json_uri": "https://metadata.test/a.json",
				"metadata": {"name": "Asset A"},
				"links": {"image": "https://img.test/a.png"}
			},
			"grouping": [
				{"group_key": "collection", "group_value": "CollAddr", "verified": true}
			],
			"ownership": {"owner": "OwnerA"}
		}
	}`)}
	resolver := assets.NewResolver("https://rpc.test", stub, adapter.NewJSON())

	asset, err := resolver.GetAsset(context.Background(), "MintA")
	require.NoError(t, err)
	assert.Equal(t, "MintA", asset.Address)
	assert.Equal(t, "Asset A", asset.Name)
	assert.Equal(t, "https://img.test/a.png", asset.Image)
	assert.Equal(t, "https://metadata.test/a.json", asset.MetadataURI)
	assert.Equal(t, "OwnerA", asset.Owner)
	assert.Equal(t, "CollAddr", asset.Collection)

	require.Len(t, stub.requests, 1)
	assert.Contains(t, string(stub.requests[0]), `"method":"getAsset"`)
	assert.Contains(t, string(stub.requests[0]), `"id":"MintA"`)
}

func TestResolver_GetAsset_SkipsUnverifiedGrouping(t *testing.T) {
	stub := &stubHTTPClient{response: []byte(`{
		"result": {
			"id": "MintA",
			"grouping": [
				{"group_key": "collection", "group_value": "CollAddr", "verified": false}
			],
			"ownership": {"owner": "OwnerA"}
		}
	}`)}
	resolver := assets.NewResolver("https://rpc.test", stub, adapter.NewJSON())

	asset, err := resolver.GetAsset(context.Background(), "MintA")
	require.NoError(t, err)
	assert.Empty(t, asset.Collection)
}

func TestResolver_GetAsset_NotFound(t *testing.T) {
	stub := &stubHTTPClient{response: []byte(`{
		"error": {"code": -32000, "message": "Asset Not Found"}
	}`)}
	resolver := assets.NewResolver("https://rpc.test", stub, adapter.NewJSON())

	_, err := resolver.GetAsset(context.Background(), "UnknownMint")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
}

func TestResolver_GetAsset_RPCError(t *testing.T) {
	stub := &stubHTTPClient{response: []byte(`{
		"error": {"code": -32603, "message": "internal error"}
	}`)}
	resolver := assets.NewResolver("https://rpc.test", stub, adapter.NewJSON())

	_, err := resolver.GetAsset(context.Background(), "MintA")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrAssetNotFound)
	assert.Contains(t, err.Error(), "internal error")
}

func TestResolver_GetAsset_EmptyResult(t *testing.T) {
	stub := &stubHTTPClient{response: []byte(`{"result": null}`)}
	resolver := assets.NewResolver("https://rpc.test", stub, adapter.NewJSON())

	_, err := resolver.GetAsset(context.Background(), "MintA")
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
}

func TestResolver_LatestBlockhash(t *testing.T) {
	stub := &stubHTTPClient{response: []byte(`{
		"result": {
			"context": {"slot": 100},
			"value": {"blockhash": "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N", "lastValidBlockHeight": 3090}
		}
	}`)}
	resolver := assets.NewResolver("https://rpc.test", stub, adapter.NewJSON())

	hash, err := resolver.LatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N", hash)

	require.Len(t, stub.requests, 1)
	assert.Contains(t, string(stub.requests[0]), `"method":"getLatestBlockhash"`)
}

func TestResolver_LatestBlockhash_EmptyResult(t *testing.T) {
	stub := &stubHTTPClient{response: []byte(`{"result": {"value": {}}}`)}
	resolver := assets.NewResolver("https://rpc.test", stub, adapter.NewJSON())

	_, err := resolver.LatestBlockhash(context.Background())
	require.Error(t, err)
}
