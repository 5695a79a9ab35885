package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/universalnft/marketplace-indexer/internal/assets"
	"github.com/universalnft/marketplace-indexer/internal/marketplace"
	"github.com/universalnft/marketplace-indexer/internal/store"
)

const (
	defaultSalesLimit       = 50
	defaultActivityLimit    = 50
	defaultLeaderboardLimit = 100
	maxListLimit            = 500
)

// Handler serves the marketplace read API over the local store plus the
// pass-through transaction builders. It never writes; the sync engine owns
// all mutations.
type Handler struct {
	store    store.Store
	client   marketplace.Client
	resolver assets.Resolver
}

// NewHandler creates a new REST API handler
func NewHandler(st store.Store, client marketplace.Client, resolver assets.Resolver) *Handler {
	return &Handler{
		store:    st,
		client:   client,
		resolver: resolver,
	}
}

// SetupRoutes configures all REST API routes. Everything under
// /api/marketplace requires a valid wallet signature.
func SetupRoutes(router *gin.Engine, h *Handler, maxSignatureAge time.Duration) {
	router.GET("/health", h.HealthCheck)

	m := router.Group("/api/marketplace", VerifySignature(maxSignatureAge))
	{
		m.GET("/listed", h.GetListedNFTs)
		m.GET("/single-nft", h.GetNFT)
		m.GET("/nft-offers", h.GetOffersForNFTs)
		m.GET("/user-offers", h.GetOffersByBidder)
		m.GET("/stats", h.GetUserStats)
		m.GET("/sales", h.GetRecentSales)
		m.GET("/leaderboard", h.GetLeaderboard)
		m.GET("/activity", h.GetUserActivity)
		m.GET("/users/:address", h.GetUserHoldings)

		tx := m.Group("/transaction")
		{
			tx.GET("/list", h.GetListTransaction)
			tx.GET("/buy", h.GetBuyTransaction)
			tx.GET("/cancel", h.GetCancelTransaction)
			tx.GET("/create-offer", h.GetCreateOfferTransaction)
			tx.GET("/accept-offer", h.GetAcceptOfferTransaction)
			tx.GET("/cancel-offer", h.GetCancelOfferTransaction)
		}
	}
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetListedNFTs returns all active listings, cheapest first
// GET /api/marketplace/listed
func (h *Handler) GetListedNFTs(c *gin.Context) {
	nfts, err := h.store.GetListedNFTs(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to get listed NFTs")
		return
	}
	c.JSON(http.StatusOK, nfts)
}

// GetNFT returns a single NFT with metadata and offers
// GET /api/marketplace/single-nft?address=<mint>
func (h *Handler) GetNFT(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		respondBadRequest(c, "address is required")
		return
	}

	nft, err := h.store.GetNFTByAddress(c.Request.Context(), address)
	if err != nil {
		respondInternalError(c, err, "Failed to get NFT")
		return
	}
	if nft == nil {
		respondNotFound(c, "NFT not found")
		return
	}
	c.JSON(http.StatusOK, nft)
}

// GetOffersForNFTs returns the standing offers on the given NFTs
// GET /api/marketplace/nft-offers?addresses=<mint1>,<mint2>
func (h *Handler) GetOffersForNFTs(c *gin.Context) {
	raw := c.Query("addresses")
	if raw == "" {
		respondBadRequest(c, "addresses is required")
		return
	}
	addresses := strings.Split(raw, ",")

	offers, err := h.store.GetOffersForNFTs(c.Request.Context(), addresses)
	if err != nil {
		respondInternalError(c, err, "Failed to get offers")
		return
	}
	c.JSON(http.StatusOK, offers)
}

// GetOffersByBidder returns all offers placed by an address
// GET /api/marketplace/user-offers?bidder=<address>
func (h *Handler) GetOffersByBidder(c *gin.Context) {
	bidder := c.Query("bidder")
	if bidder == "" {
		respondBadRequest(c, "bidder is required")
		return
	}

	offers, err := h.store.GetOffersByBidder(c.Request.Context(), bidder)
	if err != nil {
		respondInternalError(c, err, "Failed to get offers")
		return
	}
	c.JSON(http.StatusOK, offers)
}

// GetUserStats returns cumulative trading statistics for an address
// GET /api/marketplace/stats?address=<address>
func (h *Handler) GetUserStats(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		respondBadRequest(c, "address is required")
		return
	}

	user, err := h.store.GetUser(c.Request.Context(), address)
	if err != nil {
		respondInternalError(c, err, "Failed to get user stats")
		return
	}
	if user == nil {
		respondNotFound(c, "User not found")
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetRecentSales returns the most recent completed sales
// GET /api/marketplace/sales?limit=<n>
func (h *Handler) GetRecentSales(c *gin.Context) {
	limit := parseLimit(c, defaultSalesLimit)
	sales, err := h.store.GetRecentSales(c.Request.Context(), limit)
	if err != nil {
		respondInternalError(c, err, "Failed to get sales")
		return
	}
	c.JSON(http.StatusOK, sales)
}

// GetLeaderboard returns users ranked by total bought value
// GET /api/marketplace/leaderboard?limit=<n>
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit := parseLimit(c, defaultLeaderboardLimit)
	users, err := h.store.GetLeaderboard(c.Request.Context(), limit)
	if err != nil {
		respondInternalError(c, err, "Failed to get leaderboard")
		return
	}
	c.JSON(http.StatusOK, users)
}

// GetUserActivity returns the most recent activities involving an address
// GET /api/marketplace/activity?address=<address>&limit=<n>
func (h *Handler) GetUserActivity(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		respondBadRequest(c, "address is required")
		return
	}

	limit := parseLimit(c, defaultActivityLimit)
	activities, err := h.store.GetActivitiesByUser(c.Request.Context(), address, limit)
	if err != nil {
		respondInternalError(c, err, "Failed to get activity")
		return
	}
	c.JSON(http.StatusOK, activities)
}

// GetUserHoldings returns the NFTs currently held by an address
// GET /api/marketplace/users/:address
func (h *Handler) GetUserHoldings(c *gin.Context) {
	address := c.Param("address")

	nfts, err := h.store.GetNFTsByOwner(c.Request.Context(), address)
	if err != nil {
		respondInternalError(c, err, "Failed to get holdings")
		return
	}
	c.JSON(http.StatusOK, nfts)
}

// GetListTransaction builds an unsigned listing transaction
// GET /api/marketplace/transaction/list?mint=<mint>&owner=<address>&price=<lamports>
func (h *Handler) GetListTransaction(c *gin.Context) {
	h.buildTransaction(c, "list", "mint", "owner", "price")
}

// GetBuyTransaction builds an unsigned buy transaction
// GET /api/marketplace/transaction/buy?buyer=<address>&mint=<mint>&owner=<address>&maxPrice=<lamports>
func (h *Handler) GetBuyTransaction(c *gin.Context) {
	h.buildTransaction(c, "buy", "buyer", "mint", "owner", "maxPrice")
}

// GetCancelTransaction builds an unsigned delisting transaction
// GET /api/marketplace/transaction/cancel?mint=<mint>&owner=<address>
func (h *Handler) GetCancelTransaction(c *gin.Context) {
	h.buildTransaction(c, "delist", "mint", "owner")
}

// GetCreateOfferTransaction builds an unsigned bid transaction
// GET /api/marketplace/transaction/create-offer?mint=<mint>&owner=<address>&price=<lamports>
func (h *Handler) GetCreateOfferTransaction(c *gin.Context) {
	h.buildTransaction(c, "bid", "mint", "owner", "price")
}

// GetAcceptOfferTransaction builds an unsigned bid-acceptance transaction
// GET /api/marketplace/transaction/accept-offer?seller=<address>&mint=<mint>&bidAddress=<address>&minPrice=<lamports>
func (h *Handler) GetAcceptOfferTransaction(c *gin.Context) {
	h.buildTransaction(c, "sell", "seller", "mint", "bidAddress", "minPrice")
}

// GetCancelOfferTransaction builds an unsigned bid-cancellation transaction
// GET /api/marketplace/transaction/cancel-offer?bidStateAddress=<address>
func (h *Handler) GetCancelOfferTransaction(c *gin.Context) {
	h.buildTransaction(c, "cancel_bid", "bidStateAddress")
}

// buildTransaction forwards the given query parameters to the marketplace
// transaction builder, attaching a fresh blockhash, and relays the raw
// response so the frontend can sign and submit it unchanged.
func (h *Handler) buildTransaction(c *gin.Context, kind string, keys ...string) {
	params := url.Values{}
	for _, key := range keys {
		value := c.Query(key)
		if value == "" {
			respondBadRequest(c, fmt.Sprintf("%s is required", key))
			return
		}
		params.Set(key, value)
	}

	blockhash, err := h.resolver.LatestBlockhash(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to fetch blockhash")
		return
	}
	params.Set("blockhash", blockhash)

	data, err := h.client.BuildTransaction(c.Request.Context(), kind, params)
	if err != nil {
		respondInternalError(c, err, fmt.Sprintf("Failed to build %s transaction", kind))
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func parseLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
