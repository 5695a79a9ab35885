package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/universalnft/marketplace-indexer/internal/adapter"
	"github.com/universalnft/marketplace-indexer/internal/logger"
	"github.com/universalnft/marketplace-indexer/internal/marketplace"
	"github.com/universalnft/marketplace-indexer/internal/store"
)

const (
	defaultPingInterval     = 30 * time.Second
	defaultWatchdogInterval = 10 * time.Second
	defaultStaleThreshold   = 40 * time.Second
	defaultReconnectDelay   = time.Second
)

// ConnectorConfig configures the live event connector.
type ConnectorConfig struct {
	URL    string
	APIKey string

	// PingInterval is how often a ping frame is sent
	PingInterval time.Duration
	// WatchdogInterval is how often pong freshness is checked
	WatchdogInterval time.Duration
	// StaleThreshold is the pong age that forces a reconnect
	StaleThreshold time.Duration
	// ReconnectDelay is the pause between a teardown and the next dial
	ReconnectDelay time.Duration
}

func (c *ConnectorConfig) applyDefaults() {
	if c.PingInterval == 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.WatchdogInterval == 0 {
		c.WatchdogInterval = defaultWatchdogInterval
	}
	if c.StaleThreshold == 0 {
		c.StaleThreshold = defaultStaleThreshold
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
}

// Connector maintains the live event stream: dial, subscribe, heartbeat,
// dispatch, and reconnect forever on any failure. All per-connection state
// lives in the session and dies with it.
type Connector struct {
	cfg     ConnectorConfig
	dialer  adapter.WSDialer
	store   store.Store
	handler *Handler
	clock   adapter.Clock
	log     *zap.Logger
}

// NewConnector creates a live event connector
func NewConnector(cfg ConnectorConfig, dialer adapter.WSDialer, st store.Store, handler *Handler, clock adapter.Clock) *Connector {
	cfg.applyDefaults()
	return &Connector{
		cfg:     cfg,
		dialer:  dialer,
		store:   st,
		handler: handler,
		clock:   clock,
		log:     logger.Default(),
	}
}

// Run connects and reconnects until ctx is cancelled.
func (c *Connector) Run(ctx context.Context) {
	for {
		if err := c.runSession(ctx); err != nil {
			c.log.Warn("live session ended, reconnecting", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.cfg.ReconnectDelay):
		}
	}
}

// wsMessage is one inbound frame.
type wsMessage struct {
	Type string `json:"type"`
	Data struct {
		Tx struct {
			Tx   marketplace.TxRecord `json:"tx"`
			Mint marketplace.TxMint   `json:"mint"`
		} `json:"tx"`
	} `json:"data"`
}

type subscribeMessage struct {
	Event   string `json:"event"`
	Payload struct {
		CollID string `json:"collId"`
	} `json:"payload"`
}

type readResult struct {
	data []byte
	err  error
}

// session holds the state of one connection attempt. A new session starts
// from scratch; nothing survives a teardown.
type session struct {
	conn     adapter.WSConn
	lastPong time.Time
}

func (s *session) stale(now time.Time, threshold time.Duration) bool {
	if s.lastPong.IsZero() {
		return false
	}
	return now.Sub(s.lastPong) >= threshold
}

func (c *Connector) runSession(ctx context.Context) error {
	collections, err := c.store.GetCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to load collections: %w", err)
	}
	if len(collections) == 0 {
		return fmt.Errorf("no resolved collections to subscribe to")
	}

	header := http.Header{}
	header.Set("x-tensor-api-key", c.cfg.APIKey)

	conn, err := c.dialer.Dial(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	for _, coll := range collections {
		sub := subscribeMessage{Event: "newTransaction"}
		sub.Payload.CollID = coll.ID
		data, err := json.Marshal(sub)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
	}
	c.log.Info("live stream connected",
		zap.String("url", c.cfg.URL),
		zap.Int("collections", len(collections)))

	frames := make(chan readResult)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			select {
			case frames <- readResult{data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	sess := &session{conn: conn}
	pingTicker := c.clock.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()
	watchdog := c.clock.NewTicker(c.cfg.WatchdogInterval)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case frame := <-frames:
			if frame.err != nil {
				return fmt.Errorf("read failed: %w", frame.err)
			}
			c.handleFrame(ctx, sess, frame.data)

		case <-pingTicker.C():
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}

		case <-watchdog.C():
			if sess.stale(c.clock.Now(), c.cfg.StaleThreshold) {
				return fmt.Errorf("no pong for %s, forcing reconnect", c.clock.Since(sess.lastPong))
			}
		}
	}
}

// handleFrame parses and dispatches one inbound frame. Malformed payloads
// and handler failures are logged and never end the session.
func (c *Connector) handleFrame(ctx context.Context, sess *session, data []byte) {
	if len(data) == 0 {
		return
	}

	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("malformed live frame, dropping", zap.Error(err))
		return
	}

	switch msg.Type {
	case "pong":
		sess.lastPong = c.clock.Now()
	case "newTransaction":
		if err := c.handler.HandleTransaction(ctx, msg.Data.Tx.Tx, msg.Data.Tx.Mint); err != nil {
			c.log.Error("failed to handle live transaction",
				zap.String("txid", msg.Data.Tx.Tx.TxKey),
				zap.String("tx_type", msg.Data.Tx.Tx.TxType),
				zap.Error(err))
		}
	}
}
