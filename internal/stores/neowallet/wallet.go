// Package neowallet implements the wallet store over a NEO N3 RPC node.
// It validates the configured address at connect time, keeps NEP-17
// balances fresh, and seals session material with the platform crypto
// helpers.
package neowallet

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/joeqian10/neo3-gogogo/crypto"
	"github.com/joeqian10/neo3-gogogo/helper"
	"github.com/joeqian10/neo3-gogogo/rpc"

	"github.com/CryptoStream-Network/stream_layer/internal/stores"
	"github.com/CryptoStream-Network/stream_layer/pkg/cryptoutil"
	"github.com/CryptoStream-Network/stream_layer/pkg/logger"
)

// Store is a WalletStore backed by a NEO N3 node.
type Store struct {
	client  *rpc.RpcClient
	address string
	log     *logger.Logger

	mu        sync.RWMutex
	connected bool
	session   []byte
	balances  map[string]float64
}

var _ stores.WalletStore = (*Store)(nil)

// New creates a wallet store for the given RPC endpoint and address. The
// address is validated eagerly so a typo fails at construction, not at the
// first connect.
func New(endpoint, address string, log *logger.Logger) (*Store, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("wallet rpc endpoint required")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("wallet address required")
	}
	if _, err := crypto.AddressToScriptHash(address, helper.DefaultAddressVersion); err != nil {
		return nil, fmt.Errorf("invalid wallet address %q: %w", address, err)
	}
	if log == nil {
		log = logger.NewDefault("neowallet")
	}
	return &Store{
		client:   rpc.NewClient(endpoint),
		address:  address,
		log:      log,
		balances: make(map[string]float64),
	}, nil
}

// Connect verifies the node is reachable and establishes the session.
func (s *Store) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	version := s.client.GetVersion()
	if version.HasError() {
		return fmt.Errorf("wallet node unreachable: %s", version.GetErrorInfo())
	}

	// Seal the session so the address never sits in memory in the clear
	// alongside the connection handle.
	key, err := cryptoutil.DeriveKey([]byte(s.address), []byte(version.Result.UserAgent))
	if err != nil {
		return fmt.Errorf("derive session key: %w", err)
	}
	session, err := cryptoutil.Encrypt(key, []byte(s.address))
	if err != nil {
		return fmt.Errorf("seal wallet session: %w", err)
	}

	s.mu.Lock()
	s.connected = true
	s.session = session
	s.mu.Unlock()

	s.log.WithField("user_agent", version.Result.UserAgent).Info("wallet connected")
	return s.RefreshBalance(ctx)
}

// Connected reports whether a session is active.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Disconnect drops the session and clears cached balances.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.session = nil
	s.balances = make(map[string]float64)
	s.log.Info("wallet disconnected")
	return nil
}

// RefreshBalance pulls the current NEP-17 balances for the address.
func (s *Store) RefreshBalance(ctx context.Context) error {
	if !s.Connected() {
		return stores.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	resp := s.client.GetNep17Balances(s.address)
	if resp.HasError() {
		return fmt.Errorf("fetch nep17 balances: %s", resp.GetErrorInfo())
	}

	balances := make(map[string]float64, len(resp.Result.Balances))
	for _, b := range resp.Result.Balances {
		amount, err := strconv.ParseFloat(strconv.FormatUint(b.Amount, 10), 64)
		if err != nil {
			s.log.WithError(err).WithField("asset", b.AssetHash).Warn("unparseable balance amount")
			continue
		}
		balances[b.AssetHash] = amount
	}

	s.mu.Lock()
	s.balances = balances
	s.mu.Unlock()

	s.log.WithField("assets", len(balances)).Debug("wallet balances refreshed")
	return nil
}

// Balance returns the cached amount for an asset hash.
func (s *Store) Balance(assetHash string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	amount, ok := s.balances[assetHash]
	return amount, ok
}
