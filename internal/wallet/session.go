package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/angelmondragon/ledgermart/pkg/logger"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

var (
	// ErrNotConnected is returned when signing is requested without a wallet.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrIdentityChanged is returned when the connected wallet is no longer the
	// identity a transaction was prepared for.
	ErrIdentityChanged = errors.New("wallet identity changed")
)

// ChangeListener is notified after the connected identity changes. identity is
// empty after a disconnect.
type ChangeListener func(ctx context.Context, identity types.Identity)

// Status is a point-in-time view of the session.
type Status struct {
	Identity         types.Identity
	Connected        bool
	ConnectRequested bool
}

// Session holds at most one signing key on behalf of the local user.
type Session struct {
	mu               sync.RWMutex
	key              *ecdsa.PrivateKey
	identity         types.Identity
	connectRequested bool
	listeners        []ChangeListener
	logg             *logger.Logger
}

// NewSession returns a disconnected session.
func NewSession(logg *logger.Logger) *Session {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Session{logg: logg}
}

// CurrentIdentity returns the connected identity, if any.
func (s *Session) CurrentIdentity() (types.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return "", false
	}
	return s.identity, true
}

// PromptConnect records that the user must connect a wallet. Clients poll the
// wallet status and surface the request.
func (s *Session) PromptConnect(ctx context.Context) {
	s.mu.Lock()
	s.connectRequested = true
	s.mu.Unlock()
	s.logg.Info(ctx, "wallet connection requested")
}

// Status snapshots the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Identity:         s.identity,
		Connected:        s.key != nil,
		ConnectRequested: s.connectRequested,
	}
}

// OnChange registers a listener for identity changes.
func (s *Session) OnChange(listener ChangeListener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

// ConnectHex connects the wallet from a hex-encoded secp256k1 private key.
func (s *Session) ConnectHex(ctx context.Context, hexKey string) (types.Identity, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	return s.connect(ctx, key), nil
}

// ConnectKeystore connects the wallet from an encrypted keystore file.
func (s *Session) ConnectKeystore(ctx context.Context, path, passphrase string) (types.Identity, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read keystore: %w", err)
	}
	return s.ConnectKeystoreJSON(ctx, blob, passphrase)
}

// ConnectKeystoreJSON connects the wallet from keystore JSON already in memory.
func (s *Session) ConnectKeystoreJSON(ctx context.Context, blob []byte, passphrase string) (types.Identity, error) {
	key, err := keystore.DecryptKey(blob, passphrase)
	if err != nil {
		return "", fmt.Errorf("decrypt keystore: %w", err)
	}
	return s.connect(ctx, key.PrivateKey), nil
}

// Disconnect drops the signing key. Transactions already prepared for the old
// identity will fail to sign.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	if s.key == nil {
		s.mu.Unlock()
		return
	}
	previous := s.identity
	s.key = nil
	s.identity = ""
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()

	s.logg.Info(s.logg.WithIdentity(ctx, previous.String()), "wallet disconnected")
	notify(ctx, listeners, "")
}

// SignerFor returns the signing key only while expected is still the connected identity.
func (s *Session) SignerFor(expected types.Identity) (*ecdsa.PrivateKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, ErrNotConnected
	}
	if !s.identity.Equal(expected) {
		return nil, ErrIdentityChanged
	}
	return s.key, nil
}

func (s *Session) connect(ctx context.Context, key *ecdsa.PrivateKey) types.Identity {
	identity := types.IdentityFromAddress(crypto.PubkeyToAddress(key.PublicKey))

	s.mu.Lock()
	changed := !s.identity.Equal(identity) || s.key == nil
	s.key = key
	s.identity = identity
	s.connectRequested = false
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()

	s.logg.Info(s.logg.WithIdentity(ctx, identity.String()), "wallet connected")
	if changed {
		notify(ctx, listeners, identity)
	}
	return identity
}

func notify(ctx context.Context, listeners []ChangeListener, identity types.Identity) {
	for _, listener := range listeners {
		listener(ctx, identity)
	}
}
