package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"

	"github.com/angelmondragon/ledgermart/api/responses"
	"github.com/angelmondragon/ledgermart/api/validators"
	"github.com/angelmondragon/ledgermart/internal/wallet"
	"github.com/angelmondragon/ledgermart/pkg/config"
	pkgerrors "github.com/angelmondragon/ledgermart/pkg/errors"
	"github.com/angelmondragon/ledgermart/pkg/logger"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

// WalletSession is the local signing session.
type WalletSession interface {
	Status() wallet.Status
	ConnectHex(ctx context.Context, hexKey string) (types.Identity, error)
	ConnectKeystore(ctx context.Context, path, passphrase string) (types.Identity, error)
	Disconnect(ctx context.Context)
}

type walletConnectRequest struct {
	PrivateKey string `json:"private_key" validate:"omitempty,hexadecimal"`
	Passphrase string `json:"passphrase"`
}

type walletResponse struct {
	Identity         string `json:"identity,omitempty"`
	Connected        bool   `json:"connected"`
	ConnectRequested bool   `json:"connect_requested"`
	ExplorerURL      string `json:"explorer_url,omitempty"`
}

func newWalletResponse(status wallet.Status, cfg config.LedgerConfig) walletResponse {
	return walletResponse{
		Identity:         status.Identity.String(),
		Connected:        status.Connected,
		ConnectRequested: status.ConnectRequested,
		ExplorerURL:      cfg.ExplorerAddressURL(status.Identity.String()),
	}
}

// WalletStatus reports the connected identity and whether a purchase asked
// for a connection.
func WalletStatus(session WalletSession, cfg config.LedgerConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet unavailable"))
			return
		}
		responses.WriteSuccess(w, newWalletResponse(session.Status(), cfg))
	}
}

// WalletConnect unlocks a signer from the request key, the configured
// keystore, or the configured key, in that order.
func WalletConnect(session WalletSession, cfg config.LedgerConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet unavailable"))
			return
		}

		var payload walletConnectRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		var err error
		switch {
		case strings.TrimSpace(payload.PrivateKey) != "":
			_, err = session.ConnectHex(r.Context(), payload.PrivateKey)
		case cfg.KeystorePath != "":
			_, err = session.ConnectKeystore(r.Context(), cfg.KeystorePath, payload.Passphrase)
		case cfg.SignerKey != "":
			_, err = session.ConnectHex(r.Context(), cfg.SignerKey)
		default:
			err = pkgerrors.New(pkgerrors.CodeValidation, "no signer configured").
				WithDetails(map[string]any{"private_key": "is required when no keystore is configured"})
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, connectError(err))
			return
		}

		responses.WriteSuccess(w, newWalletResponse(session.Status(), cfg))
	}
}

// WalletDisconnect drops the signer.
func WalletDisconnect(session WalletSession, cfg config.LedgerConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet unavailable"))
			return
		}
		session.Disconnect(r.Context())
		responses.WriteSuccess(w, newWalletResponse(session.Status(), cfg))
	}
}

func connectError(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, keystore.ErrDecrypt) {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "keystore passphrase rejected")
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "could not load signing key")
}
