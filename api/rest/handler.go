package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/giwa-chain/giwa-walletd/api"
	"github.com/giwa-chain/giwa-walletd/audit"
	"github.com/giwa-chain/giwa-walletd/client"
	"github.com/giwa-chain/giwa-walletd/common/crypto"
	"github.com/giwa-chain/giwa-walletd/keystore"
	"github.com/giwa-chain/giwa-walletd/ratelimit"
	"github.com/giwa-chain/giwa-walletd/wallet"

	"github.com/gorilla/mux"
)

// get home response
func HomeHandler(w http.ResponseWriter, r *http.Request) {
	info := map[string]string{
		"name":    "GIWA Wallet API",
		"version": "1.0.0",
	}
	sendResp(w, http.StatusOK, info, nil)
}

// create a new wallet; the mnemonic appears in this response exactly once
func CreateWallet(manager *wallet.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StorageOptsReq
		decodeBody(r, &req)

		if manager.HasWallet() {
			sendResp(w, http.StatusConflict, nil, fmt.Errorf("wallet already exists, delete it first"))
			return
		}

		account, mnemonic, err := manager.CreateWallet(storageOpts(req, "Create wallet"))
		if err != nil {
			sendErr(w, err)
			return
		}

		sendResp(w, http.StatusCreated, CreateWalletResp{
			Account:  formatAccount(account),
			Mnemonic: mnemonic,
		}, nil)
	}
}

// recover a wallet from a mnemonic phrase
func RecoverWallet(manager *wallet.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RecoverWalletReq
		if err := decodeBody(r, &req); err != nil {
			sendResp(w, http.StatusBadRequest, nil, err)
			return
		}

		account, err := manager.RecoverWallet(req.Mnemonic, storageOpts(req.StorageOptsReq, "Recover wallet"))
		if err != nil {
			sendErr(w, err)
			return
		}

		sendResp(w, http.StatusCreated, formatAccount(account), nil)
	}
}

// import a raw private key
func ImportPrivateKey(manager *wallet.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportKeyReq
		if err := decodeBody(r, &req); err != nil {
			sendResp(w, http.StatusBadRequest, nil, err)
			return
		}

		account, err := manager.ImportPrivateKey(req.PrivateKey, storageOpts(req.StorageOptsReq, "Import private key"))
		if err != nil {
			sendErr(w, err)
			return
		}

		sendResp(w, http.StatusCreated, formatAccount(account), nil)
	}
}

// load the persisted wallet into the hot slot
func LoadWallet(manager *wallet.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StorageOptsReq
		decodeBody(r, &req)

		account, err := manager.LoadWallet(storageOpts(req, "Unlock wallet"))
		if err != nil {
			sendErr(w, err)
			return
		}
		if account == nil {
			sendResp(w, http.StatusNotFound, nil, fmt.Errorf("no wallet exists"))
			return
		}

		sendResp(w, http.StatusOK, formatAccount(account), nil)
	}
}

// wallet existence and connection status
func GetWalletStatus(manager *wallet.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := WalletStatusResp{
			Exists: manager.HasWallet(),
		}
		if account := manager.GetAccount(); account != nil {
			status.Connected = true
			status.Address = account.Address.Hex()
		}

		sendResp(w, http.StatusOK, status, nil)
	}
}

// current hot account, nil after the inactivity timeout
func GetAccount(manager *wallet.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := manager.GetAccount()
		if account == nil {
			sendResp(w, http.StatusNotFound, nil, fmt.Errorf("no hot account, load the wallet first"))
			return
		}

		sendResp(w, http.StatusOK, formatAccount(account), nil)
	}
}

// export the stored mnemonic (rate limited)
func ExportMnemonic(manager *wallet.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StorageOptsReq
		decodeBody(r, &req)

		mnemonic, err := manager.ExportMnemonic(storageOpts(req, "Export recovery phrase"))
		if err != nil {
			sendErr(w, err)
			return
		}
		if mnemonic == "" {
			sendResp(w, http.StatusNotFound, nil, fmt.Errorf("no mnemonic stored for this wallet"))
			return
		}

		sendResp(w, http.StatusOK, map[string]string{"mnemonic": mnemonic}, nil)
	}
}

// export the private key hex (rate limited)
func ExportPrivateKey(manager *wallet.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StorageOptsReq
		decodeBody(r, &req)

		keyHex, err := manager.ExportPrivateKey(storageOpts(req, "Export private key"))
		if err != nil {
			sendErr(w, err)
			return
		}
		if keyHex == "" {
			sendResp(w, http.StatusNotFound, nil, fmt.Errorf("no key material stored"))
			return
		}

		sendResp(w, http.StatusOK, map[string]string{"privateKey": keyHex}, nil)
	}
}

// sign an arbitrary message with the hot account
func SignMessage(manager *wallet.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignMessageReq
		if err := decodeBody(r, &req); err != nil {
			sendResp(w, http.StatusBadRequest, nil, err)
			return
		}

		account := manager.GetAccount()
		if account == nil {
			sendErr(w, wallet.ErrNotConnected)
			return
		}

		sig, err := crypto.SignMessage(account.PrivateKey, []byte(req.Message))
		if err != nil {
			sendResp(w, http.StatusInternalServerError, nil, err)
			return
		}

		sendResp(w, http.StatusOK, map[string]string{
			"address":   account.Address.Hex(),
			"signature": fmt.Sprintf("0x%x", sig),
		}, nil)
	}
}

// submit a native transfer signed by the hot account
func Transfer(manager *wallet.Manager, chain *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransferReq
		if err := decodeBody(r, &req); err != nil {
			sendResp(w, http.StatusBadRequest, nil, err)
			return
		}

		amount, ok := new(big.Int).SetString(req.AmountWei, 10)
		if !ok {
			sendResp(w, http.StatusBadRequest, nil, fmt.Errorf("invalid amountWei: %s", req.AmountWei))
			return
		}

		account := manager.GetAccount()
		if account == nil {
			sendErr(w, wallet.ErrNotConnected)
			return
		}

		txHash, err := chain.Transfer(r.Context(), account, req.To, amount)
		if err != nil {
			sendErr(w, err)
			return
		}

		sendResp(w, http.StatusOK, map[string]string{"txHash": txHash.Hex()}, nil)
	}
}

// native balance lookup
func GetBalance(chain *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		address := vars["address"]

		balance, err := chain.Balance(r.Context(), address)
		if err != nil {
			sendResp(w, http.StatusBadGateway, nil, err)
			return
		}

		sendResp(w, http.StatusOK, BalanceResp{
			Address:    address,
			BalanceWei: balance.String(),
		}, nil)
	}
}

// chain id from the RPC node
func GetChainID(chain *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chainID, err := chain.ChainID(r.Context())
		if err != nil {
			sendResp(w, http.StatusBadGateway, nil, err)
			return
		}

		sendResp(w, http.StatusOK, map[string]string{"chainId": chainID.String()}, nil)
	}
}

// delete the wallet and all stored secrets
func DeleteWallet(manager *wallet.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !manager.HasWallet() {
			sendResp(w, http.StatusNotFound, nil, fmt.Errorf("no wallet exists"))
			return
		}

		if err := manager.DeleteWallet(); err != nil {
			sendErr(w, err)
			return
		}

		sendResp(w, http.StatusOK, map[string]bool{"deleted": true}, nil)
	}
}

// recent security events for review
func GetAuditEvents(sink *audit.MemorySink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sink == nil {
			sendResp(w, http.StatusNotFound, nil, fmt.Errorf("audit endpoint disabled"))
			return
		}

		events := sink.Events()
		sendResp(w, http.StatusOK, map[string]interface{}{
			"count":  len(events),
			"events": events,
		}, nil)
	}
}

// GetWSStatus reports connected websocket clients
func GetWSStatus(wsHub *api.WSHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sendResp(w, http.StatusOK, map[string]int{"clients": wsHub.ClientCount()}, nil)
	}
}

func storageOpts(req StorageOptsReq, prompt string) keystore.Options {
	return keystore.Options{
		RequireAuth: req.RequireAuth,
		Prompt:      prompt,
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err.Error() == "EOF" {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func formatAccount(account *wallet.Account) AccountResp {
	return AccountResp{
		Address:   account.Address.Hex(),
		PublicKey: fmt.Sprintf("0x%x", account.PublicKey),
		Path:      account.Path,
	}
}

// sendErr maps wallet error codes onto HTTP status codes
func sendErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := ""

	var rlErr *ratelimit.Error
	var wErr *wallet.Error
	switch {
	case errors.As(err, &rlErr):
		status = http.StatusTooManyRequests
		code = "RATE_LIMITED"
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rlErr.RetryAfter.Seconds())))
	case errors.As(err, &wErr):
		code = wErr.Code
		switch wErr.Code {
		case wallet.ErrCodeInvalidMnemonic, wallet.ErrCodeInvalidPrivateKey:
			status = http.StatusBadRequest
		case wallet.ErrCodeNoWallet:
			status = http.StatusNotFound
		case wallet.ErrCodeNotConnected:
			status = http.StatusConflict
		}
	case errors.Is(err, keystore.ErrAuthDenied), errors.Is(err, keystore.ErrAuthRequired):
		status = http.StatusForbidden
		code = "AUTH_FAILED"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(RestResp{
		Success: false,
		Error:   err.Error(),
		Code:    code,
	})
}

func sendResp(w http.ResponseWriter, statusCode int, data interface{}, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := RestResp{
		Success: err == nil,
		Data:    data,
	}

	if err != nil {
		response.Error = err.Error()
	}

	json.NewEncoder(w).Encode(response)
}
