// Package client wraps the external Ethereum client for GIWA chain reads
// and transaction submission. All wire-protocol concerns stay in
// go-ethereum; this layer only validates inputs and hands the hot account
// over for signing.
package client

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/giwa-chain/giwa-walletd/wallet"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is a lazy-dialling GIWA chain RPC client.
type Client struct {
	rpcURL  string
	chainID *big.Int

	mu  sync.Mutex
	eth *ethclient.Client
}

func New(rpcURL string, chainID int64) *Client {
	return &Client{
		rpcURL:  rpcURL,
		chainID: big.NewInt(chainID),
	}
}

func (c *Client) conn(ctx context.Context) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		return c.eth, nil
	}

	eth, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	c.eth = eth
	return eth, nil
}

// Balance returns the native balance in wei for an address.
func (c *Client) Balance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address: %s", address)
	}

	eth, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	return eth.BalanceAt(ctx, common.HexToAddress(address), nil)
}

// Nonce returns the pending nonce for an address.
func (c *Client) Nonce(ctx context.Context, address string) (uint64, error) {
	if !common.IsHexAddress(address) {
		return 0, fmt.Errorf("invalid address: %s", address)
	}

	eth, err := c.conn(ctx)
	if err != nil {
		return 0, err
	}

	return eth.PendingNonceAt(ctx, common.HexToAddress(address))
}

// ChainID asks the node for its chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	eth, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	return eth.ChainID(ctx)
}

// NewTransactor builds signing transaction options from the hot account.
// This is the single point where the wallet hands key material to the
// write client.
func (c *Client) NewTransactor(account *wallet.Account) (*bind.TransactOpts, error) {
	if account == nil || account.PrivateKey == nil {
		return nil, wallet.ErrNotConnected
	}

	auth, err := bind.NewKeyedTransactorWithChainID(account.PrivateKey, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return auth, nil
}

// Transfer signs and submits a native transfer from the hot account.
func (c *Client) Transfer(ctx context.Context, account *wallet.Account, to string, amountWei *big.Int) (common.Hash, error) {
	if account == nil || account.PrivateKey == nil {
		return common.Hash{}, wallet.ErrNotConnected
	}
	if !common.IsHexAddress(to) {
		return common.Hash{}, fmt.Errorf("invalid recipient address: %s", to)
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("invalid amount")
	}

	eth, err := c.conn(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := eth.PendingNonceAt(ctx, account.Address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, common.HexToAddress(to), amountWei, 21000, gasPrice, nil)

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), account.PrivateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := eth.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash(), nil
}

// Close tears down the RPC connection if one was dialled.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
}
