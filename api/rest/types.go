package rest

// General response structure
type RestResp struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// StorageOptsReq carries per-call secure storage gating
type StorageOptsReq struct {
	RequireAuth bool `json:"requireAuth"`
}

type RecoverWalletReq struct {
	Mnemonic string `json:"mnemonic"`
	StorageOptsReq
}

type ImportKeyReq struct {
	PrivateKey string `json:"privateKey"`
	StorageOptsReq
}

type SignMessageReq struct {
	Message string `json:"message"`
}

type TransferReq struct {
	To        string `json:"to"`
	AmountWei string `json:"amountWei"`
}

// AccountResp is the public view of an account. It never carries key
// material.
type AccountResp struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
	Path      string `json:"derivationPath,omitempty"`
}

type WalletStatusResp struct {
	Exists    bool   `json:"exists"`
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

type CreateWalletResp struct {
	Account  AccountResp `json:"account"`
	Mnemonic string      `json:"mnemonic"`
}

type BalanceResp struct {
	Address    string `json:"address"`
	BalanceWei string `json:"balanceWei"`
}
