package domain

import "time"

// Account is a local trading wallet able to submit orders to the CLOB.
// PrivateKey, APISecret, and APIPassphrase are stored encrypted; the
// credential vault decrypts them on demand.
type Account struct {
	ID            int64
	Name          string
	WalletAddress string // EOA address that signs orders
	ProxyAddress  string // Polymarket proxy wallet that holds funds
	PrivateKey    string // encrypted hex private key
	APIKey        string
	APISecret     string // encrypted
	APIPassphrase string // encrypted
	Enabled       bool
	CreatedAt     time.Time
}

// HasCredentials reports whether the account carries everything needed to
// build an authenticated CLOB submission context.
func (a Account) HasCredentials() bool {
	return a.APIKey != "" && a.APISecret != "" && a.APIPassphrase != "" && a.PrivateKey != ""
}
