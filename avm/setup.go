// package avm binds an Observatory verifier deployed as an ARC4 application
// on Algorand, wrapping the go-algorand-sdk.
package avm

import (
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/pkg/errors"
)

// default parameters for an algokit local network
var (
	LocalnetAlgodURL   = "http://localhost:4001"
	LocalnetAlgodToken = strings.Repeat("a", 64)
)

// NewAlgodClient returns an algod client for url. An empty token is valid for
// public endpoints.
func NewAlgodClient(url string, token string) (*algod.Client, error) {
	algodClient, err := algod.MakeClient(url, token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create algod client")
	}
	return algodClient, nil
}

// AccountFromMnemonic returns the account for a 25 word mnemonic
func AccountFromMnemonic(words string) (crypto.Account, error) {
	privateKey, err := mnemonic.ToPrivateKey(strings.Join(strings.Fields(words), " "))
	if err != nil {
		return crypto.Account{}, errors.Wrap(err, "invalid mnemonic")
	}
	account, err := crypto.AccountFromPrivateKey(privateKey)
	if err != nil {
		return crypto.Account{}, errors.Wrap(err, "failed to create account from private key")
	}
	return account, nil
}
