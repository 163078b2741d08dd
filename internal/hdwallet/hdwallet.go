// Package hdwallet derives EVM deposit addresses from a single BIP39
// mnemonic along m/44'/60'/0'/0/index.
package hdwallet

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"

	"github.com/dwarvesf/paywall-backend/internal/consts"
)

// EthereumCoinType is the SLIP-44 coin type shared by every EVM chain.
const EthereumCoinType = 60

// IDeriver maps a derivation index to a receiving address.
type IDeriver interface {
	Derive(index uint32) (string, error)
}

// Wallet is immutable after New and safe for concurrent use.
type Wallet struct {
	// external chain key at m/44'/60'/0'/0
	externalKey *hdkeychain.ExtendedKey
}

func New(mnemonic string) (*Wallet, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if mnemonic == "" {
		return nil, errors.Wrap(consts.ErrConfiguration, "hd wallet mnemonic is empty")
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.Wrap(consts.ErrConfiguration, "hd wallet mnemonic is malformed")
	}

	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, errors.Wrapf(consts.ErrConfiguration, "master key: %v", err)
	}

	path := []uint32{
		44 + hdkeychain.HardenedKeyStart,
		EthereumCoinType + hdkeychain.HardenedKeyStart,
		0 + hdkeychain.HardenedKeyStart,
		0,
	}
	key := master
	for _, idx := range path {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, errors.Wrapf(consts.ErrConfiguration, "derive account path: %v", err)
		}
	}

	return &Wallet{externalKey: key}, nil
}

// Derive returns the checksummed address at m/44'/60'/0'/0/index.
func (w *Wallet) Derive(index uint32) (string, error) {
	if index >= hdkeychain.HardenedKeyStart {
		return "", errors.Wrapf(consts.ErrConfiguration, "address index %d out of range", index)
	}

	child, err := w.externalKey.Derive(index)
	if err != nil {
		return "", errors.Wrapf(err, "derive index %d", index)
	}

	pub, err := child.ECPubKey()
	if err != nil {
		return "", errors.Wrapf(err, "public key for index %d", index)
	}

	return crypto.PubkeyToAddress(*pub.ToECDSA()).Hex(), nil
}
