package app

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/cosmos/go-bip39"
	ethCrypto "github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

const flareDerivationPath = "m/44'/60'/0'/0/0"

type FlareSigner struct {
	PrivateKey *ecdsa.PrivateKey
	Address    string
}

func flarePrivateKeyFromMnemonic(mnemonic string) (*ecdsa.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("error creating wallet from mnemonic: %w", err)
	}

	path := hdwallet.MustParseDerivationPath(flareDerivationPath)
	account, err := wallet.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("error deriving account: %w", err)
	}

	return wallet.PrivateKey(account)
}

// GetFlareSigner loads the transaction signing key from either a raw hex
// private key or a mnemonic, preferring the private key when both are set.
func GetFlareSigner() (*FlareSigner, error) {
	config := Config.Flare
	if config.PrivateKey == "" && config.Mnemonic == "" {
		return nil, fmt.Errorf("both PrivateKey and Mnemonic are empty")
	}

	var privateKey *ecdsa.PrivateKey
	var err error
	if config.PrivateKey != "" {
		privateKey, err = ethCrypto.HexToECDSA(config.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("error initializing flare signer: %w", err)
		}
	} else {
		privateKey, err = flarePrivateKeyFromMnemonic(config.Mnemonic)
		if err != nil {
			return nil, fmt.Errorf("error initializing flare signer: %w", err)
		}
	}

	address := ethCrypto.PubkeyToAddress(privateKey.PublicKey).Hex()

	return &FlareSigner{
		PrivateKey: privateKey,
		Address:    address,
	}, nil
}
