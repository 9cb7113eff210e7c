package token

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
  {"name":"transfer","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"name":"transferFrom","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"sender","type":"address"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

// ERC20 settles currencies that are token contract addresses on an EVM chain.
// The configured key is the engine's custody account; transferFrom relies on
// an allowance granted to that account by the sender.
type ERC20 struct {
	client  *ethclient.Client
	abi     abi.ABI
	key     *ecdsa.PrivateKey
	chainID *big.Int
}

func NewERC20(ctx context.Context, rpcURL, privateKeyHex string) (*ERC20, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("token: dial rpc: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("token: parse erc20 abi: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("token: parse private key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("token: fetch chain id: %w", err)
	}

	return &ERC20{client: client, abi: parsed, key: key, chainID: chainID}, nil
}

func (e *ERC20) Transfer(ctx context.Context, currency, recipient string, amount int64) error {
	return e.transact(ctx, currency, "transfer",
		common.HexToAddress(recipient), big.NewInt(amount))
}

func (e *ERC20) TransferFrom(ctx context.Context, currency, sender, recipient string, amount int64) error {
	return e.transact(ctx, currency, "transferFrom",
		common.HexToAddress(sender), common.HexToAddress(recipient), big.NewInt(amount))
}

func (e *ERC20) transact(ctx context.Context, currency, method string, args ...interface{}) error {
	if !common.IsHexAddress(currency) {
		return fmt.Errorf("token: currency %q is not a token contract address", currency)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(e.key, e.chainID)
	if err != nil {
		return fmt.Errorf("token: build transactor: %w", err)
	}
	opts.Context = ctx

	contract := bind.NewBoundContract(common.HexToAddress(currency), e.abi, e.client, e.client, e.client)
	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		return fmt.Errorf("token: %s: %w", method, err)
	}

	receipt, err := bind.WaitMined(ctx, e.client, tx)
	if err != nil {
		return fmt.Errorf("token: wait %s receipt: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("token: %s reverted (tx %s)", method, tx.Hash())
	}
	return nil
}
