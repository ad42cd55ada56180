// Package oracle submits canonical floor values to a ledger-linked oracle
// contract. A submission succeeds or fails as a unit; retry policy lives in
// the guard, not here.
package oracle

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const oracleABIJSON = `[{"inputs":[{"internalType":"uint256","name":"price","type":"uint256"}],"name":"updateFloorPrice","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

var oracleABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(oracleABIJSON))
	if err != nil {
		panic("failed to parse oracle ABI: " + err.Error())
	}
	oracleABI = parsed
}

// Submitter pushes a canonical value to an oracle contract.
type Submitter interface {
	SubmitOracleUpdate(ctx context.Context, oracleAddress string, value decimal.Decimal) error
}

// Options parameterise the ledger client.
type Options struct {
	RPCURL       string
	PrivateKey   string
	ChainID      int64
	DecimalScale int32
	GasLimit     uint64
	Timeout      time.Duration
}

// Client submits oracle updates over Ethereum RPC.
type Client struct {
	opts   Options
	logger zerolog.Logger

	clientMux sync.Mutex
	client    *ethclient.Client
	key       *ecdsa.PrivateKey
	from      common.Address
}

// NewClient builds a ledger oracle client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	return &Client{opts: opts, logger: logger.With().Str("component", "oracle_client").Logger()}
}

// SubmitOracleUpdate signs and sends an updateFloorPrice transaction carrying
// the value scaled by the configured decimal scale.
func (c *Client) SubmitOracleUpdate(ctx context.Context, oracleAddress string, value decimal.Decimal) error {
	if c.opts.RPCURL == "" {
		return errors.New("ethereum rpc url not configured")
	}
	if c.opts.PrivateKey == "" {
		return errors.New("ethereum private key not configured")
	}
	if !common.IsHexAddress(oracleAddress) {
		return fmt.Errorf("invalid oracle address %q", oracleAddress)
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}
	key, from, err := c.getKey()
	if err != nil {
		return err
	}

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("suggest gas price: %w", err)
	}

	scaled := value.Shift(c.opts.DecimalScale).Round(0).BigInt()
	payload, err := oracleABI.Pack("updateFloorPrice", scaled)
	if err != nil {
		return fmt.Errorf("pack oracle update: %w", err)
	}

	gasLimit := c.opts.GasLimit
	if gasLimit == 0 {
		gasLimit = 120000
	}

	to := common.HexToAddress(oracleAddress)
	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, payload)

	chainID := big.NewInt(c.opts.ChainID)
	if c.opts.ChainID == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("fetch chain id: %w", err)
		}
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return fmt.Errorf("sign oracle update: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send oracle update: %w", err)
	}

	c.logger.Info().
		Str("oracle", oracleAddress).
		Str("value", value.String()).
		Str("tx", signed.Hash().Hex()).
		Msg("oracle update submitted")
	return nil
}

func (c *Client) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

func (c *Client) getKey() (*ecdsa.PrivateKey, common.Address, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.key != nil {
		return c.key, c.from, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.opts.PrivateKey, "0x"))
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	c.key = key
	c.from = crypto.PubkeyToAddress(key.PublicKey)
	return c.key, c.from, nil
}

var _ Submitter = (*Client)(nil)
