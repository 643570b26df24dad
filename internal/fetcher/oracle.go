package fetcher

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const aggregatorABIJSON = `[{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}]`

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// ChainOracleOptions parameterise the on-chain price feed fetcher.
type ChainOracleOptions struct {
	RPCURL string
	// Feeds maps watchlist symbols to aggregator contract addresses.
	Feeds map[string]string
	// Decimals is the fixed-point scale of feed answers. USD feeds use 8.
	Decimals int32
	// MaxAge rejects answers whose updatedAt is older than this.
	MaxAge  time.Duration
	Timeout time.Duration
}

// ChainOracle reads USD prices from on-chain aggregator feeds over Ethereum
// RPC. It backs the crypto chain as a fallback when the market API is down.
type ChainOracle struct {
	opts      ChainOracleOptions
	logger    zerolog.Logger
	feeds     map[string]common.Address
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewChainOracle builds an on-chain feed source.
func NewChainOracle(opts ChainOracleOptions, logger zerolog.Logger) *ChainOracle {
	if opts.Decimals <= 0 {
		opts.Decimals = 8
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = time.Hour
	}

	feeds := make(map[string]common.Address, len(opts.Feeds))
	for symbol, addr := range opts.Feeds {
		feeds[strings.ToUpper(symbol)] = common.HexToAddress(addr)
	}

	return &ChainOracle{
		opts:   opts,
		logger: logger.With().Str("component", "oracle_source").Logger(),
		feeds:  feeds,
	}
}

// Name identifies this source in price records and logs.
func (o *ChainOracle) Name() string { return "chain_oracle" }

// Fetch reads latestRoundData from the symbol's aggregator feed.
func (o *ChainOracle) Fetch(ctx context.Context, symbol string) (PriceRecord, error) {
	if o.opts.RPCURL == "" {
		return PriceRecord{}, fmt.Errorf("ethereum rpc url not configured: %w", ErrSourceUnavailable)
	}

	feed, ok := o.feeds[strings.ToUpper(symbol)]
	if !ok {
		return PriceRecord{}, fmt.Errorf("no feed configured for %s: %w", symbol, ErrSymbolNotFound)
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := o.getClient(ctx)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("%v: %w", err, ErrSourceUnavailable)
	}

	payload, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return PriceRecord{}, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &feed, Data: payload}, nil)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("%v: %w", err, ErrSourceUnavailable)
	}

	outputs, err := aggregatorABI.Unpack("latestRoundData", res)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("unpack latestRoundData: %w", ErrSourceUnavailable)
	}
	if len(outputs) != 5 {
		return PriceRecord{}, fmt.Errorf("unexpected latestRoundData output: %w", ErrSourceUnavailable)
	}

	answer, ok := outputs[1].(*big.Int)
	if !ok || answer.Sign() <= 0 {
		return PriceRecord{}, fmt.Errorf("invalid feed answer: %w", ErrSourceUnavailable)
	}
	updatedAt, ok := outputs[3].(*big.Int)
	if !ok {
		return PriceRecord{}, fmt.Errorf("invalid feed timestamp: %w", ErrSourceUnavailable)
	}

	updated := time.Unix(updatedAt.Int64(), 0).UTC()
	if time.Since(updated) > o.opts.MaxAge {
		return PriceRecord{}, fmt.Errorf("feed updated %s ago: %w", time.Since(updated).Round(time.Second), ErrStalePrice)
	}

	return PriceRecord{
		Symbol:    symbol,
		Name:      symbol,
		Price:     decimal.NewFromBigInt(answer, -o.opts.Decimals),
		Currency:  "USD",
		Source:    o.Name(),
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (o *ChainOracle) getClient(ctx context.Context) (*ethclient.Client, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.client != nil {
		return o.client, nil
	}

	client, err := ethclient.DialContext(ctx, o.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	o.client = client
	return client, nil
}

var _ Source = (*ChainOracle)(nil)
