package eth

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Backend is the chain access the SDK needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client wraps both rpc.Client and ethclient.Client for Ethereum interactions
type Client struct {
	*ethclient.Client
	Rpc *rpc.Client
}

var _ Backend = (*Client)(nil)

// NewClient dials url once and shares the connection between the raw RPC
// client and ethclient.
func NewClient(ctx context.Context, url string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}

	return &Client{
		Client: ethclient.NewClient(rpcClient),
		Rpc:    rpcClient,
	}, nil
}
