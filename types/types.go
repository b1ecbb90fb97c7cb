package types

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// AuctionState is the buyout module's state enum, in on-chain order.
type AuctionState uint8

const (
	StateInactive AuctionState = iota
	StateLive
	StateSuccessful
)

func (s AuctionState) String() string {
	switch s {
	case StateInactive:
		return "INACTIVE"
	case StateLive:
		return "LIVE"
	case StateSuccessful:
		return "SUCCESSFUL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in JSON output.
func (s AuctionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LPDAState is the drop-price auction state enum, in on-chain order.
type LPDAState uint8

const (
	LPDANotLive LPDAState = iota
	LPDALive
	LPDASuccessful
	LPDANotSuccessful
)

func (s LPDAState) String() string {
	switch s {
	case LPDANotLive:
		return "NOT_LIVE"
	case LPDALive:
		return "LIVE"
	case LPDASuccessful:
		return "SUCCESSFUL"
	case LPDANotSuccessful:
		return "NOT_SUCCESSFUL"
	default:
		return "UNKNOWN"
	}
}

func (s LPDAState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BuyoutInfo mirrors the buyout module's buyoutInfo(vault) struct.
type BuyoutInfo struct {
	StartTime       *big.Int
	Proposer        common.Address
	State           uint8
	FractionPrice   *big.Int
	EthBalance      *big.Int
	LastTotalSupply *big.Int
}

// AuctionInfo is a point-in-time snapshot of a vault's buyout. Times are unix
// milliseconds; zero means the buyout never started.
type AuctionInfo struct {
	EthBalance                  *big.Int        `json:"ethBalance"`
	FractionPrice               *big.Int        `json:"fractionPrice"`
	Supply                      *big.Int        `json:"supply"`
	SupplyInPool                *big.Int        `json:"supplyInPool"`
	SupplyOutsidePool           *big.Int        `json:"supplyOutsidePool"`
	SupplyPercentageInPool      string          `json:"supplyPercentageInPool"`
	SupplyPercentageOutsidePool string          `json:"supplyPercentageOutsidePool"`
	Proposer                    *common.Address `json:"proposer"`
	StartTime                   int64           `json:"startTime"`
	EndTime                     int64           `json:"endTime"`
	ProposalPeriodEnd           int64           `json:"proposalPeriodEnd"`
	RejectionPeriodEnd          int64           `json:"rejectionPeriodEnd"`
	ProposalPeriod              time.Duration   `json:"proposalPeriod"`
	RejectionPeriod             time.Duration   `json:"rejectionPeriod"`
	State                       AuctionState    `json:"state"`
}

// Started reports whether the buyout has a recorded start time.
func (a *AuctionInfo) Started() bool {
	return a.StartTime != 0
}

// LPDAInfo mirrors vaultLPDAInfo(vault).
type LPDAInfo struct {
	StartTime      uint32         `json:"startTime"`
	EndTime        uint32         `json:"endTime"`
	DropPerSecond  uint64         `json:"dropPerSecond"`
	StartPrice     *big.Int       `json:"startPrice"`
	EndPrice       *big.Int       `json:"endPrice"`
	MinBid         *big.Int       `json:"minBid"`
	Supply         uint16         `json:"supply"`
	NumSold        uint16         `json:"numSold"`
	CuratorClaimed *big.Int       `json:"curatorClaimed"`
	Curator        common.Address `json:"curator"`
}

// Bid is one BidEntered event of an LPDA auction.
type Bid struct {
	Bidder      common.Address `json:"bidderAddress"`
	PriceWei    *big.Int       `json:"priceWei"`
	Quantity    uint64         `json:"quantity"`
	TxHash      common.Hash    `json:"transactionHash"`
	BlockNumber uint64         `json:"blockNumber"`
}

// TokenStandard names a token interface accepted by deposit and withdraw batches.
type TokenStandard string

const (
	ERC20   TokenStandard = "ERC20"
	ERC721  TokenStandard = "ERC721"
	ERC1155 TokenStandard = "ERC1155"
)

// ParseTokenStandard accepts any letter case.
func ParseTokenStandard(s string) (TokenStandard, bool) {
	switch TokenStandard(strings.ToUpper(strings.TrimSpace(s))) {
	case ERC20:
		return ERC20, true
	case ERC721:
		return ERC721, true
	case ERC1155:
		return ERC1155, true
	}
	return "", false
}

// Token is one caller-supplied entry of a deposit or withdrawal batch.
// Amount is in the token's base units.
type Token struct {
	Standard string   `json:"standard"`
	Address  string   `json:"address"`
	ID       *big.Int `json:"id,omitempty"`
	Amount   *big.Int `json:"amount,omitempty"`
	Receiver string   `json:"receiver,omitempty"`
	Data     []byte   `json:"data,omitempty"`
}

// TokenInfo is the FERC1155 token backing a vault.
type TokenInfo struct {
	Token common.Address `json:"tokenAddress"`
	ID    *big.Int       `json:"tokenId"`
}

// GasEstimate is computed per call and never persisted. Nil fields mean the
// chain did not report that fee component.
type GasEstimate struct {
	GasLimit             uint64   `json:"gasLimit"`
	GasPrice             *big.Int `json:"gasPrice"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas"`
	TotalGasFee          *big.Int `json:"totalGasFee"`
}

// Receipt is returned by every state-changing operation.
type Receipt struct {
	TxHash       common.Hash      `json:"transactionHash"`
	BlockNumber  uint64           `json:"blockNumber"`
	GasUsed      uint64           `json:"gasUsed"`
	Status       uint64           `json:"status"`
	LogAddresses []common.Address `json:"logAddresses"`
	Logs         []*gethtypes.Log `json:"-"`
}

// DeployedAddress returns the address of the first emitted log, which by
// convention is the contract a factory call deployed.
func (r *Receipt) DeployedAddress() (common.Address, bool) {
	if len(r.LogAddresses) == 0 {
		return common.Address{}, false
	}
	return r.LogAddresses[0], true
}
