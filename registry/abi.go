package registry

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Trimmed contract interfaces. Only the entries the SDK calls or decodes are
// listed.

const vaultRegistryABI = `[
{"type":"function","name":"vaultToToken","stateMutability":"view","inputs":[{"name":"_vault","type":"address"}],"outputs":[{"name":"token","type":"address"},{"name":"id","type":"uint256"}]},
{"type":"event","name":"VaultDeployed","anonymous":false,"inputs":[{"name":"_vault","type":"address","indexed":true},{"name":"_token","type":"address","indexed":true},{"name":"_id","type":"uint256","indexed":true}]}
]`

const baseVaultABI = `[
{"type":"function","name":"deployVault","stateMutability":"nonpayable","inputs":[{"name":"_fractionSupply","type":"uint256"},{"name":"_modules","type":"address[]"},{"name":"_plugins","type":"address[]"},{"name":"_selectors","type":"bytes4[]"},{"name":"_mintProof","type":"bytes32[]"}],"outputs":[{"name":"vault","type":"address"}]},
{"type":"function","name":"batchDepositERC20","stateMutability":"nonpayable","inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_tokens","type":"address[]"},{"name":"_amounts","type":"uint256[]"}],"outputs":[]},
{"type":"function","name":"batchDepositERC721","stateMutability":"nonpayable","inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_tokens","type":"address[]"},{"name":"_ids","type":"uint256[]"}],"outputs":[]},
{"type":"function","name":"batchDepositERC1155","stateMutability":"nonpayable","inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_tokens","type":"address[]"},{"name":"_ids","type":"uint256[]"},{"name":"_amounts","type":"uint256[]"},{"name":"_datas","type":"bytes[]"}],"outputs":[]},
{"type":"function","name":"multicall","stateMutability":"payable","inputs":[{"name":"_data","type":"bytes[]"}],"outputs":[{"name":"results","type":"bytes[]"}]},
{"type":"function","name":"generateMerkleTree","stateMutability":"view","inputs":[{"name":"_modules","type":"address[]"}],"outputs":[{"name":"hashes","type":"bytes32[]"}]},
{"type":"function","name":"getProof","stateMutability":"pure","inputs":[{"name":"_data","type":"bytes32[]"},{"name":"_node","type":"uint256"}],"outputs":[{"name":"proof","type":"bytes32[]"}]},
{"type":"event","name":"ActiveModules","anonymous":false,"inputs":[{"name":"_vault","type":"address","indexed":true},{"name":"_modules","type":"address[]","indexed":false}]}
]`

const buyoutABI = `[
{"type":"function","name":"buyoutInfo","stateMutability":"view","inputs":[{"name":"_vault","type":"address"}],"outputs":[{"name":"startTime","type":"uint256"},{"name":"proposer","type":"address"},{"name":"state","type":"uint8"},{"name":"fractionPrice","type":"uint256"},{"name":"ethBalance","type":"uint256"},{"name":"lastTotalSupply","type":"uint256"}]},
{"type":"function","name":"PROPOSAL_PERIOD","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"REJECTION_PERIOD","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"start","stateMutability":"payable","inputs":[{"name":"_vault","type":"address"}],"outputs":[]},
{"type":"function","name":"sellFractions","stateMutability":"nonpayable","inputs":[{"name":"_vault","type":"address"},{"name":"_amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"buyFractions","stateMutability":"payable","inputs":[{"name":"_vault","type":"address"},{"name":"_amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"end","stateMutability":"nonpayable","inputs":[{"name":"_vault","type":"address"},{"name":"_burnProof","type":"bytes32[]"}],"outputs":[]},
{"type":"function","name":"cash","stateMutability":"nonpayable","inputs":[{"name":"_vault","type":"address"},{"name":"_burnProof","type":"bytes32[]"}],"outputs":[]},
{"type":"function","name":"redeem","stateMutability":"nonpayable","inputs":[{"name":"_vault","type":"address"},{"name":"_burnProof","type":"bytes32[]"}],"outputs":[]},
{"type":"function","name":"withdrawERC20","stateMutability":"nonpayable","inputs":[{"name":"_vault","type":"address"},{"name":"_token","type":"address"},{"name":"_to","type":"address"},{"name":"_value","type":"uint256"},{"name":"_erc20TransferProof","type":"bytes32[]"}],"outputs":[]},
{"type":"function","name":"withdrawERC721","stateMutability":"nonpayable","inputs":[{"name":"_vault","type":"address"},{"name":"_token","type":"address"},{"name":"_to","type":"address"},{"name":"_tokenId","type":"uint256"},{"name":"_erc721TransferProof","type":"bytes32[]"}],"outputs":[]},
{"type":"function","name":"withdrawERC1155","stateMutability":"nonpayable","inputs":[{"name":"_vault","type":"address"},{"name":"_token","type":"address"},{"name":"_to","type":"address"},{"name":"_id","type":"uint256"},{"name":"_value","type":"uint256"},{"name":"_erc1155TransferProof","type":"bytes32[]"}],"outputs":[]},
{"type":"function","name":"batchWithdrawERC1155","stateMutability":"nonpayable","inputs":[{"name":"_vault","type":"address"},{"name":"_token","type":"address"},{"name":"_to","type":"address"},{"name":"_ids","type":"uint256[]"},{"name":"_values","type":"uint256[]"},{"name":"_erc1155BatchTransferProof","type":"bytes32[]"}],"outputs":[]},
{"type":"function","name":"selfPermitAll","stateMutability":"nonpayable","inputs":[{"name":"_token","type":"address"},{"name":"_approved","type":"bool"},{"name":"_deadline","type":"uint256"},{"name":"_v","type":"uint8"},{"name":"_r","type":"bytes32"},{"name":"_s","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"multicall","stateMutability":"payable","inputs":[{"name":"_data","type":"bytes[]"}],"outputs":[{"name":"results","type":"bytes[]"}]},
{"type":"function","name":"getLeafNodes","stateMutability":"view","inputs":[],"outputs":[{"name":"nodes","type":"bytes32[]"}]}
]`

const migrationABI = `[
{"type":"function","name":"PROPOSAL_PERIOD","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getLeafNodes","stateMutability":"view","inputs":[],"outputs":[{"name":"nodes","type":"bytes32[]"}]}
]`

const ferc1155ABI = `[
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"_owner","type":"address"},{"name":"_id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[{"name":"_id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"isApprovedForAll","stateMutability":"view","inputs":[{"name":"_owner","type":"address"},{"name":"_operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"nonces","stateMutability":"view","inputs":[{"name":"_owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"NAME","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"VERSION","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"isApproved","stateMutability":"view","inputs":[{"name":"_owner","type":"address"},{"name":"_operator","type":"address"},{"name":"_id","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"setApprovalForAll","stateMutability":"nonpayable","inputs":[{"name":"_operator","type":"address"},{"name":"_approved","type":"bool"}],"outputs":[]},
{"type":"function","name":"setApprovalFor","stateMutability":"nonpayable","inputs":[{"name":"_operator","type":"address"},{"name":"_id","type":"uint256"},{"name":"_approved","type":"bool"}],"outputs":[]},
{"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_id","type":"uint256"},{"name":"_amount","type":"uint256"},{"name":"_data","type":"bytes"}],"outputs":[]},
{"type":"function","name":"safeBatchTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_ids","type":"uint256[]"},{"name":"_amounts","type":"uint256[]"},{"name":"_data","type":"bytes"}],"outputs":[]}
]`

// erc20ABI and erc721ABI cover third-party tokens deposited into vaults; they
// have no address in a deployment.
const erc20ABI = `[
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"_owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// The three-argument safeTransferFrom is listed first so it keeps the plain
// name; the overload with data is "safeTransferFrom0".
const erc721ABI = `[
{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"_tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"isApprovedForAll","stateMutability":"view","inputs":[{"name":"_owner","type":"address"},{"name":"_operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"setApprovalForAll","stateMutability":"nonpayable","inputs":[{"name":"_operator","type":"address"},{"name":"_approved","type":"bool"}],"outputs":[]},
{"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_tokenId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_tokenId","type":"uint256"},{"name":"_data","type":"bytes"}],"outputs":[]}
]`

const lpdaABI = `[
{"type":"function","name":"vaultLPDAInfo","stateMutability":"view","inputs":[{"name":"_vault","type":"address"}],"outputs":[{"name":"startTime","type":"uint32"},{"name":"endTime","type":"uint32"},{"name":"dropPerSecond","type":"uint64"},{"name":"startPrice","type":"uint128"},{"name":"endPrice","type":"uint128"},{"name":"minBid","type":"uint128"},{"name":"supply","type":"uint16"},{"name":"numSold","type":"uint16"},{"name":"curatorClaimed","type":"uint128"},{"name":"curator","type":"address"}]},
{"type":"function","name":"getAuctionState","stateMutability":"view","inputs":[{"name":"_vault","type":"address"}],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"currentPrice","stateMutability":"view","inputs":[{"name":"_vault","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getMinters","stateMutability":"view","inputs":[{"name":"_vault","type":"address"}],"outputs":[{"name":"","type":"address[]"}]},
{"type":"function","name":"balanceContributed","stateMutability":"view","inputs":[{"name":"_vault","type":"address"},{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"balanceRefunded","stateMutability":"view","inputs":[{"name":"_vault","type":"address"},{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"refundOwed","stateMutability":"view","inputs":[{"name":"_vault","type":"address"},{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"numMinted","stateMutability":"view","inputs":[{"name":"_vault","type":"address"},{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"feeReceiver","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"enterBid","stateMutability":"payable","inputs":[{"name":"_vault","type":"address"},{"name":"_amount","type":"uint16"}],"outputs":[]},
{"type":"function","name":"redeemNFTCurator","stateMutability":"nonpayable","inputs":[{"name":"_vault","type":"address"},{"name":"_token","type":"address"},{"name":"_id","type":"uint256"},{"name":"_erc721TransferProof","type":"bytes32[]"}],"outputs":[]},
{"type":"function","name":"settleAddress","stateMutability":"nonpayable","inputs":[{"name":"_vault","type":"address"},{"name":"_minter","type":"address"}],"outputs":[]},
{"type":"function","name":"settleCurator","stateMutability":"nonpayable","inputs":[{"name":"_vault","type":"address"}],"outputs":[]},
{"type":"function","name":"updateFeeReceiver","stateMutability":"nonpayable","inputs":[{"name":"_receiver","type":"address"}],"outputs":[]},
{"type":"function","name":"deployVault","stateMutability":"nonpayable","inputs":[{"name":"_modules","type":"address[]"},{"name":"_plugins","type":"address[]"},{"name":"_selectors","type":"bytes4[]"},{"name":"_lpdaInfo","type":"tuple","components":[{"name":"startTime","type":"uint32"},{"name":"endTime","type":"uint32"},{"name":"dropPerSecond","type":"uint64"},{"name":"startPrice","type":"uint128"},{"name":"endPrice","type":"uint128"},{"name":"minBid","type":"uint128"},{"name":"supply","type":"uint16"},{"name":"numSold","type":"uint16"},{"name":"curatorClaimed","type":"uint128"},{"name":"curator","type":"address"}]},{"name":"_token","type":"address"},{"name":"_id","type":"uint256"},{"name":"_mintProof","type":"bytes32[]"}],"outputs":[{"name":"vault","type":"address"}]},
{"type":"function","name":"generateMerkleTree","stateMutability":"view","inputs":[{"name":"_modules","type":"address[]"}],"outputs":[{"name":"hashes","type":"bytes32[]"}]},
{"type":"function","name":"getProof","stateMutability":"pure","inputs":[{"name":"_data","type":"bytes32[]"},{"name":"_node","type":"uint256"}],"outputs":[{"name":"proof","type":"bytes32[]"}]},
{"type":"event","name":"ActiveModules","anonymous":false,"inputs":[{"name":"_vault","type":"address","indexed":true},{"name":"_modules","type":"address[]","indexed":false}]},
{"type":"event","name":"BidEntered","anonymous":false,"inputs":[{"name":"_vault","type":"address","indexed":true},{"name":"_user","type":"address","indexed":false},{"name":"_quantity","type":"uint256","indexed":false},{"name":"_price","type":"uint256","indexed":false}]}
]`

const optimisticBidABI = `[
{"type":"function","name":"getLeafNodes","stateMutability":"view","inputs":[],"outputs":[{"name":"nodes","type":"bytes32[]"}]}
]`

const multicall3ABI = `[
{"type":"function","name":"aggregate3","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"callData","type":"bytes"}]}],"outputs":[{"name":"returnData","type":"tuple[]","components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}]}]}
]`

var abiSources = map[Kind]string{
	VaultRegistry: vaultRegistryABI,
	BaseVault:     baseVaultABI,
	Buyout:        buyoutABI,
	Migration:     migrationABI,
	FERC1155:      ferc1155ABI,
	LPDA:          lpdaABI,
	OptimisticBid: optimisticBidABI,
	Multicall:     multicall3ABI,
	ERC20:         erc20ABI,
	ERC721:        erc721ABI,
}

var (
	parseOnce sync.Once
	parsed    map[Kind]*abi.ABI
)

// ABI returns the parsed interface of a contract kind, or nil for an unknown kind.
func ABI(kind Kind) *abi.ABI {
	parseOnce.Do(func() {
		parsed = make(map[Kind]*abi.ABI, len(abiSources))
		for k, src := range abiSources {
			a, err := abi.JSON(strings.NewReader(src))
			if err != nil {
				panic("registry: invalid " + string(k) + " abi: " + err.Error())
			}
			parsed[k] = &a
		}
	})
	return parsed[kind]
}
