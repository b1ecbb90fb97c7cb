package registry

import "github.com/ethereum/go-ethereum/common"

const (
	ChainRinkeby uint64 = 4
	ChainGoerli  uint64 = 5
)

// DefaultDeployments returns the protocol deployments shipped with the SDK.
// The result is a fresh copy the caller may extend.
func DefaultDeployments() map[uint64][]Deployment {
	return map[uint64][]Deployment{
		ChainRinkeby: {
			{
				Name:    "buyout",
				Modules: []string{"BaseVault", "Buyout", "Migration"},
				Contracts: map[Kind]common.Address{
					BaseVault:     common.HexToAddress("0xec194Dee666725E512DBe2bf40306C7C9BCD4651"),
					Buyout:        common.HexToAddress("0x7003c79786f5Af5079699BA77DE9CB04cc569fD4"),
					FERC1155:      common.HexToAddress("0x88a8c1e700D51746DE0d3BD8CA0aEF1912628656"),
					Migration:     common.HexToAddress("0x6bb11960324d41d77Aaaf8C8c93c956A1F2345eA"),
					VaultRegistry: common.HexToAddress("0x2580E23D6Bc9E23F5EF55563b1e3E5AFe2711689"),
				},
			},
		},
		ChainGoerli: {
			{
				Name:    "art-enjoyer",
				Modules: []string{"LPDA", "OptimisticBid"},
				Contracts: map[Kind]common.Address{
					FERC1155:      common.HexToAddress("0x28d1c125CfeCAC5682F1DAf76d7730219e6a02e8"),
					LPDA:          common.HexToAddress("0xC2A1d152f8F539E2E40AC5AB2d23608efc2cb2DC"),
					OptimisticBid: common.HexToAddress("0x9a6D7543B0eddE7031Db072fbfC28416531993F7"),
					VaultRegistry: common.HexToAddress("0x69a6C6876b18A0CDf48DE09E4EC71B3e08277d6b"),
				},
			},
		},
	}
}

// Default returns a registry over DefaultDeployments.
func Default() *Registry {
	r, err := New(DefaultDeployments())
	if err != nil {
		panic(err)
	}
	return r
}
