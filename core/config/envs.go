package config

import "math/big"

// ChainEnv names a supported network. The CLI uses it for display and for
// picking the right block explorer.
type ChainEnv string

const (
	EthereumEnv    ChainEnv = "ethereum"
	SepoliaEnv     ChainEnv = "sepolia"
	BaseEnv        ChainEnv = "base"
	BaseSepoliaEnv ChainEnv = "base-sepolia"
	UnknownEnv     ChainEnv = "unknown"
)

var chainEnvs = map[int64]ChainEnv{
	1:        EthereumEnv,
	11155111: SepoliaEnv,
	8453:     BaseEnv,
	84532:    BaseSepoliaEnv,
}

var explorerURLs = map[ChainEnv]string{
	EthereumEnv:    "https://etherscan.io",
	SepoliaEnv:     "https://sepolia.etherscan.io",
	BaseEnv:        "https://basescan.org",
	BaseSepoliaEnv: "https://sepolia.basescan.org",
}

// EnvForChainID maps a chain id to its environment name.
func EnvForChainID(chainID *big.Int) ChainEnv {
	if chainID == nil {
		return UnknownEnv
	}
	if env, ok := chainEnvs[chainID.Int64()]; ok {
		return env
	}
	return UnknownEnv
}

// IsMainnet reports whether the chain is a production network.
func (e ChainEnv) IsMainnet() bool {
	return e == EthereumEnv || e == BaseEnv
}

// ExplorerURL returns the block explorer base URL for the environment, or
// empty when we do not know one.
func (e ChainEnv) ExplorerURL() string {
	return explorerURLs[e]
}
