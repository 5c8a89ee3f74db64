package web3

// Canonical Safe v1.3.0 deployments (eip155 variant). The allowance module
// address is shared by every network that has the module deployed.
const (
	safeSingletonL2       = "0xfb1bffC9d739B8D520DaF37dF666da4C687191EA"
	safeProxyFactory      = "0xC22834581EbC8527d974F8a1c97E1bEA4EF910BC"
	safeFallbackHandler   = "0x017062a1dE2FE6b99BE3d9d37841FeD19F573804"
	safeMultiSendCallOnly = "0x40A2aCCbd92BCA938b02010E17A5b8929b49130D"
	safeAllowanceModule   = "0xCFbFaC74C26F8647cBDb8c5caf80BB5b32E43134"
)

var safeV130 = SafeAddresses{
	Singleton:         safeSingletonL2,
	ProxyFactory:      safeProxyFactory,
	FallbackHandler:   safeFallbackHandler,
	MultiSendCallOnly: safeMultiSendCallOnly,
	AllowanceModule:   safeAllowanceModule,
}

// DefaultChains returns the networks known without any configuration file.
func DefaultChains() map[string]ChainDefinition {
	return map[string]ChainDefinition{
		"base-mainnet": {
			Type:             "evm",
			Name:             "Base",
			ChainID:          8453,
			RPCURL:           "https://mainnet.base.org",
			ReferenceToken:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			TokenSymbol:      "USDC",
			SafeTxServiceURL: "https://safe-transaction-base.safe.global",
			Safe:             safeV130,
		},
		"base-sepolia": {
			Type:             "evm",
			Name:             "Base Sepolia",
			ChainID:          84532,
			RPCURL:           "https://sepolia.base.org",
			ReferenceToken:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			TokenSymbol:      "USDC",
			SafeTxServiceURL: "https://safe-transaction-base-sepolia.safe.global",
			Safe:             safeV130,
		},
		"ethereum-mainnet": {
			Type:             "evm",
			Name:             "Ethereum",
			ChainID:          1,
			ReferenceToken:   "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			TokenSymbol:      "USDC",
			SafeTxServiceURL: "https://safe-transaction-mainnet.safe.global",
			Safe:             safeV130,
		},
		"ethereum-sepolia": {
			Type:             "evm",
			Name:             "Sepolia",
			ChainID:          11155111,
			ReferenceToken:   "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
			TokenSymbol:      "USDC",
			SafeTxServiceURL: "https://safe-transaction-sepolia.safe.global",
			Safe:             safeV130,
		},
		"arbitrum-mainnet": {
			Type:             "evm",
			Name:             "Arbitrum One",
			ChainID:          42161,
			ReferenceToken:   "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
			TokenSymbol:      "USDC",
			SafeTxServiceURL: "https://safe-transaction-arbitrum.safe.global",
			Safe:             safeV130,
		},
		"optimism-mainnet": {
			Type:             "evm",
			Name:             "OP Mainnet",
			ChainID:          10,
			ReferenceToken:   "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
			TokenSymbol:      "USDC",
			SafeTxServiceURL: "https://safe-transaction-optimism.safe.global",
			Safe:             safeV130,
		},
		"polygon-mainnet": {
			Type:             "evm",
			Name:             "Polygon",
			ChainID:          137,
			ReferenceToken:   "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
			TokenSymbol:      "USDC",
			SafeTxServiceURL: "https://safe-transaction-polygon.safe.global",
			Safe:             safeV130,
		},
	}
}
