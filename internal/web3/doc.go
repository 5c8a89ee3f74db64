// Package web3 holds chain metadata and the read-only RPC contract shared by
// the wallet orchestration layers. Chain definitions come from built-in
// defaults overlaid by configs/chains.yaml; each definition resolves to a
// ChainConfig carrying the RPC endpoint, reference token and Safe protocol
// deployment addresses for one network id.
package web3
