// Package solana is a minimal Solana JSON-RPC client for block time lookups.
package solana

import "context"

// DefaultEndpoint is the public mainnet RPC endpoint.
const DefaultEndpoint = "https://api.mainnet-beta.solana.com"

// RPCClient defines the Solana RPC calls used by the service.
type RPCClient interface {
	// GetBlockTime returns the estimated production time of a slot as Unix
	// seconds. nil means the node has no time for the slot.
	GetBlockTime(ctx context.Context, slot int64) (*int64, error)
}
