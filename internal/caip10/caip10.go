// Package caip10 renders chain-qualified CAIP-10 identifiers for on-chain
// addresses. Downstream consumers parse these strings, so the format is part
// of the output contract and must stay bit-stable.
package caip10

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultChainID is used when no chain metadata was loaded for the run.
const DefaultChainID = "1"

// ZeroAddress anchors pool and application identifiers that have no contract
// of their own.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Normalize converts a raw address into eip155:<chainId>:<address> form.
// Well-formed hex addresses are EIP-55 checksummed; anything else passes
// through verbatim so upstream data errors stay visible in the output.
// An empty address yields an empty identifier.
func Normalize(chainID, address string) string {
	if address == "" {
		return ""
	}
	if chainID == "" {
		chainID = DefaultChainID
	}
	if common.IsHexAddress(address) {
		address = common.HexToAddress(address).Hex()
	}
	return fmt.Sprintf("eip155:%s:%s", chainID, address)
}

// PoolID builds the grant-pool identifier for an epoch.
func PoolID(chainID string, epoch int) string {
	return fmt.Sprintf("%s?contractId=%d", Normalize(chainID, ZeroAddress), epoch)
}

// ApplicationID builds the identifier for the n-th application within a pool.
func ApplicationID(chainID string, seq int) string {
	return fmt.Sprintf("%s?proposalId=%d", Normalize(chainID, ZeroAddress), seq)
}

// ProjectID builds the identifier for a project address. Octant projects have
// a single proposal per address, hence the fixed suffix.
func ProjectID(chainID, address string) string {
	return fmt.Sprintf("%s?proposalId=1", Normalize(chainID, address))
}
