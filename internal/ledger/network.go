package ledger

import (
	"fmt"
	"strings"
)

// Network selects which ledger deployment the service talks to
type Network string

const (
	Testnet    Network = "testnet"
	Mainnet    Network = "mainnet"
	Previewnet Network = "previewnet"
	// Local runs against the in-process ledger; nothing leaves the process.
	Local Network = "local"
)

const (
	// TinybarsPerHbar converts fee ceilings expressed in hbar
	TinybarsPerHbar = 100_000_000

	// MaxUnitMetadataBytes is the ledger's per-unit metadata limit
	MaxUnitMetadataBytes = 100

	DefaultExplorerURL = "https://hashscan.io"
)

// ParseNetwork validates a network name
func ParseNetwork(name string) (Network, error) {
	switch n := Network(strings.ToLower(strings.TrimSpace(name))); n {
	case Testnet, Mainnet, Previewnet, Local:
		return n, nil
	case "":
		return Testnet, nil
	default:
		return "", fmt.Errorf("unknown network %q", name)
	}
}

// MirrorNodeURL returns the public mirror node for the network
func (n Network) MirrorNodeURL() string {
	switch n {
	case Mainnet:
		return "https://mainnet-public.mirrornode.hedera.com"
	case Previewnet:
		return "https://previewnet.mirrornode.hedera.com"
	case Local:
		return ""
	default:
		return "https://testnet.mirrornode.hedera.com"
	}
}

func (n Network) String() string { return string(n) }
