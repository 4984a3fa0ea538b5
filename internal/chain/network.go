package chain

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"
)

//go:embed networks.yaml
var networksYAML []byte

// DefaultNetwork is the chain the subscription contract lives on.
const DefaultNetwork = "gnosis-mainnet"

type Currency struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
}

// Network describes an EVM chain the way wallet_addEthereumChain expects it.
type Network struct {
	Name         string   `yaml:"name"`
	DisplayName  string   `yaml:"display_name"`
	ChainID      uint64   `yaml:"chain_id"`
	Currency     Currency `yaml:"currency"`
	RPCURLs      []string `yaml:"rpc_urls"`
	ExplorerURLs []string `yaml:"explorer_urls"`
}

type networkFile struct {
	Networks []Network `yaml:"networks"`
}

// HexChainID returns the 0x-prefixed chain id ("0x64" for Gnosis).
func (n Network) HexChainID() string { return hexutil.EncodeUint64(n.ChainID) }

// RPC returns the primary RPC endpoint or "".
func (n Network) RPC() string {
	if len(n.RPCURLs) == 0 {
		return ""
	}
	return n.RPCURLs[0]
}

// WithRPC returns a copy whose primary RPC endpoint is url.
func (n Network) WithRPC(url string) Network {
	url = strings.TrimSpace(url)
	if url == "" {
		return n
	}
	out := n
	out.RPCURLs = append([]string{url}, without(n.RPCURLs, url)...)
	return out
}

// AddressURL links an address on the network's block explorer.
// Networks without an explorer return the bare address.
func (n Network) AddressURL(addr string) string {
	if len(n.ExplorerURLs) == 0 {
		return addr
	}
	return strings.TrimRight(n.ExplorerURLs[0], "/") + "/address/" + addr
}

// TxURL links a transaction on the network's block explorer.
func (n Network) TxURL(hash string) string {
	if len(n.ExplorerURLs) == 0 {
		return hash
	}
	return strings.TrimRight(n.ExplorerURLs[0], "/") + "/tx/" + hash
}

// Networks parses the embedded presets.
func Networks() ([]Network, error) {
	return ParseNetworks(networksYAML)
}

// ParseNetworks decodes a networks YAML document.
func ParseNetworks(b []byte) ([]Network, error) {
	var f networkFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse networks: %w", err)
	}
	for i, n := range f.Networks {
		if n.Name == "" || n.ChainID == 0 {
			return nil, fmt.Errorf("network #%d: name and chain_id are required", i)
		}
		if n.Currency.Decimals == 0 {
			f.Networks[i].Currency.Decimals = 18
		}
	}
	return f.Networks, nil
}

// Lookup finds a preset by name, e.g. "gnosis-mainnet".
func Lookup(name string) (Network, error) {
	nets, err := Networks()
	if err != nil {
		return Network{}, err
	}
	name = strings.ToLower(strings.TrimSpace(name))
	for _, n := range nets {
		if n.Name == name {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("unknown network %q", name)
}

// ByChainID finds a preset by chain id.
func ByChainID(id uint64) (Network, bool) {
	nets, err := Networks()
	if err != nil {
		return Network{}, false
	}
	for _, n := range nets {
		if n.ChainID == id {
			return n, true
		}
	}
	return Network{}, false
}

func without(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, x := range list {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}
