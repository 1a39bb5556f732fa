package bitcoind

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network selects the chain the backend runs on.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkSignet  Network = "signet"
	NetworkRegtest Network = "regtest"
)

func ParseNetwork(value string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "main", "mainnet", "bitcoin":
		return NetworkMainnet, nil
	case "test", "testnet", "testnet3":
		return NetworkTestnet, nil
	case "signet":
		return NetworkSignet, nil
	case "regtest":
		return NetworkRegtest, nil
	default:
		return "", fmt.Errorf("unknown network %q", value)
	}
}

// Params returns the chain parameters used to decode addresses.
func (n Network) Params() *chaincfg.Params {
	switch n {
	case NetworkTestnet:
		return &chaincfg.TestNet3Params
	case NetworkSignet:
		return &chaincfg.SigNetParams
	case NetworkRegtest:
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// DefaultRPCPort is bitcoind's default JSON-RPC port for the network.
func (n Network) DefaultRPCPort() string {
	switch n {
	case NetworkTestnet:
		return "18332"
	case NetworkSignet:
		return "38332"
	case NetworkRegtest:
		return "18443"
	default:
		return "8332"
	}
}

// section is the bitcoin.conf section header for the network.
func (n Network) section() string {
	switch n {
	case NetworkTestnet:
		return "test"
	case NetworkSignet:
		return "signet"
	case NetworkRegtest:
		return "regtest"
	default:
		return "main"
	}
}

// ConnInfo is what the fee oracle needs to reach bitcoind.
type ConnInfo struct {
	Host    string
	User    string
	Pass    string
	Network Network
}

// ReadConf parses a bitcoin.conf file.
func ReadConf(path string) (ConnInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return ConnInfo{}, err
	}
	defer file.Close()

	info, err := ParseConf(file)
	if err != nil {
		return ConnInfo{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return info, nil
}

// ParseConf reads rpcuser, rpcpassword, rpcconnect and rpcport from a
// bitcoin.conf stream. The network is taken from the regtest/testnet/signet
// switches; keys in the matching [section] override global ones.
func ParseConf(reader io.Reader) (ConnInfo, error) {
	global := map[string]string{}
	sections := map[string]map[string]string{}
	current := global

	scanner := bufio.NewScanner(reader)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if index := strings.Index(line, "#"); index >= 0 {
			line = strings.TrimSpace(line[:index])
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.TrimSpace(line[1 : len(line)-1])
			if sections[name] == nil {
				sections[name] = map[string]string{}
			}
			current = sections[name]
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return ConnInfo{}, fmt.Errorf("line %d: expected key=value", lineNo)
		}
		current[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return ConnInfo{}, err
	}

	network := NetworkMainnet
	switch {
	case global["regtest"] == "1":
		network = NetworkRegtest
	case global["testnet"] == "1":
		network = NetworkTestnet
	case global["signet"] == "1":
		network = NetworkSignet
	}

	lookup := func(key string) string {
		if value, ok := sections[network.section()][key]; ok {
			return value
		}
		return global[key]
	}

	host := lookup("rpcconnect")
	if host == "" {
		host = "127.0.0.1"
	}
	port := lookup("rpcport")
	if port == "" {
		port = network.DefaultRPCPort()
	}

	info := ConnInfo{
		Host:    net.JoinHostPort(host, port),
		User:    lookup("rpcuser"),
		Pass:    lookup("rpcpassword"),
		Network: network,
	}
	if info.User == "" || info.Pass == "" {
		return ConnInfo{}, fmt.Errorf("rpcuser and rpcpassword are required")
	}
	return info, nil
}
