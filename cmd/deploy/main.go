// Command deploy pushes the donation contracts on chain in their
// dependency order (registry, vault, disbursement) and wires the vault
// address into the registry.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Van103/fun-charity-sub001/internal/chain"
	"github.com/Van103/fun-charity-sub001/internal/config"
	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

func main() {
	artifactsPath := flag.String("artifacts", "contracts.yaml", "YAML file with registry/vault/disbursement bytecode")
	rpcURL := flag.String("rpc", os.Getenv("CHAIN_RPC_URL"), "JSON-RPC endpoint")
	chainID := flag.Uint64("chain-id", 0, "expected chain id; 0 skips the check")
	from := flag.String("from", os.Getenv("DEPLOYER_ADDRESS"), "deployer account address")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deployment deadline")
	flag.Parse()

	if *rpcURL == "" || *from == "" {
		flag.Usage()
		os.Exit(1)
	}

	arts, err := config.LoadArtifactsFromPath(*artifactsPath)
	if err != nil {
		log.Fatalf("load artifacts: %v", err)
	}

	client, err := chain.NewClient(chain.Config{RPCURL: *rpcURL, ChainID: *chainID})
	if err != nil {
		log.Fatalf("chain client: %v", err)
	}
	backend, err := chain.NewRPCBackend(client, *from)
	if err != nil {
		log.Fatalf("rpc backend: %v", err)
	}
	deployer, err := chain.NewDeployer(backend, logger.NewDefault("deploy"))
	if err != nil {
		log.Fatalf("deployer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := client.VerifyChainID(ctx); err != nil {
		log.Fatalf("chain id check: %v", err)
	}

	addrs, err := deployer.Run(ctx, arts)
	if err != nil {
		log.Fatalf("deploy: %v", err)
	}

	fmt.Printf("registry:     %s\n", addrs.Registry)
	fmt.Printf("vault:        %s\n", addrs.Vault)
	fmt.Printf("disbursement: %s\n", addrs.Disbursement)
}
