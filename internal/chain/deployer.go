package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

// Backend abstracts transaction submission for the deployer so tests and
// alternative signers can stand in for a live node.
type Backend interface {
	// DeployContract submits creation bytecode and returns the address of
	// the created contract once mined.
	DeployContract(ctx context.Context, bytecode string) (string, error)
	// Invoke sends a state-changing call to a deployed contract.
	Invoke(ctx context.Context, to, data string) error
}

// Artifact is a compiled contract ready for deployment.
type Artifact struct {
	Name     string `yaml:"name"`
	Bytecode string `yaml:"bytecode"`
}

// Artifacts bundles the three platform contracts.
type Artifacts struct {
	Registry     Artifact `yaml:"registry"`
	Vault        Artifact `yaml:"vault"`
	Disbursement Artifact `yaml:"disbursement"`
}

// Addresses records where each contract landed.
type Addresses struct {
	Registry     string
	Vault        string
	Disbursement string
}

// Deployer deploys the donation contracts in their strict dependency order:
// registry first, then the vault referencing the registry, then the
// disbursement contract referencing both, and finally wires the vault into
// the registry. Each stage validates the addresses it depends on and fails
// fast rather than deploying against a placeholder.
type Deployer struct {
	backend Backend
	log     *logger.Logger
}

// NewDeployer creates a deployer over the given backend.
func NewDeployer(backend Backend, log *logger.Logger) (*Deployer, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if log == nil {
		log = logger.NewDefault("deployer")
	}
	return &Deployer{backend: backend, log: log}, nil
}

// Run executes the full deployment sequence.
func (d *Deployer) Run(ctx context.Context, arts Artifacts) (Addresses, error) {
	var out Addresses

	registry, err := d.DeployRegistry(ctx, arts.Registry)
	if err != nil {
		return out, fmt.Errorf("deploy registry: %w", err)
	}
	out.Registry = registry

	vault, err := d.DeployVault(ctx, arts.Vault, registry)
	if err != nil {
		return out, fmt.Errorf("deploy vault: %w", err)
	}
	out.Vault = vault

	disbursement, err := d.DeployDisbursement(ctx, arts.Disbursement, registry, vault)
	if err != nil {
		return out, fmt.Errorf("deploy disbursement: %w", err)
	}
	out.Disbursement = disbursement

	if err := d.WireVault(ctx, registry, vault); err != nil {
		return out, fmt.Errorf("wire vault into registry: %w", err)
	}

	d.log.WithField("registry", out.Registry).
		WithField("vault", out.Vault).
		WithField("disbursement", out.Disbursement).
		Info("deployment complete")
	return out, nil
}

// DeployRegistry deploys the registry contract.
func (d *Deployer) DeployRegistry(ctx context.Context, art Artifact) (string, error) {
	return d.deploy(ctx, art, art.Bytecode)
}

// DeployVault deploys the vault contract with the registry address as its
// constructor argument. A missing or malformed registry address is a
// precondition violation.
func (d *Deployer) DeployVault(ctx context.Context, art Artifact, registry string) (string, error) {
	if !IsHexAddress(registry) {
		return "", fmt.Errorf("registry address required before vault deployment, got %q", registry)
	}
	return d.deploy(ctx, art, art.Bytecode+padAddress(registry))
}

// DeployDisbursement deploys the disbursement contract referencing the
// registry and the vault.
func (d *Deployer) DeployDisbursement(ctx context.Context, art Artifact, registry, vault string) (string, error) {
	if !IsHexAddress(registry) {
		return "", fmt.Errorf("registry address required before disbursement deployment, got %q", registry)
	}
	if !IsHexAddress(vault) {
		return "", fmt.Errorf("vault address required before disbursement deployment, got %q", vault)
	}
	return d.deploy(ctx, art, art.Bytecode+padAddress(registry)+padAddress(vault))
}

// WireVault registers the vault address on the registry.
func (d *Deployer) WireVault(ctx context.Context, registry, vault string) error {
	if !IsHexAddress(registry) || !IsHexAddress(vault) {
		return fmt.Errorf("registry and vault addresses required for wiring")
	}
	data := Selector("setVault(address)") + padAddress(vault)
	return d.backend.Invoke(ctx, registry, data)
}

func (d *Deployer) deploy(ctx context.Context, art Artifact, payload string) (string, error) {
	bytecode := strings.TrimSpace(art.Bytecode)
	if bytecode == "" || bytecode == "0x" {
		return "", fmt.Errorf("artifact %s has no bytecode", art.Name)
	}

	start := time.Now()
	address, err := d.backend.DeployContract(ctx, payload)
	if err != nil {
		return "", err
	}
	if !IsHexAddress(address) {
		return "", fmt.Errorf("backend returned invalid address %q for %s", address, art.Name)
	}
	d.log.WithField("contract", art.Name).
		WithField("address", address).
		WithField("took", time.Since(start).String()).
		Info("contract deployed")
	return address, nil
}

// Selector computes the 4-byte ABI selector for a function signature.
func Selector(signature string) string {
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(signature))
	return fmt.Sprintf("0x%x", hash.Sum(nil)[:4])
}

// RPCBackend implements Backend over a Client using node-managed keys.
type RPCBackend struct {
	client *Client
	from   string
	poll   time.Duration
}

var _ Backend = (*RPCBackend)(nil)

// NewRPCBackend creates a backend submitting from the given node account.
func NewRPCBackend(client *Client, from string) (*RPCBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if !IsHexAddress(from) {
		return nil, fmt.Errorf("invalid deployer account %q", from)
	}
	return &RPCBackend{client: client, from: from, poll: time.Second}, nil
}

func (b *RPCBackend) DeployContract(ctx context.Context, bytecode string) (string, error) {
	hash, err := b.client.SendTransaction(ctx, TxArgs{From: b.from, Data: bytecode})
	if err != nil {
		return "", err
	}
	receipt, err := b.client.WaitMined(ctx, hash, b.poll)
	if err != nil {
		return "", err
	}
	if !receipt.Succeeded() {
		return "", fmt.Errorf("deployment transaction %s reverted", hash)
	}
	if receipt.ContractAddress == "" {
		return "", fmt.Errorf("transaction %s mined without a contract address", hash)
	}
	return receipt.ContractAddress, nil
}

func (b *RPCBackend) Invoke(ctx context.Context, to, data string) error {
	hash, err := b.client.SendTransaction(ctx, TxArgs{From: b.from, To: to, Data: data})
	if err != nil {
		return err
	}
	receipt, err := b.client.WaitMined(ctx, hash, b.poll)
	if err != nil {
		return err
	}
	if !receipt.Succeeded() {
		return fmt.Errorf("transaction %s reverted", hash)
	}
	return nil
}
