package chain

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const (
	registryAddr = "0x1000000000000000000000000000000000000001"
	vaultAddr    = "0x1000000000000000000000000000000000000002"
	disburseAddr = "0x1000000000000000000000000000000000000003"
)

// scriptedBackend returns pre-assigned addresses in deployment order and
// records every submission.
type scriptedBackend struct {
	addresses []string
	deploys   []string
	invokes   [][2]string
	fail      error
}

func (b *scriptedBackend) DeployContract(_ context.Context, bytecode string) (string, error) {
	if b.fail != nil {
		return "", b.fail
	}
	b.deploys = append(b.deploys, bytecode)
	addr := b.addresses[0]
	b.addresses = b.addresses[1:]
	return addr, nil
}

func (b *scriptedBackend) Invoke(_ context.Context, to, data string) error {
	if b.fail != nil {
		return b.fail
	}
	b.invokes = append(b.invokes, [2]string{to, data})
	return nil
}

func testArtifacts() Artifacts {
	return Artifacts{
		Registry:     Artifact{Name: "DonationRegistry", Bytecode: "0x6001"},
		Vault:        Artifact{Name: "DonationVault", Bytecode: "0x6002"},
		Disbursement: Artifact{Name: "Disbursement", Bytecode: "0x6003"},
	}
}

func TestDeployer_RunOrdering(t *testing.T) {
	backend := &scriptedBackend{addresses: []string{registryAddr, vaultAddr, disburseAddr}}
	deployer, err := NewDeployer(backend, nil)
	if err != nil {
		t.Fatalf("new deployer: %v", err)
	}

	out, err := deployer.Run(context.Background(), testArtifacts())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Registry != registryAddr || out.Vault != vaultAddr || out.Disbursement != disburseAddr {
		t.Fatalf("unexpected addresses: %+v", out)
	}

	if len(backend.deploys) != 3 {
		t.Fatalf("expected 3 deployments, got %d", len(backend.deploys))
	}
	// Later deployments carry the earlier addresses as constructor args.
	if backend.deploys[0] != "0x6001" {
		t.Fatalf("registry deployed with args: %s", backend.deploys[0])
	}
	if !strings.HasSuffix(backend.deploys[1], padAddress(registryAddr)) {
		t.Fatalf("vault missing registry arg: %s", backend.deploys[1])
	}
	if !strings.HasSuffix(backend.deploys[2], padAddress(registryAddr)+padAddress(vaultAddr)) {
		t.Fatalf("disbursement missing args: %s", backend.deploys[2])
	}

	if len(backend.invokes) != 1 {
		t.Fatalf("expected 1 wiring call, got %d", len(backend.invokes))
	}
	wire := backend.invokes[0]
	if wire[0] != registryAddr {
		t.Fatalf("wiring sent to %s, want registry", wire[0])
	}
	if !strings.HasSuffix(wire[1], padAddress(vaultAddr)) {
		t.Fatalf("wiring payload missing vault address: %s", wire[1])
	}
}

func TestDeployer_VaultRequiresRegistry(t *testing.T) {
	backend := &scriptedBackend{addresses: []string{vaultAddr}}
	deployer, err := NewDeployer(backend, nil)
	if err != nil {
		t.Fatalf("new deployer: %v", err)
	}

	for _, registry := range []string{"", "0x0", "placeholder"} {
		if _, err := deployer.DeployVault(context.Background(), testArtifacts().Vault, registry); err == nil {
			t.Fatalf("vault deployed without registry address %q", registry)
		}
	}
	if len(backend.deploys) != 0 {
		t.Fatalf("precondition failure still submitted %d deployments", len(backend.deploys))
	}
}

func TestDeployer_DisbursementRequiresBoth(t *testing.T) {
	backend := &scriptedBackend{addresses: []string{disburseAddr}}
	deployer, _ := NewDeployer(backend, nil)
	art := testArtifacts().Disbursement

	if _, err := deployer.DeployDisbursement(context.Background(), art, "", vaultAddr); err == nil {
		t.Fatal("disbursement deployed without registry")
	}
	if _, err := deployer.DeployDisbursement(context.Background(), art, registryAddr, ""); err == nil {
		t.Fatal("disbursement deployed without vault")
	}
	if len(backend.deploys) != 0 {
		t.Fatalf("precondition failure still submitted %d deployments", len(backend.deploys))
	}
}

func TestDeployer_StopsAtFirstFailure(t *testing.T) {
	backend := &scriptedBackend{fail: errors.New("node unavailable")}
	deployer, _ := NewDeployer(backend, nil)

	out, err := deployer.Run(context.Background(), testArtifacts())
	if err == nil {
		t.Fatal("expected failure")
	}
	if out.Registry != "" || out.Vault != "" || out.Disbursement != "" {
		t.Fatalf("partial addresses reported after failure: %+v", out)
	}
}

func TestDeployer_EmptyBytecodeRejected(t *testing.T) {
	backend := &scriptedBackend{addresses: []string{registryAddr}}
	deployer, _ := NewDeployer(backend, nil)

	for _, code := range []string{"", "0x", "   "} {
		if _, err := deployer.DeployRegistry(context.Background(), Artifact{Name: "empty", Bytecode: code}); err == nil {
			t.Fatalf("deployed artifact with bytecode %q", code)
		}
	}
}

func TestSelector(t *testing.T) {
	sel := Selector("setVault(address)")
	if !strings.HasPrefix(sel, "0x") || len(sel) != 10 {
		t.Fatalf("unexpected selector %q", sel)
	}
	// Known vector: the ERC-20 transfer selector.
	if got := Selector("transfer(address,uint256)"); got != "0xa9059cbb" {
		t.Fatalf("Selector(transfer) = %s, want 0xa9059cbb", got)
	}
}
