package cli_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/internal/cli"
)

const (
	merchant  = "0x00000000000000000000000000000000000000a1"
	payer     = "0x00000000000000000000000000000000000000b2"
	recipient = "0x00000000000000000000000000000000000000c3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "paylink.yaml")
	if body == "" {
		body = "store_path: " + filepath.Join(dir, "ledger.json") + "\nlog_level: error\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, config string, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmdForTest()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"--config", config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

type invoiceJSON struct {
	Invoice struct {
		ID    string `json:"invoice_id"`
		Paid  bool   `json:"paid"`
		Payer string `json:"payer"`
	} `json:"invoice"`
	Receipt struct {
		Mode string `json:"mode"`
	} `json:"receipt"`
}

func createInvoice(t *testing.T, config string, args ...string) invoiceJSON {
	t.Helper()
	out, err := run(t, config, append([]string{"invoice", "create", "--as", merchant, "--json"}, args...)...)
	require.NoError(t, err)
	var res invoiceJSON
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	return res
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, writeConfig(t, ""), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "paylink dev")
}

func TestModeCommand(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	out, err := run(t, missing, "mode")
	require.NoError(t, err)
	assert.Equal(t, "simulated\n", out)

	cfg := writeConfig(t, `contract_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
rpc_url: "http://127.0.0.1:8545"
private_key: "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
confirm_timeout: 30s
`)
	out, err = run(t, cfg, "mode")
	require.NoError(t, err)
	assert.Equal(t, "authoritative\n", out)
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg := writeConfig(t, "usdt_address: \"0xnope\"\n")
	_, err := run(t, cfg, "mode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usdtaddress")

	cfg = writeConfig(t, "contract_address: \"0x5FbDB2315678afecb367f032d93F642f64180aa3\"\n")
	_, err = run(t, cfg, "mode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_url is required")
}

func TestInvoiceLifecycle(t *testing.T) {
	cfg := writeConfig(t, "")

	created := createInvoice(t, cfg, "--amount", "100", "--token", "usdt", "--note", "order 42")
	assert.False(t, created.Invoice.Paid)
	assert.Equal(t, "simulated", created.Receipt.Mode)
	id := created.Invoice.ID
	require.NotEmpty(t, id)

	out, err := run(t, cfg, "invoice", "get", id)
	require.NoError(t, err)
	assert.Contains(t, out, "100.00 USDT")
	assert.Contains(t, out, "order 42")
	assert.Contains(t, out, "unpaid")

	out, err = run(t, cfg, "invoice", "pay", id, "--as", payer, "--json")
	require.NoError(t, err)
	var paid invoiceJSON
	require.NoError(t, json.Unmarshal([]byte(out), &paid))
	assert.True(t, paid.Invoice.Paid)

	_, err = run(t, cfg, "invoice", "pay", id, "--as", payer)
	assert.ErrorIs(t, err, paylink.ErrInvoiceAlreadyPaid)

	out, err = run(t, cfg, "balance", "--as", merchant)
	require.NoError(t, err)
	assert.Contains(t, out, "USDT   100.00")
	assert.Contains(t, out, "FDUSD  0.00")

	_, err = run(t, cfg, "withdraw", "--as", merchant, "--amount", "150", "--to", recipient)
	assert.ErrorIs(t, err, paylink.ErrInsufficientBalance)

	out, err = run(t, cfg, "withdraw", "--as", merchant, "--amount", "40", "--to", recipient)
	require.NoError(t, err)
	assert.Contains(t, out, "Withdrew  40.00 USDT")

	out, err = run(t, cfg, "balance", "--as", merchant)
	require.NoError(t, err)
	assert.Contains(t, out, "USDT   60.00")

	out, err = run(t, cfg, "invoice", "list", "--as", merchant, "--status", "paid")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = run(t, cfg, "invoice", "list", "--as", merchant, "--status", "unpaid")
	require.NoError(t, err)
	assert.Contains(t, out, "No invoices.")

	out, err = run(t, cfg, "activity", "--as", merchant)
	require.NoError(t, err)
	assert.Contains(t, out, "withdrawal")
	assert.Contains(t, out, "invoice_paid")
	assert.Contains(t, out, "invoice_created")

	out, err = run(t, cfg, "sales", "--as", merchant)
	require.NoError(t, err)
	assert.Contains(t, out, "USDT   100.00")
}

func TestInvoiceGetUnknown(t *testing.T) {
	cfg := writeConfig(t, "")
	_, err := run(t, cfg, "invoice", "get", "0x"+string(bytes.Repeat([]byte("ab"), 32)))
	assert.ErrorIs(t, err, paylink.ErrInvoiceNotFound)
}

func TestCallerRequiredInSimulatedMode(t *testing.T) {
	cfg := writeConfig(t, "")
	_, err := run(t, cfg, "invoice", "create", "--amount", "1")
	assert.ErrorIs(t, err, paylink.ErrInvalidAddress)
}

func TestCreateRejectsBadInput(t *testing.T) {
	cfg := writeConfig(t, "")

	_, err := run(t, cfg, "invoice", "create", "--as", merchant, "--amount", "0")
	assert.ErrorIs(t, err, paylink.ErrInvalidAmount)

	_, err = run(t, cfg, "invoice", "create", "--as", merchant, "--amount", "1", "--token", "DAI")
	assert.ErrorIs(t, err, paylink.ErrInvalidToken)

	_, err = run(t, cfg, "withdraw", "--as", merchant, "--amount", "1", "--to", "0x0000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, paylink.ErrInvalidRecipient)
}

func TestExpiredInvoiceCannotBePaid(t *testing.T) {
	cfg := writeConfig(t, "")
	created := createInvoice(t, cfg, "--amount", "5", "--expires-in", "1s")

	time.Sleep(2100 * time.Millisecond)

	_, err := run(t, cfg, "invoice", "pay", created.Invoice.ID, "--as", payer)
	assert.ErrorIs(t, err, paylink.ErrInvoiceExpired)

	out, err := run(t, cfg, "balance", "--as", merchant)
	require.NoError(t, err)
	assert.Contains(t, out, "USDT   0.00")
}

func TestListRejectsNegativePaging(t *testing.T) {
	cfg := writeConfig(t, "")

	for _, args := range [][]string{
		{"invoice", "list", "--as", merchant, "--offset=-1"},
		{"invoice", "list", "--as", merchant, "--limit=-5"},
		{"activity", "--as", merchant, "--limit=-1"},
	} {
		_, err := run(t, cfg, args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "must not be negative")
	}
}
