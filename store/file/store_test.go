package file

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/id"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

var (
	merchant  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	payer     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	usdtKey   = balance.Key{Merchant: merchant, Token: token.USDT}
)

func newInvoice(n byte, amount string) *invoice.Invoice {
	return &invoice.Invoice{
		ID:        common.BytesToHash([]byte{n}),
		Merchant:  merchant,
		Token:     token.USDT,
		Amount:    types.MustParseAmount(amount),
		Note:      "order",
		CreatedAt: 1000,
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	inv := newInvoice(1, "100")
	if err := s.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := s.SettleInvoice(ctx, invoice.Settlement{InvoiceID: inv.ID, Payer: payer, PaidAt: 1001}); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	w := &balance.Withdrawal{
		ID:        id.NewWithdrawalID(),
		Merchant:  merchant,
		Token:     token.USDT,
		Amount:    types.MustParseAmount("30"),
		Recipient: recipient,
		CreatedAt: 1002,
	}
	if err := s.Withdraw(ctx, w); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, err := reopened.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Paid || got.Payer != payer || got.PaidAt != 1001 {
		t.Errorf("got %+v, want paid by %s at 1001", got, payer.Hex())
	}
	bal, err := reopened.GetBalance(ctx, usdtKey)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if !bal.Equal(types.MustParseAmount("70")) {
		t.Errorf("got balance %s, want 70", bal)
	}
	ws, err := reopened.ListWithdrawals(ctx, merchant, balance.ListOpts{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(ws) != 1 || ws[0].ID.String() != w.ID.String() {
		t.Errorf("got %d withdrawals, want the one recorded", len(ws))
	}
}

func TestFailedWriteRollsBack(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	inv := newInvoice(1, "100")
	if err := s.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	diskFull := errors.New("disk full")
	s.write = func(string, []byte) error { return diskFull }

	_, err = s.SettleInvoice(ctx, invoice.Settlement{InvoiceID: inv.ID, Payer: payer, PaidAt: 1001})
	if !errors.Is(err, diskFull) {
		t.Fatalf("got %v, want write error", err)
	}
	got, err := s.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Paid {
		t.Error("invoice stayed paid after failed persist")
	}
	bal, _ := s.GetBalance(ctx, usdtKey)
	if !bal.IsZero() {
		t.Errorf("got balance %s, want 0 after rollback", bal)
	}

	if err := s.CreateInvoice(ctx, newInvoice(2, "5")); err == nil {
		t.Fatal("expected create to fail while writes fail")
	}
	if _, err := s.GetInvoice(ctx, common.BytesToHash([]byte{2})); !errors.Is(err, paylink.ErrInvoiceNotFound) {
		t.Errorf("got %v, want rolled-back invoice to be absent", err)
	}
}

func TestRejectedMutationSkipsWrite(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	writes := 0
	s.write = func(path string, data []byte) error {
		writes++
		return writeAtomic(path, data)
	}

	err = s.Withdraw(ctx, &balance.Withdrawal{
		ID:        id.NewWithdrawalID(),
		Merchant:  merchant,
		Token:     token.USDT,
		Amount:    types.Units(1),
		Recipient: recipient,
	})
	if !errors.Is(err, paylink.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if writes != 0 {
		t.Errorf("got %d writes, want 0", writes)
	}
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := writeAtomic(path, []byte("{not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Error("expected error for corrupt snapshot")
	}
}

func TestSharedPathSettlesOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")

	a, err := Open(path)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	b, err := Open(path)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer a.Close()
	defer b.Close()

	inv := newInvoice(1, "100")
	if err := a.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	pay := invoice.Settlement{InvoiceID: inv.ID, Payer: payer, PaidAt: 1001}
	if _, err := a.SettleInvoice(ctx, pay); err != nil {
		t.Fatalf("first settle failed: %v", err)
	}
	if _, err := b.SettleInvoice(ctx, pay); !errors.Is(err, paylink.ErrInvoiceAlreadyPaid) {
		t.Fatalf("got %v, want ErrInvoiceAlreadyPaid from the second handle", err)
	}

	for _, s := range []*Store{a, b} {
		bal, err := s.GetBalance(ctx, usdtKey)
		if err != nil {
			t.Fatalf("balance failed: %v", err)
		}
		if !bal.Equal(types.MustParseAmount("100")) {
			t.Errorf("got balance %s, want 100", bal)
		}
	}
}

func TestSharedPathKeepsEveryRecord(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")

	a, err := Open(path)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	b, err := Open(path)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}

	var wg sync.WaitGroup
	for n := byte(1); n <= 20; n++ {
		s := a
		if n%2 == 0 {
			s = b
		}
		wg.Add(1)
		go func(s *Store, n byte) {
			defer wg.Done()
			if err := s.CreateInvoice(ctx, newInvoice(n, "1")); err != nil {
				t.Errorf("create %d failed: %v", n, err)
			}
		}(s, n)
	}
	wg.Wait()
	a.Close()
	b.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	for n := byte(1); n <= 20; n++ {
		if _, err := reopened.GetInvoice(ctx, common.BytesToHash([]byte{n})); err != nil {
			t.Errorf("invoice %d: %v", n, err)
		}
	}
}

func TestReadSeesOtherHandlesWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")

	a, err := Open(path)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	b, err := Open(path)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}

	inv := newInvoice(7, "5")
	if err := a.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	got, err := b.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get from other handle: %v", err)
	}
	if !got.Amount.Equal(inv.Amount) {
		t.Errorf("got amount %s, want %s", got.Amount, inv.Amount)
	}
	list, err := b.ListInvoices(ctx, merchant, invoice.ListOpts{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d invoices, want 1", len(list))
	}
}
