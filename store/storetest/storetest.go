// Package storetest holds the behavioral suite every store.Store backend
// must pass. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/id"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/store"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

// Opener returns a migrated, empty-or-shared store. Run closes it when the
// subtest ends.
type Opener func(t *testing.T) store.Store

// Run executes the suite. Records are keyed by a per-subtest nonce so the
// suite can run against a database that outlives the test.
func Run(t *testing.T, open Opener) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store, f fixture)
	}{
		{"CreateRejectsDuplicate", testCreateRejectsDuplicate},
		{"GetMissing", testGetMissing},
		{"SettleOnce", testSettleOnce},
		{"SettleExpiryBoundary", testSettleExpiryBoundary},
		{"SettleMissing", testSettleMissing},
		{"WithdrawNoOverdraw", testWithdrawNoOverdraw},
		{"WithdrawOtherToken", testWithdrawOtherToken},
		{"Conservation", testConservation},
		{"ConcurrentSettle", testConcurrentSettle},
		{"ConcurrentWithdraw", testConcurrentWithdraw},
		{"ListInvoices", testListInvoices},
		{"ListWithdrawals", testListWithdrawals},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s, newFixture(t.Name()))
		})
	}
}

type fixture struct {
	nonce    string
	merchant common.Address
	payer    common.Address
	to       common.Address
}

func newFixture(name string) fixture {
	nonce := name + "/" + id.NewWithdrawalID().String()
	return fixture{
		nonce:    nonce,
		merchant: common.BytesToAddress(crypto.Keccak256([]byte(nonce + "/merchant"))),
		payer:    common.BytesToAddress(crypto.Keccak256([]byte(nonce + "/payer"))),
		to:       common.BytesToAddress(crypto.Keccak256([]byte(nonce + "/recipient"))),
	}
}

func (f fixture) id(n int) invoice.ID {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s/invoice/%d", f.nonce, n)))
}

func (f fixture) invoice(n int, amount string, expiresAt int64) *invoice.Invoice {
	return &invoice.Invoice{
		ID:        f.id(n),
		Merchant:  f.merchant,
		Token:     token.USDT,
		Amount:    types.MustParseAmount(amount),
		Note:      fmt.Sprintf("invoice %d", n),
		CreatedAt: 1000 + int64(n),
		ExpiresAt: expiresAt,
	}
}

func (f fixture) key(sym token.Symbol) balance.Key {
	return balance.Key{Merchant: f.merchant, Token: sym}
}

func (f fixture) withdrawal(sym token.Symbol, amount string, createdAt int64) *balance.Withdrawal {
	return &balance.Withdrawal{
		ID:        id.NewWithdrawalID(),
		Merchant:  f.merchant,
		Token:     sym,
		Amount:    types.MustParseAmount(amount),
		Recipient: f.to,
		CreatedAt: createdAt,
	}
}

// funded creates and settles an invoice of amount for the fixture merchant.
func funded(t *testing.T, s store.Store, f fixture, n int, amount string) {
	t.Helper()
	ctx := context.Background()
	inv := f.invoice(n, amount, 0)
	if err := s.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := s.SettleInvoice(ctx, invoice.Settlement{InvoiceID: inv.ID, Payer: f.payer, PaidAt: 2000}); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
}

func wantBalance(t *testing.T, s store.Store, key balance.Key, want string) {
	t.Helper()
	got, err := s.GetBalance(context.Background(), key)
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if !got.Equal(types.MustParseAmount(want)) {
		t.Errorf("balance got %s, want %s", got, want)
	}
}

func testCreateRejectsDuplicate(t *testing.T, s store.Store, f fixture) {
	ctx := context.Background()
	if err := s.CreateInvoice(ctx, f.invoice(1, "10", 0)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := s.CreateInvoice(ctx, f.invoice(1, "99", 0)); !errors.Is(err, paylink.ErrInvoiceExists) {
		t.Fatalf("got %v, want ErrInvoiceExists", err)
	}

	got, err := s.GetInvoice(ctx, f.id(1))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Amount.Equal(types.MustParseAmount("10")) {
		t.Errorf("duplicate overwrote original: amount %s", got.Amount)
	}
	if got.Note != "invoice 1" || got.Merchant != f.merchant || got.Token != token.USDT {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

func testGetMissing(t *testing.T, s store.Store, f fixture) {
	if _, err := s.GetInvoice(context.Background(), f.id(404)); !errors.Is(err, paylink.ErrInvoiceNotFound) {
		t.Errorf("got %v, want ErrInvoiceNotFound", err)
	}
}

func testSettleOnce(t *testing.T, s store.Store, f fixture) {
	ctx := context.Background()
	inv := f.invoice(1, "100", 0)
	if err := s.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	st := invoice.Settlement{InvoiceID: inv.ID, Payer: f.payer, PaidAt: 2000}
	paid, err := s.SettleInvoice(ctx, st)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if !paid.Paid || paid.Payer != f.payer || paid.PaidAt != 2000 {
		t.Errorf("settled invoice missing paid fields: %+v", paid)
	}

	again := invoice.Settlement{InvoiceID: inv.ID, Payer: f.to, PaidAt: 3000}
	if _, err := s.SettleInvoice(ctx, again); !errors.Is(err, paylink.ErrInvoiceAlreadyPaid) {
		t.Fatalf("got %v, want ErrInvoiceAlreadyPaid", err)
	}

	got, err := s.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Payer != f.payer || got.PaidAt != 2000 {
		t.Errorf("second settle rewrote payer: %+v", got)
	}
	wantBalance(t, s, f.key(token.USDT), "100")
}

func testSettleExpiryBoundary(t *testing.T, s store.Store, f fixture) {
	ctx := context.Background()
	tests := []struct {
		n       int
		paidAt  int64
		wantErr error
	}{
		{1, 5000, nil},
		{2, 5001, paylink.ErrInvoiceExpired},
	}
	for _, tt := range tests {
		inv := f.invoice(tt.n, "7", 5000)
		if err := s.CreateInvoice(ctx, inv); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		_, err := s.SettleInvoice(ctx, invoice.Settlement{InvoiceID: inv.ID, Payer: f.payer, PaidAt: tt.paidAt})
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("paid at %d: got %v, want %v", tt.paidAt, err, tt.wantErr)
		}
	}

	got, err := s.GetInvoice(ctx, f.id(2))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Paid {
		t.Error("expired invoice was marked paid")
	}
	wantBalance(t, s, f.key(token.USDT), "7")
}

func testSettleMissing(t *testing.T, s store.Store, f fixture) {
	_, err := s.SettleInvoice(context.Background(), invoice.Settlement{InvoiceID: f.id(404), Payer: f.payer, PaidAt: 1})
	if !errors.Is(err, paylink.ErrInvoiceNotFound) {
		t.Errorf("got %v, want ErrInvoiceNotFound", err)
	}
	wantBalance(t, s, f.key(token.USDT), "0")
}

func testWithdrawNoOverdraw(t *testing.T, s store.Store, f fixture) {
	ctx := context.Background()
	funded(t, s, f, 1, "100")

	if err := s.Withdraw(ctx, f.withdrawal(token.USDT, "150", 3000)); !errors.Is(err, paylink.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	wantBalance(t, s, f.key(token.USDT), "100")

	if err := s.Withdraw(ctx, f.withdrawal(token.USDT, "100", 3001)); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	wantBalance(t, s, f.key(token.USDT), "0")

	if err := s.Withdraw(ctx, f.withdrawal(token.USDT, "0.000001", 3002)); !errors.Is(err, paylink.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance on an empty balance", err)
	}
}

func testWithdrawOtherToken(t *testing.T, s store.Store, f fixture) {
	funded(t, s, f, 1, "100")

	err := s.Withdraw(context.Background(), &balance.Withdrawal{
		ID: id.NewWithdrawalID(), Merchant: f.merchant, Token: token.FDUSD,
		Amount: types.Units(1), Recipient: f.to, CreatedAt: 3000,
	})
	if !errors.Is(err, paylink.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	wantBalance(t, s, f.key(token.USDT), "100")
	wantBalance(t, s, f.key(token.FDUSD), "0")
}

// testConservation checks balance == paid invoices - withdrawals after a mix
// of accepted and rejected operations.
func testConservation(t *testing.T, s store.Store, f fixture) {
	ctx := context.Background()
	funded(t, s, f, 1, "40")
	funded(t, s, f, 2, "2.5")
	if err := s.CreateInvoice(ctx, f.invoice(3, "1000", 0)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	amounts := []string{"10", "50", "0.5", "32"}
	for i, amt := range amounts {
		_ = s.Withdraw(ctx, f.withdrawal(token.USDT, amt, 3000+int64(i))) //nolint:errcheck // some are meant to fail
	}

	invs, err := s.ListInvoices(ctx, f.merchant, invoice.ListOpts{Status: invoice.StatusPaid})
	if err != nil {
		t.Fatalf("list invoices failed: %v", err)
	}
	ws, err := s.ListWithdrawals(ctx, f.merchant, balance.ListOpts{})
	if err != nil {
		t.Fatalf("list withdrawals failed: %v", err)
	}

	total := types.Zero
	for _, inv := range invs {
		total = total.Add(inv.Amount)
	}
	for _, w := range ws {
		total = total.Sub(w.Amount)
	}
	if len(ws) != 3 {
		t.Errorf("got %d withdrawals, want 3", len(ws))
	}
	bal, err := s.GetBalance(ctx, f.key(token.USDT))
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if !bal.Equal(total) || !bal.IsZero() {
		t.Errorf("balance got %s, want paid minus withdrawn %s and zero", bal, total)
	}
}

func testConcurrentSettle(t *testing.T, s store.Store, f fixture) {
	ctx := context.Background()
	inv := f.invoice(1, "100", 0)
	if err := s.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SettleInvoice(ctx, invoice.Settlement{InvoiceID: inv.ID, Payer: f.payer, PaidAt: 2000})
			switch {
			case err == nil:
				successes.Add(1)
			case !errors.Is(err, paylink.ErrInvoiceAlreadyPaid):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := successes.Load(); n != 1 {
		t.Errorf("got %d successful settlements, want 1", n)
	}
	wantBalance(t, s, f.key(token.USDT), "100")
}

func testConcurrentWithdraw(t *testing.T, s store.Store, f fixture) {
	ctx := context.Background()
	funded(t, s, f, 1, "100")

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Withdraw(ctx, f.withdrawal(token.USDT, "30", 3000+int64(i)))
			switch {
			case err == nil:
				successes.Add(1)
			case !errors.Is(err, paylink.ErrInsufficientBalance):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := successes.Load(); n != 3 {
		t.Errorf("got %d successful withdrawals, want 3", n)
	}
	wantBalance(t, s, f.key(token.USDT), "10")
}

func testListInvoices(t *testing.T, s store.Store, f fixture) {
	ctx := context.Background()
	for n := 1; n <= 4; n++ {
		if err := s.CreateInvoice(ctx, f.invoice(n, "1", 0)); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	if _, err := s.SettleInvoice(ctx, invoice.Settlement{InvoiceID: f.id(2), Payer: f.payer, PaidAt: 2000}); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	tests := []struct {
		name string
		opts invoice.ListOpts
		want []int
	}{
		{"all newest first", invoice.ListOpts{}, []int{4, 3, 2, 1}},
		{"paid", invoice.ListOpts{Status: invoice.StatusPaid}, []int{2}},
		{"unpaid", invoice.ListOpts{Status: invoice.StatusUnpaid}, []int{4, 3, 1}},
		{"paged", invoice.ListOpts{Limit: 2, Offset: 1}, []int{3, 2}},
		{"offset past end", invoice.ListOpts{Offset: 10}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListInvoices(ctx, f.merchant, tt.opts)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d invoices, want %d", len(got), len(tt.want))
			}
			for i, n := range tt.want {
				if got[i].ID != f.id(n) {
					t.Errorf("position %d: got %s, want invoice %d", i, got[i].ID.Hex(), n)
				}
			}
		})
	}
}

func testListWithdrawals(t *testing.T, s store.Store, f fixture) {
	ctx := context.Background()
	funded(t, s, f, 1, "10")

	var ids []id.WithdrawalID
	for i := range 3 {
		w := f.withdrawal(token.USDT, "1", 3000+int64(i))
		if err := s.Withdraw(ctx, w); err != nil {
			t.Fatalf("withdraw failed: %v", err)
		}
		ids = append(ids, w.ID)
	}

	got, err := s.ListWithdrawals(ctx, f.merchant, balance.ListOpts{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d withdrawals, want 3", len(got))
	}
	for i, w := range got {
		if want := ids[len(ids)-1-i]; w.ID.String() != want.String() {
			t.Errorf("position %d: got %s, want %s", i, w.ID, want)
		}
		if w.Recipient != f.to || !w.Amount.Equal(types.MustParseAmount("1")) {
			t.Errorf("round trip lost fields: %+v", w)
		}
	}

	paged, err := s.ListWithdrawals(ctx, f.merchant, balance.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(paged) != 1 || paged[0].ID.String() != ids[1].String() {
		t.Errorf("paged listing got %d rows, want the middle withdrawal", len(paged))
	}
	wantBalance(t, s, f.key(token.USDT), "7")
}
