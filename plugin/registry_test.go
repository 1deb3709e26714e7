package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/settlement"
)

type recorder struct {
	name string

	mu     sync.Mutex
	events []string
	block  time.Duration
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) OnInit(context.Context, interface{}) error {
	r.record("init")
	return nil
}

func (r *recorder) OnInvoicePaid(context.Context, *invoice.Invoice, settlement.Receipt) error {
	time.Sleep(r.block)
	r.record("paid")
	return nil
}

func (r *recorder) OnPaymentFailed(_ context.Context, _ invoice.ID, _ common.Address, err error) error {
	r.record("failed:" + err.Error())
	return errors.New("hook error is only logged")
}

type nameOnly struct{ name string }

func (n nameOnly) Name() string { return n.name }

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nameOnly{"a"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register(nameOnly{"a"}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Errorf("got %d plugins, want 1", r.Count())
	}
	if r.Get("a") == nil || r.Get("b") != nil {
		t.Error("Get returned wrong plugin")
	}
}

func TestDispatchOnlyToImplementers(t *testing.T) {
	r := NewRegistry()
	rec := &recorder{name: "rec"}
	_ = r.Register(rec)
	_ = r.Register(nameOnly{"plain"})

	ctx := context.Background()
	r.EmitInit(ctx, nil)
	r.EmitInvoicePaid(ctx, &invoice.Invoice{}, settlement.Receipt{})
	r.EmitPaymentFailed(ctx, invoice.ID{}, common.Address{}, errors.New("boom"))
	r.EmitWithdrawal(ctx, &balance.Withdrawal{}, settlement.Receipt{})

	got := rec.seen()
	want := []string{"init", "paid", "failed:boom"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDispatchTimeout(t *testing.T) {
	r := NewRegistry().WithTimeout(20 * time.Millisecond)
	rec := &recorder{name: "slow", block: time.Second}
	_ = r.Register(rec)

	start := time.Now()
	r.EmitInvoicePaid(context.Background(), &invoice.Invoice{}, settlement.Receipt{})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("slow hook blocked dispatch for %v", elapsed)
	}
}

func TestHooksRecordedAtRegistration(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&recorder{name: "rec"})
	_ = r.Register(nameOnly{"plain"})

	got := r.Hooks("rec")
	want := []string{"OnInit", "OnInvoicePaid", "OnPaymentFailed"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hook %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if h := r.Hooks("plain"); len(h) != 0 {
		t.Errorf("got %v, want none", h)
	}
}

type ctxWatcher struct {
	cancelled chan error
}

func (w *ctxWatcher) Name() string { return "ctx-watcher" }

func (w *ctxWatcher) OnInvoicePaid(ctx context.Context, _ *invoice.Invoice, _ settlement.Receipt) error {
	select {
	case <-ctx.Done():
		w.cancelled <- ctx.Err()
	case <-time.After(5 * time.Second):
		w.cancelled <- nil
	}
	return nil
}

func TestHookContextCancelledOnTimeout(t *testing.T) {
	r := NewRegistry().WithTimeout(20 * time.Millisecond)
	w := &ctxWatcher{cancelled: make(chan error, 1)}
	_ = r.Register(w)

	r.EmitInvoicePaid(context.Background(), &invoice.Invoice{}, settlement.Receipt{})

	select {
	case err := <-w.cancelled:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("got %v, want %v", err, context.DeadlineExceeded)
		}
	case <-time.After(time.Second):
		t.Fatal("hook context was not cancelled after the timeout")
	}
}
