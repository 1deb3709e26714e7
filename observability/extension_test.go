package observability

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/settlement"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

type countingFactory struct {
	counters   map[string]*count
	histograms map[string]*observed
}

type count struct{ n float64 }

func (c *count) Inc()          { c.n++ }
func (c *count) Add(v float64) { c.n += v }

type observed struct{ values []float64 }

func (o *observed) Observe(v float64) { o.values = append(o.values, v) }

func newCountingFactory() *countingFactory {
	return &countingFactory{counters: map[string]*count{}, histograms: map[string]*observed{}}
}

func (f *countingFactory) Counter(name string) Counter {
	c := &count{}
	f.counters[name] = c
	return c
}

func (f *countingFactory) Histogram(name string) Histogram {
	h := &observed{}
	f.histograms[name] = h
	return h
}

func TestPaymentFailuresByCause(t *testing.T) {
	f := newCountingFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()
	payer := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	failures := []error{
		paylink.ErrInvoiceExpired,
		fmt.Errorf("pay: %w", paylink.ErrInvoiceAlreadyPaid),
		paylink.ErrInvoiceNotFound,
		&paylink.PendingError{Err: context.DeadlineExceeded},
		fmt.Errorf("%w: dial", paylink.ErrBackendUnavailable),
	}
	for _, err := range failures {
		_ = m.OnPaymentFailed(ctx, invoice.ID{}, payer, err)
	}

	tests := []struct {
		name string
		want float64
	}{
		{"paylink.payment.expired", 1},
		{"paylink.payment.already_paid", 1},
		{"paylink.payment.failed", 3},
		{"paylink.backend.pending", 1},
		{"paylink.backend.unavailable", 1},
	}
	for _, tt := range tests {
		if got := f.counters[tt.name].n; got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAmountsObservedInTokens(t *testing.T) {
	f := newCountingFactory()
	m := NewMetricsExtension(f)

	inv := &invoice.Invoice{Token: token.USDT, Amount: types.MustParseAmount("12.5")}
	_ = m.OnInvoicePaid(context.Background(), inv, settlement.Receipt{})
	w := &balance.Withdrawal{Token: token.USDT, Amount: types.MustParseAmount("3")}
	_ = m.OnWithdrawal(context.Background(), w, settlement.Receipt{})
	_ = m.OnWithdrawalFailed(context.Background(), balance.Request{}, paylink.ErrInsufficientBalance)

	if got := f.histograms["paylink.invoice.paid_amount"].values; len(got) != 1 || got[0] != 12.5 {
		t.Errorf("paid amounts = %v, want [12.5]", got)
	}
	if got := f.histograms["paylink.withdrawal.amount"].values; len(got) != 1 || got[0] != 3 {
		t.Errorf("withdrawal amounts = %v, want [3]", got)
	}
	if got := f.counters["paylink.withdrawal.insufficient_balance"].n; got != 1 {
		t.Errorf("insufficient = %v, want 1", got)
	}
	if got := f.counters["paylink.withdrawal.failed"].n; got != 0 {
		t.Errorf("failed = %v, want 0", got)
	}
}

func TestPrometheusFactory(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsExtension(NewPrometheusFactory(reg))

	_ = m.OnInvoiceCreated(context.Background(), &invoice.Invoice{}, settlement.Receipt{})
	_ = m.OnInvoiceCreated(context.Background(), &invoice.Invoice{}, settlement.Receipt{})

	c, ok := m.InvoiceCreated.(prometheus.Counter)
	if !ok {
		t.Fatalf("counter type = %T", m.InvoiceCreated)
	}
	if got := testutil.ToFloat64(c); got != 2 {
		t.Errorf("got %v, want 2", got)
	}

	// A second extension on the same registry shares the collectors.
	again := NewMetricsExtension(NewPrometheusFactory(reg))
	_ = again.OnInvoiceCreated(context.Background(), &invoice.Invoice{}, settlement.Receipt{})
	if got := testutil.ToFloat64(c); got != 3 {
		t.Errorf("shared counter = %v, want 3", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "paylink_invoice_created_total" {
			found = true
		}
	}
	if !found {
		t.Error("paylink_invoice_created_total not registered")
	}
}

func TestMetricName(t *testing.T) {
	if got := metricName("paylink.backend-x.pending"); got != "paylink_backend_x_pending" {
		t.Errorf("got %q", got)
	}
}
