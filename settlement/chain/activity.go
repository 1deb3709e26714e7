package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/xraph/paylink/activity"
	"github.com/xraph/paylink/types"
)

type invoiceCreatedLog struct {
	InvoiceId [32]byte //nolint:revive,stylecheck // matches the ABI field name
	Merchant  common.Address
	Token     common.Address
	Amount    *big.Int
	Note      string
	ExpiresAt *big.Int
}

type invoicePaidLog struct {
	InvoiceId [32]byte //nolint:revive,stylecheck // matches the ABI field name
	Merchant  common.Address
	Payer     common.Address
	Token     common.Address
	Amount    *big.Int
}

type withdrawalLog struct {
	Merchant common.Address
	To       common.Address
	Token    common.Address
	Amount   *big.Int
}

// Activity implements settlement.Gateway from contract logs. The scan covers
// the configured lookback, widened to reach opts.Since when it is set.
func (g *Gateway) Activity(ctx context.Context, merchant common.Address, opts activity.ListOpts) ([]activity.Event, error) {
	head, err := retryRead(ctx, g, func() (uint64, error) { return g.chain.BlockNumber(ctx) })
	if err != nil {
		return nil, err
	}
	from := g.windowStart(head, opts.Since)
	byMerchant := []interface{}{merchant}

	var events []activity.Event

	created, err := g.filter(ctx, eventInvoiceCreated, from, head, nil, byMerchant)
	if err != nil {
		return nil, err
	}
	for _, lg := range created {
		var ev invoiceCreatedLog
		if err := g.contract.UnpackLog(&ev, eventInvoiceCreated, lg); err != nil {
			g.logger.Debug("chain: skipping malformed log", "event", eventInvoiceCreated, "tx_hash", lg.TxHash.Hex(), "error", err)
			continue
		}
		e, ok, err := g.event(ctx, lg, activity.KindInvoiceCreated, ev.Token, ev.Amount)
		if err != nil {
			return nil, err
		}
		if ok {
			e.InvoiceID = ev.InvoiceId
			e.Merchant = ev.Merchant
			e.Note = ev.Note
			events = append(events, e)
		}
	}

	paid, err := g.filter(ctx, eventInvoicePaid, from, head, nil, byMerchant)
	if err != nil {
		return nil, err
	}
	for _, lg := range paid {
		var ev invoicePaidLog
		if err := g.contract.UnpackLog(&ev, eventInvoicePaid, lg); err != nil {
			g.logger.Debug("chain: skipping malformed log", "event", eventInvoicePaid, "tx_hash", lg.TxHash.Hex(), "error", err)
			continue
		}
		e, ok, err := g.event(ctx, lg, activity.KindInvoicePaid, ev.Token, ev.Amount)
		if err != nil {
			return nil, err
		}
		if ok {
			e.InvoiceID = ev.InvoiceId
			e.Merchant = ev.Merchant
			e.Counterparty = ev.Payer
			events = append(events, e)
		}
	}

	withdrawn, err := g.filter(ctx, eventWithdrawal, from, head, byMerchant)
	if err != nil {
		return nil, err
	}
	for _, lg := range withdrawn {
		var ev withdrawalLog
		if err := g.contract.UnpackLog(&ev, eventWithdrawal, lg); err != nil {
			g.logger.Debug("chain: skipping malformed log", "event", eventWithdrawal, "tx_hash", lg.TxHash.Hex(), "error", err)
			continue
		}
		e, ok, err := g.event(ctx, lg, activity.KindWithdrawal, ev.Token, ev.Amount)
		if err != nil {
			return nil, err
		}
		if ok {
			e.Merchant = ev.Merchant
			e.Counterparty = ev.To
			events = append(events, e)
		}
	}

	return activity.Apply(events, opts), nil
}

// event fills the fields common to every log. Logs for tokens outside the
// registry are skipped.
func (g *Gateway) event(ctx context.Context, lg ethtypes.Log, kind activity.Kind, tokenAddr common.Address, amount *big.Int) (activity.Event, bool, error) {
	sym, err := g.tokens.SymbolFor(tokenAddr)
	if err != nil {
		g.logger.Debug("chain: skipping log for unregistered token", "token", tokenAddr.Hex(), "tx_hash", lg.TxHash.Hex())
		return activity.Event{}, false, nil
	}
	at, err := g.blockTime(ctx, lg.BlockNumber)
	if err != nil {
		return activity.Event{}, false, err
	}
	return activity.Event{
		Kind:        kind,
		Token:       sym,
		Amount:      types.NewAmount(amount),
		At:          at,
		TxHash:      lg.TxHash,
		BlockNumber: lg.BlockNumber,
	}, true, nil
}

// windowStart returns the first block to scan.
func (g *Gateway) windowStart(head uint64, since int64) uint64 {
	span := g.cfg.LookbackBlocks
	if since > 0 {
		if age := g.clock.Now() - since; age > 0 {
			if n := g.cfg.blocksFor(time.Duration(age) * time.Second); n > span {
				span = n
			}
		}
	}
	if span >= head {
		return 0
	}
	return head - span
}

// filter fetches the logs of one event between from and to, inclusive.
func (g *Gateway) filter(ctx context.Context, name string, from, to uint64, query ...[]interface{}) ([]ethtypes.Log, error) {
	return retryRead(ctx, g, func() ([]ethtypes.Log, error) {
		ch, sub, err := g.contract.FilterLogs(&bind.FilterOpts{Start: from, End: &to, Context: ctx}, name, query...)
		if err != nil {
			return nil, err
		}
		return collectLogs(ch, sub)
	})
}

// collectLogs drains a log subscription. Every log is buffered before the
// subscription reports completion.
func collectLogs(ch <-chan ethtypes.Log, sub event.Subscription) ([]ethtypes.Log, error) {
	defer sub.Unsubscribe()

	var logs []ethtypes.Log
	for {
		select {
		case lg := <-ch:
			logs = append(logs, lg)
		case err := <-sub.Err():
			if err != nil {
				return nil, err
			}
			for {
				select {
				case lg := <-ch:
					logs = append(logs, lg)
				default:
					return logs, nil
				}
			}
		}
	}
}
