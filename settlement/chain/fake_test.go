package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
)

const genesisTime = 1_700_000_000

// fakeChain mines every transaction into its own block, three seconds apart.
type fakeChain struct {
	mu       sync.Mutex
	head     uint64
	nonce    uint64
	receipts map[common.Hash]*ethtypes.Receipt
	code     []byte
	hold     bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		head:     100,
		receipts: make(map[common.Hash]*ethtypes.Receipt),
		code:     []byte{0x60, 0x80},
	}
}

func (c *fakeChain) TransactionReceipt(_ context.Context, h common.Hash) (*ethtypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.receipts[h]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (c *fakeChain) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code, nil
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func (c *fakeChain) HeaderByNumber(_ context.Context, n *big.Int) (*ethtypes.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	num := c.head
	if n != nil {
		num = n.Uint64()
	}
	return &ethtypes.Header{Number: new(big.Int).SetUint64(num), Time: blockTime(num)}, nil
}

func blockTime(n uint64) uint64 { return genesisTime + n*3 }

// advance skips n empty blocks.
func (c *fakeChain) advance(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head += n
}

// next returns a fresh transaction and the block it will be mined in.
func (c *fakeChain) next(to common.Address) (*ethtypes.Transaction, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonce++
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: c.nonce, To: &to, Gas: 21000, GasPrice: big.NewInt(1)}), c.head + 1
}

// mine records a receipt for tx unless the chain is holding transactions.
func (c *fakeChain) mine(tx *ethtypes.Transaction, status uint64, logs []*ethtypes.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head++
	for _, lg := range logs {
		lg.BlockNumber = c.head
		lg.TxHash = tx.Hash()
	}
	if c.hold {
		return
	}
	c.receipts[tx.Hash()] = &ethtypes.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(c.head),
		Logs:        logs,
	}
}

// revertError is a JSON-RPC error carrying revert data.
type revertError struct{ data string }

func (e revertError) Error() string          { return "execution reverted" }
func (e revertError) ErrorData() interface{} { return e.data }

func customRevert(name string) error {
	sel := invoiceABI.Errors[name].ID
	return revertError{data: hexutil.Encode(sel[:4])}
}

// fakeToken is an ERC-20 that only tracks allowances to the invoice contract.
type fakeToken struct {
	chain *fakeChain
	addr  common.Address

	mu        sync.Mutex
	allowance map[common.Address]*big.Int
	approvals int
}

func newFakeToken(chain *fakeChain, addr common.Address) *fakeToken {
	return &fakeToken{chain: chain, addr: addr, allowance: make(map[common.Address]*big.Int)}
}

func (t *fakeToken) Call(_ *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error {
	if method != methodAllowance {
		return errors.New("fake token: unsupported call " + method)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.allowance[params[0].(common.Address)]
	if a == nil {
		a = new(big.Int)
	}
	*results = []interface{}{new(big.Int).Set(a)}
	return nil
}

func (t *fakeToken) Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Transaction, error) {
	if method != methodApprove {
		return nil, errors.New("fake token: unsupported transaction " + method)
	}
	t.mu.Lock()
	t.allowance[opts.From] = new(big.Int).Set(params[1].(*big.Int))
	t.approvals++
	t.mu.Unlock()

	tx, _ := t.chain.next(t.addr)
	t.chain.mine(tx, ethtypes.ReceiptStatusSuccessful, nil)
	return tx, nil
}

func (t *fakeToken) FilterLogs(*bind.FilterOpts, string, ...[]interface{}) (chan ethtypes.Log, event.Subscription, error) {
	return nil, nil, errors.New("fake token: no logs")
}

func (t *fakeToken) UnpackLog(interface{}, string, ethtypes.Log) error {
	return errors.New("fake token: no logs")
}

// spend consumes allowance granted by owner.
func (t *fakeToken) spend(owner common.Address, amount *big.Int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.allowance[owner]
	if a == nil || a.Cmp(amount) < 0 {
		return false
	}
	t.allowance[owner] = new(big.Int).Sub(a, amount)
	return true
}

// fakeContract executes the invoice contract rules in memory.
type fakeContract struct {
	chain   *fakeChain
	addr    common.Address
	abiOnly *bind.BoundContract
	tokens  map[common.Address]*fakeToken

	mu        sync.Mutex
	invoices  map[common.Hash]onchainInvoice
	balances  map[[2]common.Address]*big.Int
	nonces    map[common.Address]int64
	logs      []ethtypes.Log
	failCalls int
	failMined map[string]bool
	transacts int
}

func newFakeContract(chain *fakeChain, addr common.Address, tokens map[common.Address]*fakeToken) *fakeContract {
	return &fakeContract{
		chain:     chain,
		addr:      addr,
		abiOnly:   bind.NewBoundContract(addr, invoiceABI, nil, nil, nil),
		tokens:    tokens,
		invoices:  make(map[common.Hash]onchainInvoice),
		balances:  make(map[[2]common.Address]*big.Int),
		nonces:    make(map[common.Address]int64),
		failMined: make(map[string]bool),
	}
}

func (c *fakeContract) Call(_ *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failCalls > 0 {
		c.failCalls--
		return errors.New("dial tcp 127.0.0.1:8545: connection refused")
	}

	switch method {
	case methodGetInvoice:
		*results = []interface{}{c.invoices[params[0].([32]byte)]}
	case methodGetBalance:
		*results = []interface{}{c.balanceOf(params[0].(common.Address), params[1].(common.Address))}
	case methodGetNonce:
		*results = []interface{}{big.NewInt(c.nonces[params[0].(common.Address)])}
	default:
		return errors.New("fake contract: unsupported call " + method)
	}
	return nil
}

func (c *fakeContract) balanceOf(merchant, tok common.Address) *big.Int {
	if b := c.balances[[2]common.Address{merchant, tok}]; b != nil {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (c *fakeContract) Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transacts++

	tx, block := c.chain.next(c.addr)
	if c.failMined[method] {
		c.chain.mine(tx, ethtypes.ReceiptStatusFailed, nil)
		return tx, nil
	}

	var logs []*ethtypes.Log
	switch method {
	case methodCreateInvoice:
		tok, amount := params[0].(common.Address), params[1].(*big.Int)
		note, expiresAt := params[2].(string), params[3].(*big.Int)
		if amount.Sign() <= 0 {
			return nil, customRevert("InvalidAmount")
		}
		if _, ok := c.tokens[tok]; !ok {
			return nil, customRevert("InvalidToken")
		}
		c.nonces[opts.From]++
		invID := crypto.Keccak256Hash(opts.From.Bytes(), big.NewInt(c.nonces[opts.From]).Bytes())
		c.invoices[invID] = onchainInvoice{
			InvoiceId: invID,
			Merchant:  opts.From,
			Token:     tok,
			Amount:    new(big.Int).Set(amount),
			Note:      note,
			CreatedAt: new(big.Int).SetUint64(blockTime(block)),
			ExpiresAt: new(big.Int).Set(expiresAt),
		}
		logs = append(logs, c.log(eventInvoiceCreated,
			[]common.Hash{invID, addrTopic(opts.From)},
			tok, amount, note, expiresAt))

	case methodPayInvoice:
		invID := common.Hash(params[0].([32]byte))
		inv, ok := c.invoices[invID]
		switch {
		case !ok || inv.Merchant == (common.Address{}):
			return nil, customRevert("InvoiceNotFound")
		case inv.Paid:
			return nil, customRevert("InvoiceAlreadyPaid")
		case inv.ExpiresAt.Sign() != 0 && blockTime(block) > inv.ExpiresAt.Uint64():
			return nil, customRevert("InvoiceExpired")
		case !c.tokens[inv.Token].spend(opts.From, inv.Amount):
			return nil, revertError{data: errorStringData("ERC20: insufficient allowance")}
		}
		inv.Paid = true
		inv.Payer = opts.From
		inv.PaidAt = new(big.Int).SetUint64(blockTime(block))
		c.invoices[invID] = inv
		key := [2]common.Address{inv.Merchant, inv.Token}
		c.balances[key] = new(big.Int).Add(c.balanceOf(inv.Merchant, inv.Token), inv.Amount)
		logs = append(logs, c.log(eventInvoicePaid,
			[]common.Hash{invID, addrTopic(inv.Merchant), addrTopic(opts.From)},
			inv.Token, inv.Amount))

	case methodWithdraw:
		tok, amount, to := params[0].(common.Address), params[1].(*big.Int), params[2].(common.Address)
		current := c.balanceOf(opts.From, tok)
		switch {
		case amount.Sign() <= 0:
			return nil, customRevert("InvalidAmount")
		case to == (common.Address{}):
			return nil, customRevert("InvalidRecipient")
		case current.Cmp(amount) < 0:
			return nil, customRevert("InsufficientBalance")
		}
		c.balances[[2]common.Address{opts.From, tok}] = current.Sub(current, amount)
		logs = append(logs, c.log(eventWithdrawal,
			[]common.Hash{addrTopic(opts.From), addrTopic(to)},
			tok, amount))

	default:
		return nil, errors.New("fake contract: unsupported transaction " + method)
	}

	c.chain.mine(tx, ethtypes.ReceiptStatusSuccessful, logs)
	for _, lg := range logs {
		c.logs = append(c.logs, *lg)
	}
	return tx, nil
}

func (c *fakeContract) log(name string, indexed []common.Hash, data ...interface{}) *ethtypes.Log {
	ev := invoiceABI.Events[name]
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(err)
	}
	return &ethtypes.Log{
		Address: c.addr,
		Topics:  append([]common.Hash{ev.ID}, indexed...),
		Data:    packed,
	}
}

func (c *fakeContract) FilterLogs(opts *bind.FilterOpts, name string, query ...[]interface{}) (chan ethtypes.Log, event.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	topic := invoiceABI.Events[name].ID
	ch := make(chan ethtypes.Log, len(c.logs)+1)
	for _, lg := range c.logs {
		if lg.Topics[0] != topic || lg.BlockNumber < opts.Start || (opts.End != nil && lg.BlockNumber > *opts.End) {
			continue
		}
		if matches(lg.Topics[1:], query) {
			ch <- lg
		}
	}
	sub := event.NewSubscription(func(<-chan struct{}) error { return nil })
	return ch, sub, nil
}

func matches(topics []common.Hash, query [][]interface{}) bool {
	for i, rule := range query {
		if len(rule) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		hit := false
		for _, v := range rule {
			if addr, ok := v.(common.Address); ok && addrTopic(addr) == topics[i] {
				hit = true
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func (c *fakeContract) UnpackLog(out interface{}, name string, lg ethtypes.Log) error {
	return c.abiOnly.UnpackLog(out, name, lg)
}

func addrTopic(a common.Address) common.Hash { return common.BytesToHash(a.Bytes()) }

// errorStringData encodes a revert with Error(string).
func errorStringData(reason string) string {
	strType, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	if err != nil {
		panic(err)
	}
	return hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
}
