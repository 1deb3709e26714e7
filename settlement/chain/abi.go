package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// invoiceABIJSON is the invoice contract interface: custom errors, events and
// the functions the gateway calls.
const invoiceABIJSON = `[
  {"type":"error","name":"InsufficientBalance","inputs":[]},
  {"type":"error","name":"InvalidAmount","inputs":[]},
  {"type":"error","name":"InvalidRecipient","inputs":[]},
  {"type":"error","name":"InvalidToken","inputs":[]},
  {"type":"error","name":"InvoiceAlreadyExists","inputs":[]},
  {"type":"error","name":"InvoiceAlreadyPaid","inputs":[]},
  {"type":"error","name":"InvoiceExpired","inputs":[]},
  {"type":"error","name":"InvoiceNotFound","inputs":[]},
  {"type":"event","name":"InvoiceCreated","anonymous":false,"inputs":[
    {"indexed":true,"name":"invoiceId","type":"bytes32"},
    {"indexed":true,"name":"merchant","type":"address"},
    {"indexed":false,"name":"token","type":"address"},
    {"indexed":false,"name":"amount","type":"uint256"},
    {"indexed":false,"name":"note","type":"string"},
    {"indexed":false,"name":"expiresAt","type":"uint256"}]},
  {"type":"event","name":"InvoicePaid","anonymous":false,"inputs":[
    {"indexed":true,"name":"invoiceId","type":"bytes32"},
    {"indexed":true,"name":"merchant","type":"address"},
    {"indexed":true,"name":"payer","type":"address"},
    {"indexed":false,"name":"token","type":"address"},
    {"indexed":false,"name":"amount","type":"uint256"}]},
  {"type":"event","name":"Withdrawal","anonymous":false,"inputs":[
    {"indexed":true,"name":"merchant","type":"address"},
    {"indexed":true,"name":"to","type":"address"},
    {"indexed":false,"name":"token","type":"address"},
    {"indexed":false,"name":"amount","type":"uint256"}]},
  {"type":"function","name":"createInvoice","stateMutability":"nonpayable","inputs":[
    {"name":"token","type":"address"},
    {"name":"amount","type":"uint256"},
    {"name":"note","type":"string"},
    {"name":"expiresAt","type":"uint256"}],
   "outputs":[{"name":"invoiceId","type":"bytes32"}]},
  {"type":"function","name":"getInvoice","stateMutability":"view","inputs":[
    {"name":"invoiceId","type":"bytes32"}],
   "outputs":[{"name":"","type":"tuple","components":[
    {"name":"invoiceId","type":"bytes32"},
    {"name":"merchant","type":"address"},
    {"name":"token","type":"address"},
    {"name":"amount","type":"uint256"},
    {"name":"note","type":"string"},
    {"name":"createdAt","type":"uint256"},
    {"name":"expiresAt","type":"uint256"},
    {"name":"paid","type":"bool"},
    {"name":"payer","type":"address"},
    {"name":"paidAt","type":"uint256"}]}]},
  {"type":"function","name":"getMerchantBalance","stateMutability":"view","inputs":[
    {"name":"merchant","type":"address"},
    {"name":"token","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getMerchantNonce","stateMutability":"view","inputs":[
    {"name":"merchant","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"payInvoice","stateMutability":"nonpayable","inputs":[
    {"name":"invoiceId","type":"bytes32"}],
   "outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[
    {"name":"token","type":"address"},
    {"name":"amount","type":"uint256"},
    {"name":"to","type":"address"}],
   "outputs":[]}
]`

// erc20ABIJSON is the subset of ERC-20 needed to approve the contract as spender.
const erc20ABIJSON = `[
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"},
    {"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[
    {"name":"spender","type":"address"},
    {"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
    {"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	invoiceABI = mustParseABI(invoiceABIJSON)
	erc20ABI   = mustParseABI(erc20ABIJSON)
)

// Contract method and event names.
const (
	methodCreateInvoice = "createInvoice"
	methodGetInvoice    = "getInvoice"
	methodGetBalance    = "getMerchantBalance"
	methodGetNonce      = "getMerchantNonce"
	methodPayInvoice    = "payInvoice"
	methodWithdraw      = "withdraw"
	methodAllowance     = "allowance"
	methodApprove       = "approve"

	eventInvoiceCreated = "InvoiceCreated"
	eventInvoicePaid    = "InvoicePaid"
	eventWithdrawal     = "Withdrawal"
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}
