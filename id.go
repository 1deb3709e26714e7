package paylink

import (
	"github.com/xraph/paylink/id"
	"github.com/xraph/paylink/invoice"
)

// ID is the identifier type of locally issued records such as withdrawals.
type ID = id.ID

// InvoiceID is the 256-bit identifier of an invoice.
type InvoiceID = invoice.ID

// ParseInvoiceID is re-exported from the invoice package.
var ParseInvoiceID = invoice.ParseID
