package square

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"
	sqoption "github.com/square/square-go-sdk/option"
)

const maxPaymentNoteLen = 500

type paymentLinksAPI interface {
	Create(ctx context.Context, request *sqcheckout.CreatePaymentLinkRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentLinkResponse, error)
}

// PaymentLinkLine is one priced line on the hosted checkout page.
type PaymentLinkLine struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// PaymentLinkParams describes a hosted checkout. ReferenceID is echoed back by
// Square on the resulting order; Metadata is folded into the payment note.
type PaymentLinkParams struct {
	IdempotencyKey string
	ReferenceID    string
	Currency       string
	Lines          []PaymentLinkLine
	Metadata       map[string]string
}

// PaymentLink is the subset of Square's response the checkout flow returns.
type PaymentLink struct {
	ID      string
	URL     string
	LongURL string
	OrderID string
}

// CreatePaymentLink submits a Square payment link for the given lines.
func (c *Client) CreatePaymentLink(ctx context.Context, params PaymentLinkParams) (*PaymentLink, error) {
	if c == nil || c.links == nil {
		return nil, errors.New("square client not initialized")
	}
	if len(params.Lines) == 0 {
		return nil, errors.New("payment link requires at least one line")
	}

	req, err := c.paymentLinkRequest(params)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{
		"location_id":  c.locationID,
		"reference_id": params.ReferenceID,
		"lines":        len(params.Lines),
	}
	c.logCall(ctx, "create_payment_link", "request", fields, nil)

	resp, err := c.links.Create(ctx, req)
	if err != nil {
		c.logCall(ctx, "create_payment_link", "response", fields, err)
		return nil, classify(err, "create payment link")
	}
	link := resp.GetPaymentLink()
	if link == nil {
		return nil, classify(errors.New("empty payment link response"), "create payment link")
	}
	out := &PaymentLink{
		ID:      deref(link.GetID()),
		URL:     deref(link.GetURL()),
		LongURL: deref(link.GetLongURL()),
		OrderID: deref(link.GetOrderID()),
	}
	fields["payment_link_id"] = out.ID
	fields["order_id"] = out.OrderID
	c.logCall(ctx, "create_payment_link", "response", fields, nil)
	return out, nil
}

// IsSandbox reports whether links are created against the Square sandbox.
func (c *Client) IsSandbox() bool {
	return c != nil && c.environment == sandboxEnv
}

func (c *Client) paymentLinkRequest(params PaymentLinkParams) (*sqcheckout.CreatePaymentLinkRequest, error) {
	currency := sq.Currency(strings.ToUpper(strings.TrimSpace(params.Currency)))
	if currency == "" {
		currency = sq.Currency("BRL")
	}

	lines := make([]*sq.OrderLineItem, 0, len(params.Lines))
	for _, line := range params.Lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("line %q has invalid quantity %d", line.Name, line.Quantity)
		}
		amount := minorUnits(line.UnitPrice)
		cur := currency
		name := line.Name
		lines = append(lines, &sq.OrderLineItem{
			Name:     &name,
			Quantity: strconv.Itoa(line.Quantity),
			BasePriceMoney: &sq.Money{
				Amount:   &amount,
				Currency: &cur,
			},
		})
	}

	order := &sq.Order{
		LocationID: c.locationID,
		LineItems:  lines,
	}
	if ref := strings.TrimSpace(params.ReferenceID); ref != "" {
		order.ReferenceID = &ref
	}

	key := idempotencyKey("payment_link.create", params.IdempotencyKey)
	req := &sqcheckout.CreatePaymentLinkRequest{
		IdempotencyKey: &key,
		Order:          order,
	}
	if note := paymentNote(params.Metadata); note != "" {
		req.PaymentNote = &note
	}
	if c.redirectURL != "" {
		redirect := c.redirectURL
		req.CheckoutOptions = &sq.CheckoutOptions{RedirectURL: &redirect}
	}
	return req, nil
}

// minorUnits converts a currency amount into cents, rounding half away from zero.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func paymentNote(metadata map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+metadata[k])
	}
	note := strings.Join(parts, "; ")
	if len(note) > maxPaymentNoteLen {
		note = note[:maxPaymentNoteLen]
	}
	return note
}
