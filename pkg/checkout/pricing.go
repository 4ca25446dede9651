// Package checkout holds the pure pricing rules shared by checkout and order
// creation.
package checkout

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
)

const (
	ReasonBelowMinimum   = "BELOW_MINIMUM_CONTRIBUTION"
	ReasonNoParticipants = "NO_PARTICIPANTS"
	ReasonEmptyCart      = "EMPTY_CART"

	moneyPlaces = 2
)

// PricedLine is a cart line carrying the live unit price.
type PricedLine struct {
	ProductID uuid.UUID
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// QuotedLine is a priced line with its total.
type QuotedLine struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// Quote is the pricing breakdown returned to clients.
type Quote struct {
	Lines               []QuotedLine    `json:"items"`
	TotalValue          decimal.Decimal `json:"totalValue"`
	Participants        int             `json:"participants"`
	ValuePerParticipant decimal.Decimal `json:"valuePerParticipant"`
	MinimumContribution decimal.Decimal `json:"minimumContribution"`
}

// ShortfallDetail explains a BelowMinimumContribution failure.
type ShortfallDetail struct {
	ValuePerParticipant string `json:"valuePerParticipant"`
	Minimum             string `json:"minimum"`
	Shortfall           string `json:"shortfall"`
	Participants        int    `json:"participants"`
}

// LineTotal returns unitPrice × quantity.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Total sums the line totals of lines.
func Total(lines []PricedLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(LineTotal(line.UnitPrice, line.Quantity))
	}
	return total
}

// BuildQuote prices lines and checks that each participant's share reaches
// minimum. The check uses the exact share; only the reported share and
// shortfall are rounded to cents, the shortfall upward so it never shows 0.00.
func BuildQuote(lines []PricedLine, participants int, minimum decimal.Decimal) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, pkgerrors.NewReason(pkgerrors.CodeStateConflict, ReasonEmptyCart, "cart is empty")
	}
	if participants < 1 {
		return Quote{}, pkgerrors.NewReason(pkgerrors.CodeStateConflict, ReasonNoParticipants, "cart has no participants")
	}

	quote := Quote{
		Lines:               make([]QuotedLine, 0, len(lines)),
		TotalValue:          decimal.Zero,
		Participants:        participants,
		MinimumContribution: minimum,
	}
	for _, line := range lines {
		total := LineTotal(line.UnitPrice, line.Quantity)
		quote.Lines = append(quote.Lines, QuotedLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: total,
		})
		quote.TotalValue = quote.TotalValue.Add(total)
	}
	heads := decimal.NewFromInt(int64(participants))
	quote.ValuePerParticipant = quote.TotalValue.DivRound(heads, moneyPlaces)

	if quote.TotalValue.LessThan(minimum.Mul(heads)) {
		shortfall := minimum.Sub(quote.TotalValue.Div(heads)).RoundCeil(moneyPlaces)
		return quote, pkgerrors.NewReason(pkgerrors.CodeStateConflict, ReasonBelowMinimum,
			fmt.Sprintf("each participant must contribute at least %s", minimum.StringFixed(moneyPlaces))).
			WithDetails(ShortfallDetail{
				ValuePerParticipant: quote.ValuePerParticipant.StringFixed(moneyPlaces),
				Minimum:             minimum.StringFixed(moneyPlaces),
				Shortfall:           shortfall.StringFixed(moneyPlaces),
				Participants:        participants,
			})
	}
	return quote, nil
}
