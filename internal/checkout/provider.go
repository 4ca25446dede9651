package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/partyshop-backend/pkg/square"
)

// PreferenceLine is one line sent to the payment provider.
type PreferenceLine struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// PreferenceRequest is the provider-neutral hosted checkout request.
type PreferenceRequest struct {
	ReferenceID string
	Currency    string
	Lines       []PreferenceLine
	Metadata    map[string]string
	ExpiresAt   time.Time
}

// Preference is what the provider hands back.
type Preference struct {
	ID         string
	URL        string
	SandboxURL string
}

// PaymentProvider creates hosted checkout preferences.
type PaymentProvider interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
}

type paymentLinkCreator interface {
	CreatePaymentLink(ctx context.Context, params square.PaymentLinkParams) (*square.PaymentLink, error)
	IsSandbox() bool
}

// SquareProvider maps preferences onto Square payment links. Square links do
// not expire on their own, so the expiry travels in the metadata.
type SquareProvider struct {
	links paymentLinkCreator
}

func NewSquareProvider(links paymentLinkCreator) (*SquareProvider, error) {
	if links == nil {
		return nil, errors.New("square payment links client required")
	}
	return &SquareProvider{links: links}, nil
}

func (p *SquareProvider) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	lines := make([]square.PaymentLinkLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, square.PaymentLinkLine{
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if !req.ExpiresAt.IsZero() {
		metadata["expiresAt"] = req.ExpiresAt.UTC().Format(time.RFC3339)
	}

	link, err := p.links.CreatePaymentLink(ctx, square.PaymentLinkParams{
		ReferenceID: req.ReferenceID,
		Currency:    req.Currency,
		Lines:       lines,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}
	pref := &Preference{ID: link.ID, URL: link.URL}
	if p.links.IsSandbox() {
		pref.SandboxURL = link.URL
		if link.LongURL != "" {
			pref.SandboxURL = link.LongURL
		}
	}
	return pref, nil
}
