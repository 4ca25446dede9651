package checkout

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/internal/cart"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	pricing "github.com/angelmondragon/partyshop-backend/pkg/checkout"
	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const (
	ReasonProductUnavailable = "PRODUCT_UNAVAILABLE"
	ReasonProviderTimeout    = "PAYMENT_PROVIDER_TIMEOUT"
	ReasonProviderError      = "PAYMENT_PROVIDER_ERROR"
)

type cartReader interface {
	Get(ctx context.Context, owner identity.Owner) (*cart.View, error)
}

type productCatalog interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// Result is returned to the client after the preference is created.
type Result struct {
	PreferenceID string        `json:"preferenceId"`
	URL          string        `json:"url"`
	SandboxURL   string        `json:"sandboxUrl,omitempty"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	Pricing      pricing.Quote `json:"pricing"`
}

// WebhookNotification is the subset of a provider callback worth logging.
type WebhookNotification struct {
	Topic string `json:"topic"`
	ID    string `json:"id"`
	Type  string `json:"type"`
}

type WebhookAck struct {
	Received bool `json:"received"`
}

// Service prices carts and hands them to the payment provider. It persists nothing.
type Service interface {
	BuildCheckout(ctx context.Context, owner identity.Owner) (*Result, error)
	AcknowledgeWebhook(ctx context.Context, note WebhookNotification) (WebhookAck, error)
}

type service struct {
	carts    cartReader
	catalog  productCatalog
	provider PaymentProvider
	cfg      config.CheckoutConfig
	timeout  time.Duration
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(carts cartReader, catalog productCatalog, provider PaymentProvider, cfg config.CheckoutConfig, timeout time.Duration, logg *logger.Logger) (Service, error) {
	if carts == nil {
		return nil, errors.New("cart reader required")
	}
	if catalog == nil {
		return nil, errors.New("product catalog required")
	}
	if provider == nil {
		return nil, errors.New("payment provider required")
	}
	if cfg.PreferenceExpiry <= 0 {
		cfg.PreferenceExpiry = 24 * time.Hour
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &service{
		carts:    carts,
		catalog:  catalog,
		provider: provider,
		cfg:      cfg,
		timeout:  timeout,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) BuildCheckout(ctx context.Context, owner identity.Owner) (*Result, error) {
	view, err := s.carts.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if view.ID == nil || len(view.Items) == 0 {
		return nil, pkgerrors.NewReason(pkgerrors.CodeStateConflict, pricing.ReasonEmptyCart, "cart is empty")
	}
	if len(view.Participants) == 0 {
		return nil, pkgerrors.NewReason(pkgerrors.CodeStateConflict, pricing.ReasonNoParticipants, "cart has no participants")
	}

	lines, err := s.priceLines(ctx, view)
	if err != nil {
		return nil, err
	}
	quote, err := pricing.BuildQuote(lines, len(view.Participants), s.cfg.MinimumContribution())
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().UTC().Add(s.cfg.PreferenceExpiry)
	req := PreferenceRequest{
		ReferenceID: view.ID.String(),
		Currency:    s.cfg.Currency,
		Lines:       make([]PreferenceLine, 0, len(quote.Lines)),
		Metadata: map[string]string{
			"cartId":              view.ID.String(),
			"participants":        strconv.Itoa(quote.Participants),
			"valuePerParticipant": quote.ValuePerParticipant.StringFixed(2),
		},
		ExpiresAt: expiresAt,
	}
	for _, line := range quote.Lines {
		req.Lines = append(req.Lines, PreferenceLine{Name: line.Name, Quantity: line.Quantity, UnitPrice: line.UnitPrice})
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	pref, err := s.provider.CreatePreference(callCtx, req)
	if err != nil {
		return nil, s.providerError(ctx, callCtx, err)
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"cart_id":       view.ID.String(),
			"preference_id": pref.ID,
			"total":         quote.TotalValue.StringFixed(2),
		})
		s.logg.Info(logCtx, "checkout preference created")
	}
	return &Result{
		PreferenceID: pref.ID,
		URL:          pref.URL,
		SandboxURL:   pref.SandboxURL,
		ExpiresAt:    expiresAt,
		Pricing:      quote,
	}, nil
}

// AcknowledgeWebhook records the callback. Reconciliation happens elsewhere.
func (s *service) AcknowledgeWebhook(ctx context.Context, note WebhookNotification) (WebhookAck, error) {
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"webhook_topic": note.Topic,
			"webhook_id":    note.ID,
			"webhook_type":  note.Type,
		})
		s.logg.Info(logCtx, "payment webhook received")
	}
	return WebhookAck{Received: true}, nil
}

// priceLines reads unit prices live from the catalog, never from the cart.
func (s *service) priceLines(ctx context.Context, view *cart.View) ([]pricing.PricedLine, error) {
	ids := make([]uuid.UUID, 0, len(view.Items))
	for _, item := range view.Items {
		ids = append(ids, item.ProductID)
	}
	catalog, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart products")
	}
	lines := make([]pricing.PricedLine, 0, len(view.Items))
	for _, item := range view.Items {
		product, ok := catalog[item.ProductID]
		if !ok || !product.Available {
			return nil, unavailable(item.ProductID, product.Name)
		}
		lines = append(lines, pricing.PricedLine{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
		})
	}
	return lines, nil
}

func (s *service) providerError(ctx, callCtx context.Context, err error) error {
	if s.logg != nil {
		s.logg.Error(ctx, "payment provider call failed", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider timed out").WithReason(ReasonProviderTimeout)
	}
	if typed := pkgerrors.As(err); typed != nil {
		if typed.Reason() == "" {
			typed.WithReason(ReasonProviderError)
		}
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider failed").WithReason(ReasonProviderError)
}

func unavailable(productID uuid.UUID, name string) error {
	detail := map[string]any{"productId": productID.String()}
	msg := "product is no longer available"
	if name != "" {
		detail["name"] = name
		msg = "product " + name + " is no longer available"
	}
	return pkgerrors.NewReason(pkgerrors.CodeStateConflict, ReasonProductUnavailable, msg).WithDetails(detail)
}
