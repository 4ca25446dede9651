package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/internal/cart"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/internal/ownerlock"
	pricing "github.com/angelmondragon/partyshop-backend/pkg/checkout"
	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/partyshop-backend/pkg/pagination"
)

const (
	ReasonOrderNotFound      = "ORDER_NOT_FOUND"
	ReasonNotCancellable     = "NOT_CANCELLABLE"
	ReasonInvalidStatus      = "INVALID_STATUS"
	ReasonInvalidTransition  = "INVALID_TRANSITION"
	ReasonProductUnavailable = "PRODUCT_UNAVAILABLE"
	ReasonOrderNumberTaken   = "ORDER_NUMBER_TAKEN"
	ReasonInvalidOrderNumber = "INVALID_ORDER_NUMBER"

	DefaultCancelReason = "Cancelled by customer"

	maxNotesLength       = 2000
	maxOrderNumberLength = 32
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes order placement and lifecycle operations.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*OrderDTO, error)
	List(ctx context.Context, userID uuid.UUID, isAdmin bool, params ListParams) (*ListResult, error)
	Get(ctx context.Context, orderID, userID uuid.UUID, isAdmin bool) (*OrderDTO, error)
	Cancel(ctx context.Context, orderID, userID uuid.UUID, reason string) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*OrderDTO, error)
	Delete(ctx context.Context, orderID uuid.UUID) error
	Stats(ctx context.Context, userID uuid.UUID) (*Stats, error)
	AdminStats(ctx context.Context) (*AdminStats, error)
}

type ServiceParams struct {
	Repo     Repository
	CartRepo *cart.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Locker   ownerlock.Locker
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	cartRepo *cart.Repository
	tx       txRunner
	outbox   outboxPublisher
	locker   ownerlock.Locker
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the orders service. Order creation shares the cart lock
// scope so it never races a concurrent cart edit.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, errors.New("orders repository required")
	}
	if p.CartRepo == nil {
		return nil, errors.New("cart repository required")
	}
	if p.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	if p.Locker == nil {
		return nil, errors.New("owner locker required")
	}
	return &service{
		repo:     p.Repo,
		cartRepo: p.CartRepo,
		tx:       p.Tx,
		outbox:   p.Outbox,
		locker:   p.Locker,
		logg:     p.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*OrderDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	notes, err := normalizeNotes(input.Notes)
	if err != nil {
		return nil, err
	}
	requested, err := normalizeOrderNumber(input.OrderNumber)
	if err != nil {
		return nil, err
	}

	var created *models.Order
	owner := identity.ForUser(userID)
	err = ownerlock.Run(ctx, s.locker, ownerlock.ScopeCart, owner, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			carts := s.cartRepo.WithTx(tx)

			current, err := carts.FindByOwner(ctx, owner)
			if err != nil && !db.IsNotFound(err) {
				return err
			}
			if current == nil || len(current.Items) == 0 {
				return pkgerrors.NewReason(pkgerrors.CodeStateConflict, pricing.ReasonEmptyCart, "cart is empty")
			}
			participants := cart.ParticipantNames(current)
			if len(participants) == 0 {
				return pkgerrors.NewReason(pkgerrors.CodeStateConflict, pricing.ReasonNoParticipants, "cart has no participants")
			}

			catalog, err := repo.ProductsByIDs(ctx, cart.ProductIDs(current))
			if err != nil {
				return err
			}
			lines := make([]models.OrderLineItem, 0, len(current.Items))
			total := decimal.Zero
			for _, item := range current.Items {
				product, ok := catalog[item.ProductID]
				if !ok || !product.Available {
					return productUnavailable(item.ProductID, product.Name)
				}
				lineTotal := pricing.LineTotal(product.Price, item.Quantity)
				total = total.Add(lineTotal)
				lines = append(lines, models.OrderLineItem{
					ProductID:   product.ID,
					Name:        product.Name,
					Description: product.Description,
					Image:       product.Image,
					UnitPrice:   product.Price,
					Quantity:    item.Quantity,
					LineTotal:   lineTotal,
				})
			}

			number := requested
			if number == "" {
				if number, err = repo.NextOrderNumber(ctx); err != nil {
					return err
				}
			}
			order := &models.Order{
				OrderNumber:  number,
				UserID:       userID,
				Status:       enums.OrderStatusPending,
				TotalAmount:  total,
				Participants: append([]string(nil), participants...),
				Notes:        notes,
				Items:        lines,
			}
			if err := repo.Create(ctx, order); err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.NewReason(pkgerrors.CodeConflict, ReasonOrderNumberTaken, "order number already in use")
				}
				return err
			}

			if err := carts.ClearItems(ctx, current.ID); err != nil {
				return err
			}
			if err := carts.ClearParticipants(ctx, current.ID); err != nil {
				return err
			}
			if err := carts.Touch(ctx, current.ID); err != nil {
				return err
			}

			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         userActor(userID),
				Data:          createdPayload(order),
			}); err != nil {
				return err
			}
			created = order
			return nil
		})
	})
	if err != nil {
		return nil, asTyped(err, "create order")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":     created.ID.String(),
			"order_number": created.OrderNumber,
		})
		s.logg.Info(logCtx, "order created")
	}
	dto := toDTO(*created)
	return &dto, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, isAdmin bool, params ListParams) (*ListResult, error) {
	filter := ListFilter{}
	if !isAdmin {
		filter.UserID = &userID
	}
	if raw := strings.TrimSpace(params.Status); raw != "" {
		status, err := parseStatus(raw)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}

	page := pagination.Params{Page: params.Page, Limit: params.Limit}.Normalize()
	rows, total, err := s.repo.List(ctx, filter, page.Offset(), page.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	out := make([]OrderDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDTO(row))
	}
	return &ListResult{Orders: out, Pagination: toPageDTO(pagination.NewPage(page, total))}, nil
}

func (s *service) Get(ctx context.Context, orderID, userID uuid.UUID, isAdmin bool) (*OrderDTO, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	// Someone else's order is indistinguishable from a missing one.
	if !isAdmin && order.UserID != userID {
		return nil, orderNotFound()
	}
	dto := toDTO(*order)
	return &dto, nil
}

func (s *service) Cancel(ctx context.Context, orderID, userID uuid.UUID, reason string) (*OrderDTO, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if current.UserID != userID {
			return orderNotFound()
		}
		if current.Status != enums.OrderStatusPending {
			return pkgerrors.NewReason(pkgerrors.CodeStateConflict, ReasonNotCancellable, "only pending orders can be cancelled")
		}
		now := s.now()
		ok, err := repo.UpdateStatus(ctx, orderID, enums.OrderStatusPending, StatusChange{
			To:           enums.OrderStatusCancelled,
			CancelReason: &reason,
			CancelledAt:  &now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.NewReason(pkgerrors.CodeStateConflict, ReasonNotCancellable, "only pending orders can be cancelled")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         userActor(userID),
			OccurredAt:    now,
			Data: payloads.OrderCancelledEvent{
				OrderID:     current.ID,
				OrderNumber: current.OrderNumber,
				UserID:      current.UserID,
				Reason:      reason,
				TotalAmount: current.TotalAmount.StringFixed(2),
				CancelledAt: now,
			},
		}); err != nil {
			return err
		}
		order, err = s.load(ctx, repo, orderID)
		return err
	})
	if err != nil {
		return nil, asTyped(err, "cancel order")
	}
	dto := toDTO(*order)
	return &dto, nil
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*OrderDTO, error) {
	next, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if current.Status == next {
			order = current
			return nil
		}
		if !current.Status.CanTransitionTo(next) {
			return invalidTransition(current.Status, next)
		}
		now := s.now()
		change := StatusChange{To: next}
		switch next {
		case enums.OrderStatusCompleted:
			change.CompletedAt = &now
		case enums.OrderStatusCancelled:
			change.CancelledAt = &now
		}
		ok, err := repo.UpdateStatus(ctx, orderID, current.Status, change)
		if err != nil {
			return err
		}
		if !ok {
			return invalidTransition(current.Status, next)
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			OccurredAt:    now,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     current.ID,
				OrderNumber: current.OrderNumber,
				UserID:      current.UserID,
				From:        current.Status,
				To:          next,
				TotalAmount: current.TotalAmount.StringFixed(2),
				ChangedAt:   now,
			},
		}); err != nil {
			return err
		}
		order, err = s.load(ctx, repo, orderID)
		return err
	})
	if err != nil {
		return nil, asTyped(err, "update order status")
	}
	dto := toDTO(*order)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, orderID uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		ok, err := repo.Delete(ctx, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return orderNotFound()
		}
		now := s.now()
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDeleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			OccurredAt:    now,
			Data: payloads.OrderDeletedEvent{
				OrderID:     current.ID,
				OrderNumber: current.OrderNumber,
				UserID:      current.UserID,
				Status:      current.Status,
				DeletedAt:   now,
			},
		})
	})
	if err != nil {
		return asTyped(err, "delete order")
	}
	return nil
}

func (s *service) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	rows, err := s.repo.Stats(ctx, &userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "order stats")
	}
	stats, _, err := aggregate(rows)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *service) AdminStats(ctx context.Context) (*AdminStats, error) {
	rows, err := s.repo.Stats(ctx, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "order stats")
	}
	stats, pending, err := aggregate(rows)
	if err != nil {
		return nil, err
	}
	return &AdminStats{Stats: stats, Revenue: stats.TotalSpent, PendingRevenue: pending}, nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, orderNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

// aggregate folds per-status rows into Stats and also returns the amount
// still sitting in pending orders.
func aggregate(rows []StatusTotal) (Stats, decimal.Decimal, error) {
	stats := Stats{TotalSpent: decimal.Zero}
	pending := decimal.Zero
	for _, row := range rows {
		amount, err := decimal.NewFromString(strings.TrimSpace(row.Amount))
		if err != nil {
			return Stats{}, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse order totals")
		}
		stats.Total += row.Count
		switch row.Status {
		case enums.OrderStatusPending:
			stats.Pending = row.Count
			pending = amount
		case enums.OrderStatusCompleted:
			stats.Completed = row.Count
			stats.TotalSpent = amount
		case enums.OrderStatusCancelled:
			stats.Cancelled = row.Count
		}
	}
	return stats, pending, nil
}

func parseStatus(raw string) (enums.OrderStatus, error) {
	status, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return "", pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonInvalidStatus, "invalid order status").
			WithDetails(map[string]any{"allowed": enums.OrderStatuses()})
	}
	return status, nil
}

func normalizeNotes(notes string) (*string, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, nil
	}
	if len(notes) > maxNotesLength {
		return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, "INVALID_NOTES", "notes are too long")
	}
	return &notes, nil
}

func normalizeOrderNumber(number string) (string, error) {
	number = strings.TrimSpace(number)
	if len(number) > maxOrderNumberLength {
		return "", pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonInvalidOrderNumber, "order number is too long")
	}
	if sequenceNumber.MatchString(number) {
		return "", pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonInvalidOrderNumber, "order number is reserved for generated numbers")
	}
	return number, nil
}

func orderNotFound() error {
	return pkgerrors.NewReason(pkgerrors.CodeNotFound, ReasonOrderNotFound, "order not found")
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.NewReason(pkgerrors.CodeStateConflict, ReasonInvalidTransition, "order status transition not allowed").
		WithDetails(map[string]any{"from": from, "to": to})
}

func productUnavailable(productID uuid.UUID, name string) error {
	detail := map[string]any{"productId": productID.String()}
	msg := "product is no longer available"
	if name != "" {
		detail["name"] = name
		msg = name + " is no longer available"
	}
	return pkgerrors.NewReason(pkgerrors.CodeStateConflict, ReasonProductUnavailable, msg).WithDetails(detail)
}

func userActor(userID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Role: string(enums.UserRoleCustomer)}
}

func createdPayload(order *models.Order) payloads.OrderCreatedEvent {
	lines := make([]payloads.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			LineTotal: item.LineTotal.StringFixed(2),
		})
	}
	return payloads.OrderCreatedEvent{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		UserID:       order.UserID,
		Status:       order.Status,
		TotalAmount:  order.TotalAmount.StringFixed(2),
		Participants: order.Participants,
		Lines:        lines,
		CreatedAt:    order.CreatedAt,
	}
}

func asTyped(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
