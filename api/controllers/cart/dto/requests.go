package cartdto

import "github.com/google/uuid"

// OwnerRequest carries the optional body guestToken. Every cart request
// embeds it so the token may be sent in the body or in the header.
type OwnerRequest struct {
	GuestToken string `json:"guestToken" validate:"omitempty,max=128"`
}

func (o *OwnerRequest) Guest() string { return o.GuestToken }

type AddItemRequest struct {
	OwnerRequest
	ProductID uuid.UUID `json:"productId" validate:"required"`
	// Quantity defaults to one when omitted.
	Quantity *int `json:"quantity"`
}

type RemoveItemRequest struct {
	OwnerRequest
	ProductID uuid.UUID `json:"productId" validate:"required"`
}

type UpdateQuantityRequest struct {
	OwnerRequest
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity"`
}

type ParticipantRequest struct {
	OwnerRequest
	Name string `json:"name"`
}

type MigrateRequest struct {
	GuestToken string `json:"guestToken"`
}

// ParticipantsResponse lists participant names in insertion order.
type ParticipantsResponse struct {
	Participants []string `json:"participants"`
	Count        int      `json:"count"`
}
