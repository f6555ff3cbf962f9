package transport

import "github.com/google/uuid"

type AddLineRequest struct {
	ProductID uuid.UUID `json:"product_id"`
}

type FinalizeRequest struct {
	StoreID *string `json:"store_id"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
