// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// TripleRequest identifies a stock record in request bodies.
// variantId is optional; omitted means the product has no variants.
type TripleRequest struct {
	ProductID   string `json:"productId" form:"productId" binding:"required"`
	VariantID   string `json:"variantId" form:"variantId"`
	WarehouseID string `json:"warehouseId" form:"warehouseId" binding:"required"`
}

// ToTriple parses the identifiers.
func (r TripleRequest) ToTriple() (entity.Triple, error) {
	productID, err := parseID("productId", r.ProductID)
	if err != nil {
		return entity.Triple{}, err
	}
	variantID, err := id.ParseOptional(r.VariantID)
	if err != nil {
		return entity.Triple{}, apperror.NewValidation("invalid variantId format")
	}
	warehouseID, err := parseID("warehouseId", r.WarehouseID)
	if err != nil {
		return entity.Triple{}, err
	}
	return entity.NewTriple(productID, variantID, warehouseID), nil
}

// ReferenceResponse is the wire form of an entity.Reference.
type ReferenceResponse struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// FromReference converts a reference to its wire form.
func FromReference(ref entity.Reference) *ReferenceResponse {
	if ref == nil {
		return nil
	}
	return &ReferenceResponse{Type: string(ref.Kind()), ID: ref.Ref()}
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Success Response ---

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// NewListResponse wraps items, never returning a null list.
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

// ParseOptionalID parses an optional id, naming the field on failure.
func ParseOptionalID(field, value string) (id.ID, error) {
	v, err := id.ParseOptional(value)
	if err != nil {
		return id.Nil(), apperror.NewValidation(fmt.Sprintf("invalid %s format", field))
	}
	return v, nil
}

// ParseID parses a required id, naming the field on failure.
func ParseID(field, value string) (id.ID, error) {
	return parseID(field, value)
}

func parseID(field, value string) (id.ID, error) {
	if value == "" {
		return id.Nil(), apperror.NewValidation(fmt.Sprintf("%s is required", field))
	}
	v, err := id.Parse(value)
	if err != nil {
		return id.Nil(), apperror.NewValidation(fmt.Sprintf("invalid %s format", field))
	}
	return v, nil
}
