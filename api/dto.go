/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request structs carry validator tags (go-playground/validator); handlers
  run them before touching the domain. Domain rules (meal type vocabulary,
  cutoff, uniqueness) stay in the canteen package.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/canteen-engine/canteen"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CancellationDTO represents a cancellation with its resolved price.
type CancellationDTO struct {
	ID        string `json:"id"`
	ChildID   string `json:"child_id"`
	Date      string `json:"date"`
	MealType  string `json:"meal_type"`
	Reason    string `json:"reason,omitempty"`
	Refunded  bool   `json:"refunded"`
	Price     string `json:"price"`
	CreatedAt string `json:"created_at,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
}

// CancelMealRequest is the request to cancel a meal.
type CancelMealRequest struct {
	ChildID  string `json:"child_id" validate:"required"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	MealType string `json:"meal_type" validate:"required"`
	Reason   string `json:"reason,omitempty"`
}

// ChildSettlementDTO is one child's settlement entry.
type ChildSettlementDTO struct {
	ChildID         string            `json:"child_id"`
	ChildName       string            `json:"child_name,omitempty"`
	GroupID         string            `json:"group_id,omitempty"`
	GroupName       string            `json:"group_name,omitempty"`
	Cancellations   []CancellationDTO `json:"cancellations"`
	TotalUnrefunded string            `json:"total_unrefunded"`
	TotalRefunded   string            `json:"total_refunded"`
}

// SettlementSummaryDTO is the grand summary over a settlement listing.
type SettlementSummaryDTO struct {
	ChildCount        int    `json:"child_count"`
	CancellationCount int    `json:"cancellation_count"`
	TotalUnrefunded   string `json:"total_unrefunded"`
	TotalRefunded     string `json:"total_refunded"`
}

// SettlementResponse wraps a settlement listing.
type SettlementResponse struct {
	Settlements []ChildSettlementDTO `json:"settlements"`
	Summary     SettlementSummaryDTO `json:"summary"`
}

// BulkIDsRequest carries the id set for the bulk reconciliation actions.
type BulkIDsRequest struct {
	CancellationIDs []string `json:"cancellation_ids" validate:"required,min=1"`
}

// MarkRefundedResponse reports how many records were actually flipped.
type MarkRefundedResponse struct {
	Count int `json:"count"`
}

// PaymentDTO represents a reversing payment entry.
type PaymentDTO struct {
	ID          string `json:"id"`
	ChildID     string `json:"child_id"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`
	PaidDate    string `json:"paid_date,omitempty"`
}

// GeneratePaymentsResponse wraps the created reversing entries.
type GeneratePaymentsResponse struct {
	Payments []PaymentDTO `json:"payments"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCancellationDTO(v canteen.CancellationView) CancellationDTO {
	dto := CancellationDTO{
		ID:       string(v.ID),
		ChildID:  string(v.ChildID),
		Date:     v.Date.String(),
		MealType: string(v.MealType),
		Reason:   v.Reason,
		Refunded: v.Refunded,
		Price:    v.Price.String(),
	}
	if !v.CreatedAt.IsZero() {
		dto.CreatedAt = v.CreatedAt.Format(time.RFC3339)
	}
	dto.CreatedBy = v.CreatedBy
	return dto
}

func toSettlementDTO(s canteen.ChildSettlement) ChildSettlementDTO {
	dto := ChildSettlementDTO{
		ChildID:         string(s.Child.ID),
		ChildName:       s.Child.Name,
		GroupID:         string(s.Child.GroupID),
		Cancellations:   make([]CancellationDTO, 0, len(s.Cancellations)),
		TotalUnrefunded: s.TotalUnrefunded.String(),
		TotalRefunded:   s.TotalRefunded.String(),
	}
	if s.Group != nil {
		dto.GroupName = s.Group.Name
	}
	for _, c := range s.Cancellations {
		dto.Cancellations = append(dto.Cancellations, toCancellationDTO(c))
	}
	return dto
}

func toPaymentDTO(p canteen.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:          p.ID,
		ChildID:     string(p.ChildID),
		Amount:      p.Amount.String(),
		Description: p.Description,
		DueDate:     p.DueDate.Format(time.RFC3339),
		Status:      string(p.Status),
	}
	if p.PaidDate != nil {
		dto.PaidDate = p.PaidDate.Format(time.RFC3339)
	}
	return dto
}
