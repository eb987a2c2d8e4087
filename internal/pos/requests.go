package pos

import (
	"TableSide/internal/cart"
	"TableSide/internal/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type AddRequest struct {
	ProductID int64          `json:"product_id"`
	Quantity  int            `json:"quantity"`
	Selection cart.Selection `json:"selection"`
	Note      string         `json:"note"`
	Staff     string         `json:"staff"`
}

func (r AddRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ProductID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Quantity, validation.Min(0), validation.Max(999)),
		validation.Field(&r.Note, validation.Length(0, 255)),
	)
}

type DiscountRequest struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
	Staff  string `json:"staff"`
}

func (r DiscountRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Amount, validation.Required),
	)
}

var actionStatuses = []interface{}{models.StatusGift, models.StatusWaste, models.StatusCancel}

type ActionRequest struct {
	Action models.Status    `json:"action"`
	Units  []models.UnitRef `json:"units"`
	Reason string           `json:"reason"`
	Note   string           `json:"note"`
	Staff  string           `json:"staff"`
}

func (r ActionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Action, validation.Required, validation.In(actionStatuses...)),
		validation.Field(&r.Units, validation.Required),
		validation.Field(&r.Reason, validation.Length(0, 255)),
	)
}

type MoveRequest struct {
	To    string `json:"to"`
	Merge bool   `json:"merge"`
}

func (r MoveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.To, validation.Required, validation.Length(1, 32)),
	)
}

// validate turns an ozzo error into a validation error.
func validate(v validation.Validatable) error {
	if err := v.Validate(); err != nil {
		return models.Validation("%v", err)
	}
	return nil
}
