package dtos

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/realvista/backend/modules/catalog/domain/contentitem"
	"github.com/realvista/backend/pkg/constants"
)

// PayloadDTO is the wire shape of a proposed payload. Money is accepted in
// minor units with an ISO 4217 currency code.
type PayloadDTO struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"max=10000"`
	Location    string `json:"location" validate:"max=255"`

	Price    int64  `json:"price" validate:"min=0"`
	Currency string `json:"currency" validate:"omitempty,len=3,uppercase"`

	AreaM2 float64 `json:"area_m2" validate:"min=0"`
	Rooms  int     `json:"rooms" validate:"min=0"`

	CoverImageURL string   `json:"cover_image_url" validate:"omitempty,url"`
	GalleryURLs   []string `json:"gallery_urls" validate:"dive,url"`
	Features      []string `json:"features" validate:"dive,max=100"`
	Amenities     []string `json:"amenities" validate:"dive,max=100"`

	LinkURL        string `json:"link_url" validate:"omitempty,url"`
	TargetAudience string `json:"target_audience" validate:"max=100"`
	DisplayOrder   int    `json:"display_order" validate:"min=0"`

	Active bool `json:"active"`
}

func (d *PayloadDTO) ToDomain() contentitem.Payload {
	return contentitem.Payload{
		Title:          d.Title,
		Description:    d.Description,
		Location:       d.Location,
		Price:          d.Price,
		Currency:       d.Currency,
		AreaM2:         d.AreaM2,
		Rooms:          d.Rooms,
		CoverImageURL:  d.CoverImageURL,
		GalleryURLs:    d.GalleryURLs,
		Features:       d.Features,
		Amenities:      d.Amenities,
		LinkURL:        d.LinkURL,
		TargetAudience: d.TargetAudience,
		DisplayOrder:   d.DisplayOrder,
		Active:         d.Active,
	}
}

type CreateProposalDTO struct {
	Kind     string     `json:"kind" validate:"required,oneof=property banner"`
	TargetID *uuid.UUID `json:"target_id"`
	Payload  PayloadDTO `json:"payload" validate:"required"`
}

func (d *CreateProposalDTO) Ok() (map[string]string, bool) {
	return validateStruct(d)
}

type UpdatePayloadDTO struct {
	Payload PayloadDTO `json:"payload" validate:"required"`
}

func (d *UpdatePayloadDTO) Ok() (map[string]string, bool) {
	return validateStruct(d)
}

type DecisionDTO struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

func (d *DecisionDTO) Ok() (map[string]string, bool) {
	return validateStruct(d)
}

type WithdrawDTO struct {
	Mode string `json:"mode" validate:"required,oneof=discard to_draft"`
}

func (d *WithdrawDTO) Ok() (map[string]string, bool) {
	return validateStruct(d)
}

func validateStruct(dto any) (map[string]string, bool) {
	errorMessages := map[string]string{}
	errs := constants.Validate.Struct(dto)
	if errs == nil {
		return errorMessages, true
	}
	for _, err := range errs.(validator.ValidationErrors) {
		errorMessages[err.Field()] = fmt.Sprintf("failed %q constraint", err.Tag())
	}
	return errorMessages, len(errorMessages) == 0
}
