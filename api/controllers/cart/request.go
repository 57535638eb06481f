package cart

import (
	"github.com/shopspring/decimal"

	cartsvc "github.com/hartwellgoods/storefront-backend/internal/cart"
)

type moneyInput struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
}

type addLineRequest struct {
	MerchandiseID string      `json:"merchandise_id" validate:"required"`
	Quantity      int         `json:"quantity" validate:"required,min=1"`
	UnitCost      *moneyInput `json:"unit_cost,omitempty"`
}

func (p addLineRequest) toMutation() cartsvc.Mutation {
	var unitCost *cartsvc.Money
	if p.UnitCost != nil {
		unitCost = &cartsvc.Money{
			Amount:       p.UnitCost.Amount,
			CurrencyCode: p.UnitCost.CurrencyCode,
		}
	}
	return cartsvc.NewAdd(p.MerchandiseID, p.Quantity, unitCost)
}

type updateLineRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

type removeLinesRequest struct {
	LineIDs []string `json:"line_ids" validate:"required,min=1,dive,required"`
}

type updateDiscountsRequest struct {
	// An empty code list clears every applied discount.
	Codes []string `json:"codes"`
}

type addGiftCardRequest struct {
	Code string `json:"code" validate:"required"`
}
