package cart

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/hartwellgoods/storefront-backend/pkg/errors"
)

// Money is an exact currency amount.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
}

// Mul scales the amount by a whole quantity.
func (m Money) Mul(qty int) Money {
	return Money{
		Amount:       m.Amount.Mul(decimal.NewFromInt(int64(qty))),
		CurrencyCode: m.CurrencyCode,
	}
}

// Add sums two amounts. The receiver's currency wins unless it is unset.
func (m Money) Add(other Money) Money {
	currency := m.CurrencyCode
	if currency == "" {
		currency = other.CurrencyCode
	}
	return Money{
		Amount:       m.Amount.Add(other.Amount),
		CurrencyCode: currency,
	}
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// GiftCard is an applied gift card as reported by the commerce backend.
type GiftCard struct {
	ID             string `json:"id"`
	LastCharacters string `json:"last_characters"`
	Amount         Money  `json:"amount"`
}

// Line is one cart entry. A line may encode its bundle relationship either as
// a back-reference to its parent or as a nested component list; both appear in
// backend responses and both are honored when the tree is rebuilt.
type Line struct {
	ID            string `json:"id"`
	MerchandiseID string `json:"merchandise_id"`
	Quantity      int    `json:"quantity"`
	UnitCost      Money  `json:"unit_cost"`
	LineCost      Money  `json:"line_cost"`
	ParentLineID  string `json:"parent_line_id,omitempty"`
	Components    []Line `json:"components,omitempty"`
}

// CartCost groups the money aggregates of a snapshot.
type CartCost struct {
	Subtotal Money `json:"subtotal"`
	Total    Money `json:"total"`
	Tax      Money `json:"tax"`
}

// Snapshot is the last server-confirmed cart state. It is immutable once
// adopted and replaced wholesale by each successful mutation response.
type Snapshot struct {
	ID            string     `json:"id"`
	Lines         []Line     `json:"lines"`
	TotalQuantity int        `json:"total_quantity"`
	Cost          CartCost   `json:"cost"`
	DiscountCodes []string   `json:"discount_codes"`
	GiftCards     []GiftCard `json:"gift_cards"`
	CheckoutURL   string     `json:"checkout_url"`
}

// Kind identifies a mutation variant. The set is closed; Validate rejects
// anything outside it.
type Kind string

const (
	KindAdd             Kind = "add"
	KindSetQuantity     Kind = "setQuantity"
	KindRemove          Kind = "remove"
	KindUpdateDiscounts Kind = "updateDiscounts"
	KindAddGiftCard     Kind = "addGiftCard"
	KindRemoveGiftCard  Kind = "removeGiftCard"
)

// Mutation is a submitted-but-unconfirmed cart edit. Seq is the monotonic
// submission counter the coordinator uses to detect supersession.
type Mutation struct {
	Kind Kind
	Seq  uint64

	// add
	MerchandiseID string
	Quantity      int
	UnitCost      *Money
	SyntheticID   string

	// setQuantity
	LineID string

	// remove
	LineIDs []string

	// updateDiscounts
	DiscountCodes []string

	// gift cards
	GiftCardCode string
	GiftCardID   string
}

// NewAdd builds an add mutation and assigns the synthetic line id shown while
// the line is optimistic. unitCost is an optional costing hint from the UI.
func NewAdd(merchandiseID string, quantity int, unitCost *Money) Mutation {
	return Mutation{
		Kind:          KindAdd,
		MerchandiseID: merchandiseID,
		Quantity:      quantity,
		UnitCost:      unitCost,
		SyntheticID:   "optimistic-" + uuid.NewString(),
	}
}

func NewSetQuantity(lineID string, quantity int) Mutation {
	return Mutation{Kind: KindSetQuantity, LineID: lineID, Quantity: quantity}
}

func NewRemove(lineIDs []string) Mutation {
	return Mutation{Kind: KindRemove, LineIDs: lineIDs}
}

func NewUpdateDiscounts(codes []string) Mutation {
	return Mutation{Kind: KindUpdateDiscounts, DiscountCodes: codes}
}

func NewAddGiftCard(code string) Mutation {
	return Mutation{Kind: KindAddGiftCard, GiftCardCode: code}
}

func NewRemoveGiftCard(giftCardID string) Mutation {
	return Mutation{Kind: KindRemoveGiftCard, GiftCardID: giftCardID}
}

// ChannelKey derives the serialization lane for this mutation. Quantity edits
// and removals targeting one line share a lane, so a remove always supersedes
// a pending quantity change for the same line.
func (m Mutation) ChannelKey() string {
	switch m.Kind {
	case KindSetQuantity:
		return "line:" + m.LineID
	case KindRemove:
		return "line:" + strings.Join(sortedUnique(m.LineIDs), ",")
	case KindAdd:
		return "add:" + m.MerchandiseID
	case KindUpdateDiscounts:
		return "discounts"
	case KindAddGiftCard:
		return "giftcard:add"
	case KindRemoveGiftCard:
		return "giftcard:remove"
	}
	return "unknown"
}

// Validate checks the kind-specific payload.
func (m Mutation) Validate() error {
	switch m.Kind {
	case KindAdd:
		if strings.TrimSpace(m.MerchandiseID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "merchandise id is required")
		}
		if m.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
	case KindSetQuantity:
		if strings.TrimSpace(m.LineID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "line id is required")
		}
		if m.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
	case KindRemove:
		if len(m.LineIDs) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "at least one line id is required")
		}
		for _, id := range m.LineIDs {
			if strings.TrimSpace(id) == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "line ids must be non-empty")
			}
		}
	case KindUpdateDiscounts:
		// An empty code list clears all discounts; nothing to check.
	case KindAddGiftCard:
		if strings.TrimSpace(m.GiftCardCode) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "gift card code is required")
		}
	case KindRemoveGiftCard:
		if strings.TrimSpace(m.GiftCardID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "gift card id is required")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown mutation kind %q", m.Kind))
	}
	return nil
}

func sortedUnique(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
