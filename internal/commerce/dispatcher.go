package commerce

import (
	"context"
	"fmt"

	"github.com/hartwellgoods/storefront-backend/internal/cart"
	pkgerrors "github.com/hartwellgoods/storefront-backend/pkg/errors"
)

// Dispatcher adapts the backend client to the cart engine's dispatch surface,
// mapping each mutation kind onto one remote call. An add against a session
// with no cart yet creates the cart; every other kind requires one to exist.
type Dispatcher struct {
	client *Client
}

func NewDispatcher(client *Client) (*Dispatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("commerce client required")
	}
	return &Dispatcher{client: client}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, cartID string, m cart.Mutation) (*cart.Snapshot, error) {
	switch m.Kind {
	case cart.KindAdd:
		lines := []LineInput{{MerchandiseID: m.MerchandiseID, Quantity: m.Quantity}}
		if cartID == "" {
			return d.client.CreateCart(ctx, lines)
		}
		return d.client.AddLines(ctx, cartID, lines)
	case cart.KindSetQuantity:
		if cartID == "" {
			return nil, errNoCart(m)
		}
		return d.client.UpdateLine(ctx, cartID, m.LineID, m.Quantity)
	case cart.KindRemove:
		if cartID == "" {
			return nil, errNoCart(m)
		}
		return d.client.RemoveLines(ctx, cartID, m.LineIDs)
	case cart.KindUpdateDiscounts:
		if cartID == "" {
			return nil, errNoCart(m)
		}
		return d.client.UpdateDiscountCodes(ctx, cartID, m.DiscountCodes)
	case cart.KindAddGiftCard:
		if cartID == "" {
			return nil, errNoCart(m)
		}
		return d.client.AddGiftCard(ctx, cartID, m.GiftCardCode)
	case cart.KindRemoveGiftCard:
		if cartID == "" {
			return nil, errNoCart(m)
		}
		return d.client.RemoveGiftCard(ctx, cartID, m.GiftCardID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown mutation kind %q", m.Kind))
}

// GetCart satisfies the engine's bootstrap fetcher.
func (d *Dispatcher) GetCart(ctx context.Context, cartID string) (*cart.Snapshot, error) {
	return d.client.GetCart(ctx, cartID)
}

func errNoCart(m cart.Mutation) error {
	return pkgerrors.New(pkgerrors.CodeValidation,
		fmt.Sprintf("%s requires an existing cart", m.Kind))
}
