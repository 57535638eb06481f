package cart

import (
	cartsvc "github.com/hartwellgoods/storefront-backend/internal/cart"
)

// lineNode renders one cart line with its bundle components nested beneath it.
type lineNode struct {
	ID            string        `json:"id"`
	MerchandiseID string        `json:"merchandise_id"`
	Quantity      int           `json:"quantity"`
	UnitCost      cartsvc.Money `json:"unit_cost"`
	LineCost      cartsvc.Money `json:"line_cost"`
	Optimistic    bool          `json:"optimistic,omitempty"`
	Children      []lineNode    `json:"children,omitempty"`
}

type cartView struct {
	CartID        string             `json:"cart_id,omitempty"`
	Lines         []lineNode         `json:"lines"`
	TotalQuantity int                `json:"total_quantity"`
	Cost          cartsvc.CartCost   `json:"cost"`
	DiscountCodes []string           `json:"discount_codes"`
	GiftCards     []cartsvc.GiftCard `json:"gift_cards"`
	CheckoutURL   string             `json:"checkout_url,omitempty"`
	InFlight      []string           `json:"in_flight"`
}

type mutationAccepted struct {
	ChannelKey string   `json:"channel_key"`
	Cart       cartView `json:"cart"`
}

func newCartView(view cartsvc.View) cartView {
	children := cartsvc.BuildChildrenMap(view.Lines)

	roots := cartsvc.Roots(view.Lines)
	nodes := make([]lineNode, 0, len(roots))
	for _, root := range roots {
		nodes = append(nodes, newLineNode(root, children, map[string]bool{}))
	}

	return cartView{
		CartID:        view.CartID,
		Lines:         nodes,
		TotalQuantity: view.TotalQuantity,
		Cost:          view.Cost,
		DiscountCodes: view.DiscountCodes,
		GiftCards:     view.GiftCards,
		CheckoutURL:   view.CheckoutURL,
		InFlight:      view.InFlight,
	}
}

// newLineNode nests children recursively. visited guards against a malformed
// parent cycle in backend data; a revisited id terminates that branch.
func newLineNode(line cartsvc.ViewLine, children map[string][]cartsvc.ViewLine, visited map[string]bool) lineNode {
	node := lineNode{
		ID:            line.ID,
		MerchandiseID: line.MerchandiseID,
		Quantity:      line.Quantity,
		UnitCost:      line.UnitCost,
		LineCost:      line.LineCost,
		Optimistic:    line.Optimistic,
	}
	if visited[line.ID] {
		return node
	}
	visited[line.ID] = true
	for _, child := range children[line.ID] {
		node.Children = append(node.Children, newLineNode(child, children, visited))
	}
	return node
}
