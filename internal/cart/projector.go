package cart

import "sort"

// ViewLine is a cart line as shown to the user. Optimistic lines have no
// server-confirmed id yet; controls that need one stay disabled until the
// owning mutation settles and a real line replaces the synthetic one.
type ViewLine struct {
	Line
	Optimistic bool `json:"optimistic,omitempty"`
}

// View is what the presentation layer renders. It is derived, never stored.
type View struct {
	CartID        string     `json:"cart_id,omitempty"`
	Lines         []ViewLine `json:"lines"`
	TotalQuantity int        `json:"total_quantity"`
	Cost          CartCost   `json:"cost"`
	DiscountCodes []string   `json:"discount_codes"`
	GiftCards     []GiftCard `json:"gift_cards"`
	CheckoutURL   string     `json:"checkout_url,omitempty"`
	InFlight      []string   `json:"in_flight"`
}

// Project merges the snapshot with all currently-pending mutations, applied in
// submission order. Pure function: same inputs, same output, no side effects.
// A nil snapshot projects from an empty cart so an optimistic add can render
// before the first confirmed load.
func Project(snap *Snapshot, pending []Mutation) View {
	view := View{
		Lines:         []ViewLine{},
		DiscountCodes: []string{},
		GiftCards:     []GiftCard{},
		InFlight:      []string{},
	}
	if snap != nil {
		view.CartID = snap.ID
		view.Cost = snap.Cost
		view.CheckoutURL = snap.CheckoutURL
		view.Lines = make([]ViewLine, 0, len(snap.Lines))
		for _, line := range snap.Lines {
			view.Lines = append(view.Lines, ViewLine{Line: line})
		}
		if snap.DiscountCodes != nil {
			view.DiscountCodes = append(view.DiscountCodes, snap.DiscountCodes...)
		}
		if snap.GiftCards != nil {
			view.GiftCards = append(view.GiftCards, snap.GiftCards...)
		}
	}

	ordered := make([]Mutation, len(pending))
	copy(ordered, pending)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	for _, m := range ordered {
		switch m.Kind {
		case KindAdd:
			view.Lines = append(view.Lines, optimisticLine(m))
		case KindSetQuantity:
			for i := range view.Lines {
				if view.Lines[i].ID != m.LineID {
					continue
				}
				// The requested target quantity wins outright; recomputing from
				// a lagging snapshot would compound rapid stepper edits.
				view.Lines[i].Quantity = m.Quantity
				if !view.Lines[i].UnitCost.IsZero() {
					view.Lines[i].LineCost = view.Lines[i].UnitCost.Mul(m.Quantity)
				}
			}
		case KindRemove:
			removed := map[string]struct{}{}
			for _, id := range m.LineIDs {
				removed[id] = struct{}{}
			}
			kept := view.Lines[:0]
			for _, line := range view.Lines {
				if _, gone := removed[line.ID]; !gone {
					kept = append(kept, line)
				}
			}
			view.Lines = kept
		case KindUpdateDiscounts:
			view.DiscountCodes = append([]string{}, m.DiscountCodes...)
		case KindAddGiftCard:
			view.GiftCards = append(view.GiftCards, GiftCard{
				LastCharacters: lastCharacters(m.GiftCardCode, 4),
			})
		case KindRemoveGiftCard:
			kept := view.GiftCards[:0]
			for _, gc := range view.GiftCards {
				if gc.ID != m.GiftCardID {
					kept = append(kept, gc)
				}
			}
			view.GiftCards = kept
		}
	}

	view.TotalQuantity = 0
	subtotal := Money{}
	for _, line := range view.Lines {
		view.TotalQuantity += line.Quantity
		subtotal = subtotal.Add(line.LineCost)
	}
	view.Cost.Subtotal = subtotal

	return view
}

func optimisticLine(m Mutation) ViewLine {
	line := Line{
		ID:            m.SyntheticID,
		MerchandiseID: m.MerchandiseID,
		Quantity:      m.Quantity,
	}
	if m.UnitCost != nil {
		line.UnitCost = *m.UnitCost
		line.LineCost = m.UnitCost.Mul(m.Quantity)
	}
	return ViewLine{Line: line, Optimistic: true}
}

func lastCharacters(code string, n int) string {
	if len(code) <= n {
		return code
	}
	return code[len(code)-n:]
}
