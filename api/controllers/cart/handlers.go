package cart

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hartwellgoods/storefront-backend/api/middleware"
	"github.com/hartwellgoods/storefront-backend/api/responses"
	"github.com/hartwellgoods/storefront-backend/api/validators"
	cartsvc "github.com/hartwellgoods/storefront-backend/internal/cart"
	pkgerrors "github.com/hartwellgoods/storefront-backend/pkg/errors"
	"github.com/hartwellgoods/storefront-backend/pkg/logger"
)

// EngineProvider resolves the engine bound to a session token; the registry
// satisfies it.
type EngineProvider interface {
	Get(ctx context.Context, token string) (*cartsvc.Engine, error)
}

const defaultSettleWait = 10 * time.Second

// Fetch returns the projected cart for the session.
func Fetch(engines EngineProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := resolveEngine(r, engines)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartView(engine.View()))
	}
}

// AddLine submits an add mutation. The response carries the optimistic
// projection; the confirmed state arrives on a later fetch.
func AddLine(engines EngineProvider, settleWait time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		submit(w, r, engines, settleWait, logg, payload.toMutation())
	}
}

// UpdateLine submits an absolute quantity change for one line.
func UpdateLine(engines EngineProvider, settleWait time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID := chi.URLParam(r, "lineID")
		var payload updateLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		submit(w, r, engines, settleWait, logg, cartsvc.NewSetQuantity(lineID, payload.Quantity))
	}
}

// RemoveLines submits a removal for one or more lines.
func RemoveLines(engines EngineProvider, settleWait time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload removeLinesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		submit(w, r, engines, settleWait, logg, cartsvc.NewRemove(payload.LineIDs))
	}
}

// UpdateDiscounts replaces the applied discount code set wholesale.
func UpdateDiscounts(engines EngineProvider, settleWait time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload updateDiscountsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		submit(w, r, engines, settleWait, logg, cartsvc.NewUpdateDiscounts(payload.Codes))
	}
}

// AddGiftCard applies a gift card by code.
func AddGiftCard(engines EngineProvider, settleWait time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addGiftCardRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		submit(w, r, engines, settleWait, logg, cartsvc.NewAddGiftCard(payload.Code))
	}
}

// RemoveGiftCard detaches an applied gift card by id.
func RemoveGiftCard(engines EngineProvider, settleWait time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		giftCardID := chi.URLParam(r, "giftCardID")
		submit(w, r, engines, settleWait, logg, cartsvc.NewRemoveGiftCard(giftCardID))
	}
}

// submit runs the shared mutation path: resolve the engine, register the
// mutation, and answer with the optimistic projection. With ?wait=1 the
// handler blocks until the mutation's channel settles and surfaces its error,
// for clients that prefer confirmed state over latency.
func submit(w http.ResponseWriter, r *http.Request, engines EngineProvider, settleWait time.Duration, logg *logger.Logger, m cartsvc.Mutation) {
	engine, err := resolveEngine(r, engines)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	key, err := engine.Submit(r.Context(), m)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	status := http.StatusAccepted
	if wantsWait(r) {
		if settleWait <= 0 {
			settleWait = defaultSettleWait
		}
		ctx, cancel := context.WithTimeout(r.Context(), settleWait)
		defer cancel()
		if err := engine.WaitSettled(ctx, key); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status = http.StatusOK
	}

	responses.WriteSuccessStatus(w, status, mutationAccepted{
		ChannelKey: key,
		Cart:       newCartView(engine.View()),
	})
}

func resolveEngine(r *http.Request, engines EngineProvider) (*cartsvc.Engine, error) {
	token := middleware.CartSessionFromContext(r.Context())
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart session missing")
	}
	engine, err := engines.Get(r.Context(), token)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

func wantsWait(r *http.Request) bool {
	switch r.URL.Query().Get("wait") {
	case "1", "true":
		return true
	}
	return false
}
