package api

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-pos/internal/checkout"
	"github.com/noah-isme/kasir-pos/internal/common"
	"github.com/noah-isme/kasir-pos/internal/qr"
	"github.com/noah-isme/kasir-pos/internal/session"
)

// Handler wires the cashier session to HTTP.
type Handler struct {
	Session  *session.Session
	QR       qr.Renderer
	Validate *validator.Validate
	Logger   zerolog.Logger
}

type addItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Qty       int   `json:"qty" validate:"required,gt=0"`
}

type changeQtyRequest struct {
	Delta int `json:"delta" validate:"required"`
}

type selectCurrencyRequest struct {
	Currency string `json:"currency" validate:"required,min=2,max=8"`
}

type checkoutRequest struct {
	// Paid may be omitted or zero; the processor auto-fills the exact
	// amount due in that case.
	Paid float64 `json:"paid"`
}

// Products lists catalog products, filtered by the q query parameter.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	products := h.Session.Search(r.URL.Query().Get("q"))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"products": products,
			"count":    len(products),
		},
	})
}

// Rates returns the selectable currencies and the current selection.
func (h *Handler) Rates(w http.ResponseWriter, r *http.Request) {
	codes, selected := h.Session.Currencies()
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"base":       h.Session.BaseCurrency(),
			"currencies": codes,
			"selected":   selected,
		},
	})
}

// Cart returns the priced cart in the selected display currency.
func (h *Handler) Cart(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Session.CartView()})
}

// AddItem adds a product to the cart, merging into an existing line.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var payload addItemRequest
	if !h.decode(w, r, &payload) {
		return
	}
	if err := h.Session.AddToCart(r.Context(), payload.ProductID, payload.Qty); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Session.CartView()})
}

// ChangeQty adjusts a line's quantity by a signed delta. Dropping to zero or
// below removes the line; unknown products are a no-op.
func (h *Handler) ChangeQty(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	var payload changeQtyRequest
	if !h.decode(w, r, &payload) {
		return
	}
	h.Session.ChangeQuantity(r.Context(), productID, payload.Delta)
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Session.CartView()})
}

// RemoveItem deletes the product's cart line if present.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	h.Session.RemoveFromCart(r.Context(), productID)
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Session.CartView()})
}

// ClearCart empties the cart, typically to start the next sale.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.Session.ClearCart(r.Context())
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Session.CartView()})
}

// SelectCurrency switches the display currency without touching the cart.
func (h *Handler) SelectCurrency(w http.ResponseWriter, r *http.Request) {
	var payload selectCurrencyRequest
	if !h.decode(w, r, &payload) {
		return
	}
	if err := h.Session.SelectCurrency(r.Context(), payload.Currency); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Session.CartView()})
}

// Refresh refetches the catalog and rates together, all or nothing.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Refresh(r.Context()); err != nil {
		common.WriteError(w, err)
		return
	}
	codes, selected := h.Session.Currencies()
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"products":   len(h.Session.Search("")),
			"currencies": codes,
			"selected":   selected,
		},
	})
}

// Checkout runs one checkout attempt. A settled attempt carries the QR-coded
// payment payload; a rejected one reports the reason and leaves the cart
// untouched.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var payload checkoutRequest
	// an absent body is a valid "let the till auto-fill" request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && err != io.EOF {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid payload", nil)
		return
	}
	res := h.Session.Checkout(r.Context(), payload.Paid)
	if res.State == checkout.Rejected {
		status := http.StatusUnprocessableEntity
		message := "checkout rejected"
		switch res.Reason {
		case checkout.ReasonEmptyCart:
			message = "cart total must be positive"
		case checkout.ReasonInsufficientPayment:
			message = "tendered amount is below the amount due"
		}
		common.JSONError(w, status, string(res.Reason), message, res)
		return
	}

	body := map[string]any{"checkout": res}
	if res.Payload != "" {
		body["qr"] = h.renderQR(res.Payload)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": body})
}

// renderQR encodes the payload locally and always includes the remote
// fallback URL so a client can still display a code if local generation
// failed.
func (h *Handler) renderQR(payload string) map[string]any {
	out := map[string]any{"fallbackUrl": h.QR.FallbackURL(payload)}
	png, err := h.QR.Encode(payload)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("generate payment qr")
		return out
	}
	out["png"] = base64.StdEncoding.EncodeToString(png)
	return out
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid payload", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(dst); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
			return false
		}
	}
	return true
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid product id", nil)
		return 0, false
	}
	return id, true
}
