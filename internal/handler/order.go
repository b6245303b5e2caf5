package handler

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/storekit/storefront/internal/domain/order"
)

type paymentResponse struct {
	Provider      string `json:"provider"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type orderTotalsResponse struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Shipping   decimal.Decimal `json:"shipping"`
	Tax        decimal.Decimal `json:"tax"`
	Discount   decimal.Decimal `json:"discount"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	Number          string              `json:"number"`
	Status          string              `json:"status"`
	Items           []order.Item        `json:"items"`
	Totals          orderTotalsResponse `json:"totals"`
	Currency        string              `json:"currency"`
	Payment         paymentResponse     `json:"payment"`
	ShippingAddress order.Address       `json:"shipping_address"`
	BillingAddress  *order.Address      `json:"billing_address,omitempty"`
	Contact         order.ContactInfo   `json:"contact"`
	ShippingMethod  string              `json:"shipping_method,omitempty"`
	Notes           []string            `json:"notes,omitempty"`
	TrackingNumber  string              `json:"tracking_number,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:     o.ID,
		Number: o.Number,
		Status: string(o.Status),
		Items:  o.Items,
		Totals: orderTotalsResponse{
			Subtotal:   o.Totals.Subtotal,
			Shipping:   o.Totals.Shipping,
			Tax:        o.Totals.Tax,
			Discount:   o.Totals.Discount,
			GrandTotal: o.Totals.GrandTotal,
		},
		Currency: o.Currency,
		Payment: paymentResponse{
			Provider:      o.Payment.Provider,
			Status:        string(o.Payment.Status),
			TransactionID: o.Payment.TransactionID,
		},
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		Contact:         o.Contact,
		ShippingMethod:  o.ShippingMethod,
		Notes:           o.Notes,
		TrackingNumber:  o.TrackingNumber,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

type placeOrderRequest struct {
	ShippingAddress order.Address     `json:"shipping_address"`
	BillingAddress  *order.Address    `json:"billing_address"`
	Contact         order.ContactInfo `json:"contact"`
	ShippingMethod  string            `json:"shipping_method"`
	PaymentMethod   string            `json:"payment_method"`
	GuestID         string            `json:"guest_id"`
	Notes           string            `json:"notes"`
}

func (r placeOrderRequest) validate() string {
	switch {
	case r.ShippingAddress.Name == "" || r.ShippingAddress.Line1 == "" ||
		r.ShippingAddress.City == "" || r.ShippingAddress.Country == "":
		return "shipping_address requires name, line1, city and country"
	case r.Contact.Email == "":
		return "contact.email is required"
	case r.PaymentMethod == "":
		return "payment_method is required"
	}
	return ""
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok || actor.UserID == "" {
		writeErrorKind(w, http.StatusUnauthorized, kindUnauthorized, "user authentication required")
		return
	}

	var req placeOrderRequest
	if err := decodeJSONLenient(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		badRequest(w, msg)
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:          actor.UserID,
		GuestID:         req.GuestID,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Contact:         req.Contact,
		ShippingMethod:  req.ShippingMethod,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

type pageMeta struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Meta   pageMeta        `json:"meta"`
}

func pageFromQuery(r *http.Request) order.Page {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return order.Page{Page: page, Limit: limit}.Normalize()
}

func toOrderListResponse(orders []order.Order, total int, page order.Page) orderListResponse {
	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}

	totalPages := int(math.Ceil(float64(total) / float64(page.Limit)))
	return orderListResponse{
		Orders: out,
		Meta: pageMeta{
			Page:        page.Page,
			Limit:       page.Limit,
			Total:       total,
			TotalPages:  totalPages,
			HasNextPage: page.Page < totalPages,
			HasPrevPage: page.Page > 1 && total > 0,
		},
	}
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok || actor.UserID == "" {
		writeErrorKind(w, http.StatusUnauthorized, kindUnauthorized, "user authentication required")
		return
	}

	page := pageFromQuery(r)
	filter := order.ListFilter{
		UserID: actor.UserID,
		Status: order.Status(r.URL.Query().Get("status")),
	}

	orders, total, err := h.orders.ListOrders(r.Context(), filter, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderListResponse(orders, total, page))
}

// getOrder returns one of the requesting user's orders. Another user's order
// reads as not found rather than forbidden so order ids are not probeable.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok || actor.UserID == "" {
		writeErrorKind(w, http.StatusUnauthorized, kindUnauthorized, "user authentication required")
		return
	}

	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if o.UserID != actor.UserID {
		writeErrorKind(w, http.StatusNotFound, kindNotFound, order.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// listOrders is the admin view over all orders, filterable by user and
// status.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	filter := order.ListFilter{
		UserID: r.URL.Query().Get("user_id"),
		Status: order.Status(r.URL.Query().Get("status")),
	}

	orders, total, err := h.orders.ListOrders(r.Context(), filter, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderListResponse(orders, total, page))
}

// getOrderByNumber is the admin lookup by customer-facing order number, the
// identifier customers quote in support requests.
func (h *Handler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrderByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type refundOrderRequest struct {
	// Amount is a decimal string. Empty means a full refund.
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

func (h *Handler) refundOrder(w http.ResponseWriter, r *http.Request) {
	var req refundOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	var amount *decimal.Decimal
	if req.Amount != "" {
		d, err := decimal.NewFromString(req.Amount)
		if err != nil {
			badRequest(w, "amount must be a decimal string")
			return
		}
		amount = &d
	}

	o, err := h.orders.RefundOrder(r.Context(), chi.URLParam(r, "id"), amount, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type updateOrderStatusRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateOrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), order.Status(req.Status), req.TrackingNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
