//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"strings"
	"testing"
)

var orderNumberPattern = regexp.MustCompile(`^ORD\d{10}$`)

type addressRequest struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type contactRequest struct {
	Email string `json:"email"`
}

type placeOrderRequest struct {
	ShippingAddress addressRequest `json:"shipping_address"`
	Contact         contactRequest `json:"contact"`
	PaymentMethod   string         `json:"payment_method"`
}

func validOrderRequest() placeOrderRequest {
	return placeOrderRequest{
		ShippingAddress: addressRequest{
			Name:       "Ada Lovelace",
			Line1:      "12 Analytical Way",
			City:       "London",
			PostalCode: "N1 9GU",
			Country:    "GB",
		},
		Contact:       contactRequest{Email: "ada@example.com"},
		PaymentMethod: "demo",
	}
}

func TestPlaceOrder_NoAuth(t *testing.T) {
	resp := doPost(t, "/api/orders", validOrderRequest())
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_GuestForbidden(t *testing.T) {
	resp := doPost(t, "/api/orders", validOrderRequest(), asGuest("it-guest-order"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	resp := doPost(t, "/api/orders", validOrderRequest(), asUser(userToken(t, "it-user-empty")))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_Checkout(t *testing.T) {
	user := asUser(userToken(t, "it-user-checkout"))

	// 5x Enamel Camp Mug at 14: subtotal 70, tax 7, free shipping.
	resp := doPost(t, "/api/cart/items", addItemRequest{ProductID: "p-1003", Quantity: 5}, user)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d", resp.StatusCode)
	}

	resp = doPost(t, "/api/orders", validOrderRequest(), user)
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	o := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	if !orderNumberPattern.MatchString(o.Number) {
		t.Errorf("order number %q does not match ORD<yymmdd><nnnn>", o.Number)
	}
	if o.Status != "processing" {
		t.Errorf("status: got %q, want %q", o.Status, "processing")
	}
	if o.Payment.Status != "completed" || o.Payment.Provider != "demo" {
		t.Errorf("payment: got %+v", o.Payment)
	}
	if o.Totals.Subtotal != "70" || o.Totals.Tax != "7" || o.Totals.Shipping != "0" {
		t.Errorf("totals: got %+v", o.Totals)
	}
	if o.Totals.GrandTotal != "77" {
		t.Errorf("grand total: got %q, want %q", o.Totals.GrandTotal, "77")
	}

	// Stock is reserved and the cart is emptied.
	resp = doGet(t, "/api/products/p-1003")
	p := decodeJSON[productResponse](t, resp)
	resp.Body.Close()
	if p.Stock != 195 {
		t.Errorf("stock after checkout: got %d, want 195", p.Stock)
	}

	resp = doGet(t, "/api/cart", user)
	c := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(c.Items) != 0 {
		t.Errorf("cart should be empty after checkout, got %d items", len(c.Items))
	}

	// The order is readable by its owner but hidden from other users.
	resp = doGet(t, "/api/orders/"+o.ID, user)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner read: expected 200, got %d", resp.StatusCode)
	}

	resp = doGet(t, "/api/orders/"+o.ID, asUser(userToken(t, "it-user-other")))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign read: expected 404, got %d", resp.StatusCode)
	}
}

func TestAdminOrders_RequiresAPIKey(t *testing.T) {
	resp := doGet(t, "/api/orders")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = doGet(t, "/api/orders", asAdmin("wrong-key"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", resp.StatusCode)
	}
}

func TestAdminOrders_List(t *testing.T) {
	resp := doGet(t, "/api/orders", asAdmin(testAPIKey))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	list := decodeJSON[orderListResponse](t, resp)
	if list.Meta.Page != 1 || list.Meta.Limit != 20 {
		t.Errorf("meta defaults: got %+v", list.Meta)
	}
	for _, o := range list.Orders {
		if !strings.HasPrefix(o.Number, "ORD") {
			t.Errorf("order %s has malformed number %q", o.ID, o.Number)
		}
	}
}
