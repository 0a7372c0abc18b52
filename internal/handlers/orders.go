package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/doug-pr/API-Pizzaria/internal/platform/auth"
	"github.com/doug-pr/API-Pizzaria/internal/platform/httpx"
	"github.com/doug-pr/API-Pizzaria/internal/services"
)

// OrderHandlers exposes the order lifecycle to authenticated users.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency installs a replay guard on the mutating order routes.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequirePrincipal())
	}
	if h.idempotency != nil {
		r.Use(h.idempotency)
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/mine", h.listMyOrders)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)
	r.Post("/{orderID}/finalize", h.finalizeOrder)
	r.Post("/{orderID}/items", h.addItem)
}

type addItemRequest struct {
	Flavor    string           `json:"flavor"`
	Size      string           `json:"size"`
	Quantity  *int             `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type lineItemPayload struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"order_id"`
	Flavor    string `json:"flavor"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type orderPayload struct {
	ID         int64             `json:"id"`
	OwnerID    int64             `json:"owner_id"`
	Status     string            `json:"status"`
	TotalPrice string            `json:"total_price"`
	Items      []lineItemPayload `json:"items"`
	CreatedAt  string            `json:"created_at,omitempty"`
	UpdatedAt  string            `json:"updated_at,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderDetailResponse struct {
	QuantityItems int          `json:"quantity_items"`
	Order         orderPayload `json:"order"`
}

type addItemResponse struct {
	ItemID int64        `json:"item_id"`
	Order  orderPayload `json:"order"`
}

type orderListResponse struct {
	Orders []orderPayload `json:"orders"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	principal, _ := auth.PrincipalFromContext(ctx)

	order, err := h.orders.CreateOrder(ctx, principal)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+strconv.FormatInt(order.ID, 10))
	httpx.WriteJSON(ctx, w, http.StatusCreated, orderResponse{Order: newOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	principal, _ := auth.PrincipalFromContext(ctx)

	orders, err := h.orders.ListOrders(ctx, principal)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, newOrderListResponse(orders))
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	principal, _ := auth.PrincipalFromContext(ctx)

	orders, err := h.orders.ListOrdersForPrincipal(ctx, principal)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, newOrderListResponse(orders))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	principal, _ := auth.PrincipalFromContext(ctx)

	order, err := h.orders.GetOrder(ctx, principal, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, orderDetailResponse{
		QuantityItems: len(order.Items),
		Order:         newOrderPayload(order),
	})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, services.OrderService.CancelOrder)
}

func (h *OrderHandlers) finalizeOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, services.OrderService.FinalizeOrder)
}

type transitionFunc func(svc services.OrderService, ctx context.Context, principal *services.Principal, orderID int64) (services.Order, error)

func (h *OrderHandlers) transition(w http.ResponseWriter, r *http.Request, apply transitionFunc) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	principal, _ := auth.PrincipalFromContext(ctx)

	order, err := apply(h.orders, ctx, principal, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, orderResponse{Order: newOrderPayload(order)})
}

func (h *OrderHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}

	var req addItemRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Quantity == nil || req.UnitPrice == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_input", "quantity and unit_price are required", http.StatusBadRequest))
		return
	}
	principal, _ := auth.PrincipalFromContext(ctx)

	order, err := h.orders.AddItem(ctx, principal, services.AddItemCommand{
		OrderID:   orderID,
		Flavor:    req.Flavor,
		Size:      req.Size,
		Quantity:  *req.Quantity,
		UnitPrice: *req.UnitPrice,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	// Item ids are allocated monotonically, so the newest line sorts last.
	var itemID int64
	if n := len(order.Items); n > 0 {
		itemID = order.Items[n-1].ID
	}
	httpx.WriteJSON(ctx, w, http.StatusCreated, addItemResponse{
		ItemID: itemID,
		Order:  newOrderPayload(order),
	})
}

func (h *OrderHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	principal, _ := auth.PrincipalFromContext(ctx)

	order, err := h.orders.RemoveItem(ctx, principal, itemID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, orderResponse{Order: newOrderPayload(order)})
}

func (h *OrderHandlers) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_input", param+" must be a positive integer", http.StatusBadRequest))
		return 0, false
	}
	return id, true
}

func newOrderPayload(order services.Order) orderPayload {
	items := make([]lineItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, lineItemPayload{
			ID:        item.ID,
			OrderID:   item.OrderID,
			Flavor:    item.Flavor,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Subtotal:  item.Subtotal().StringFixed(2),
		})
	}
	return orderPayload{
		ID:         order.ID,
		OwnerID:    order.OwnerID,
		Status:     string(order.Status),
		TotalPrice: order.TotalPrice.StringFixed(2),
		Items:      items,
		CreatedAt:  formatTime(order.CreatedAt),
		UpdatedAt:  formatTime(order.UpdatedAt),
	}
}

func newOrderListResponse(orders []services.Order) orderListResponse {
	resp := orderListResponse{Orders: make([]orderPayload, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, newOrderPayload(order))
	}
	return resp
}
