// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"orderflow/internal/pkg/logger"
	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/domain"
)

const serviceName = "order-service"

// OrderHandler 封装了订单服务的 HTTP 处理器。
type OrderHandler struct {
	service *application.OrderApplicationService
}

func NewOrderHandler(service *application.OrderApplicationService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/orders", h.createOrder)
	mux.HandleFunc("GET /api/v1/orders", h.listOrders)
	mux.HandleFunc("GET /api/v1/orders/user/{user_id}", h.getUserOrders)
	mux.HandleFunc("GET /api/v1/orders/{id}", h.getOrder)
	mux.HandleFunc("GET /api/v1/orders/{id}/items", h.getOrderItems)
	mux.HandleFunc("PUT /api/v1/orders/{id}", h.updateOrder)
	mux.HandleFunc("DELETE /api/v1/orders/{id}", h.deleteOrder)
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.CreateOrder")
	defer span.End()

	var req application.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &domain.ValidationError{Reason: "invalid request body"})
		return
	}

	order, err := h.service.CreateOrder(ctx, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListFilter{
		UserID: r.URL.Query().Get("user_id"),
		Status: domain.Status(r.URL.Query().Get("status")),
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) getUserOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	resp, err := h.service.GetUserOrders(
		r.Context(),
		r.PathValue("user_id"),
		domain.Status(r.URL.Query().Get("status")),
		limit,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) getOrderItems(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.GetOrderItems(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.UpdateOrder")
	defer span.End()

	var req application.UpdateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &domain.ValidationError{Reason: "invalid request body"})
		return
	}

	order, err := h.service.UpdateOrder(ctx, r.PathValue("id"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	if err := h.service.DeleteOrder(r.Context(), orderID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Order " + orderID + " deleted successfully"})
}

func extractTraceContext(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

// errorResponse 是对外统一的结构化错误格式。
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case domain.IsValidation(err):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrOrderNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrStateConflict):
		status, code = http.StatusConflict, "state_conflict"
	default:
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}

	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
