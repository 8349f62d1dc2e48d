// internal/service/payment/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"orderflow/internal/pkg/breaker"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/service/payment/application"
	"orderflow/internal/service/payment/domain"
)

const serviceName = "payment-service"

// PaymentHandler 封装了支付服务的 HTTP 处理器，含熔断器管理端点。
type PaymentHandler struct {
	service *application.PaymentApplicationService
}

func NewPaymentHandler(service *application.PaymentApplicationService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *PaymentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/payments", h.createPayment)
	mux.HandleFunc("GET /api/v1/payments/{id}/status", h.getStatus)
	mux.HandleFunc("POST /api/v1/payments/{id}/refund", h.refund)

	mux.HandleFunc("GET /circuit-breaker/status", h.breakerStatus)
	mux.HandleFunc("POST /circuit-breaker/reset", h.breakerReset)
}

func (h *PaymentHandler) createPayment(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.CreatePayment")
	defer span.End()

	var req application.ExecutePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &domain.ValidationError{Reason: "invalid request body"})
		return
	}

	result, err := h.service.ExecutePayment(ctx, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PaymentHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PaymentHandler) refund(w http.ResponseWriter, r *http.Request) {
	// 允许 query 或 body 传部分退款金额，缺省为全额
	amount, _ := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if amount == 0 && r.Body != nil {
		var body struct {
			Amount float64 `json:"amount"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		amount = body.Amount
	}

	result, err := h.service.Refund(r.Context(), r.PathValue("id"), amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// breakerStatus 输出所有受保护操作的熔断器状态。
func (h *PaymentHandler) breakerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]breaker.Snapshot{
		"circuit_breakers": h.service.Breakers().Snapshots(),
	})
}

// breakerReset 重置指定操作（?operation=create-payment），缺省重置全部。
func (h *PaymentHandler) breakerReset(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("operation")
	h.service.Breakers().Reset(name)
	logger.Ctx(r.Context()).Warn().Str("operation", name).Msg("Circuit breaker reset via admin endpoint")
	writeJSON(w, http.StatusOK, map[string]string{"message": "circuit breaker reset"})
}

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
	case errors.Is(err, domain.ErrUnsupportedMethod):
		status, code = http.StatusBadRequest, "unsupported_method"
	case errors.Is(err, domain.ErrPaymentNotFound):
		status, code = http.StatusNotFound, "not_found"
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
