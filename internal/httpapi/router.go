// Package httpapi exposes the settlement pipeline over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/apperrors"
	"github.com/nikolayk812/booksettle/internal/delivery"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/reconcile"
	"github.com/nikolayk812/booksettle/internal/settlement"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type OrderService interface {
	Submit(ctx context.Context, in settlement.SubmitInput) (settlement.SubmitResult, error)
	Settlements(ctx context.Context, buyerID string, orderID uuid.UUID) ([]domain.ItemSettlement, error)
	ListOrders(ctx context.Context, buyerID string, statuses []domain.OrderStatus) ([]domain.Order, error)
}

type PaymentService interface {
	Verify(ctx context.Context, buyerID string, orderID uuid.UUID) (reconcile.Result, error)
	RecordTransaction(ctx context.Context, buyerID string, orderID uuid.UUID, providerTransactionID string) (reconcile.Result, error)
}

type LibraryService interface {
	GetReadURL(ctx context.Context, viewer delivery.Viewer, listingID uuid.UUID) (delivery.ReadHandle, error)
	ListLibrary(ctx context.Context, buyerID string) ([]domain.LibraryAccess, error)
	UpdateProgress(ctx context.Context, buyerID string, listingID uuid.UUID, lastPageRead int) (domain.LibraryAccess, error)
}

type Config struct {
	Orders   OrderService
	Payments PaymentService
	Library  LibraryService
	Sessions *SessionVerifier
	// Content serves signed file URLs; optional.
	Content http.Handler
}

type api struct {
	orders   OrderService
	payments PaymentService
	library  LibraryService
}

func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Orders == nil {
		return nil, errors.New("orders is nil")
	}
	if cfg.Payments == nil {
		return nil, errors.New("payments is nil")
	}
	if cfg.Library == nil {
		return nil, errors.New("library is nil")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("sessions is nil")
	}

	a := &api{
		orders:   cfg.Orders,
		payments: cfg.Payments,
		library:  cfg.Library,
	}

	v1 := http.NewServeMux()
	v1.HandleFunc("POST /v1/orders", a.submitOrder)
	v1.HandleFunc("GET /v1/orders", a.listOrders)
	v1.HandleFunc("GET /v1/orders/{orderID}/payment-status", a.paymentStatus)
	v1.HandleFunc("POST /v1/orders/{orderID}/payments", a.recordPayment)
	v1.HandleFunc("GET /v1/orders/{orderID}/settlements", a.settlements)
	v1.HandleFunc("GET /v1/library", a.listLibrary)
	v1.HandleFunc("GET /v1/library/{listingID}/read-url", a.readURL)
	v1.HandleFunc("PUT /v1/library/{listingID}/progress", a.updateProgress)

	mux := http.NewServeMux()
	mux.Handle("/v1/", cfg.Sessions.RequireSession(v1))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if cfg.Content != nil {
		mux.Handle("GET /content/{path...}", cfg.Content)
	}

	return otelhttp.NewHandler(mux, "booksettle"), nil
}

func (a *api) submitOrder(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	var req submitOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	input, err := req.toInput(session.BuyerID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := a.orders.Submit(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitOrderResponse{
		OrderID:     result.OrderID,
		Status:      string(result.Status),
		Settlements: toSettlementResponses(result.Settlements),
	})
}

func (a *api) listOrders(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	statuses, err := parseStatuses(r.URL.Query()["status"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	orders, err := a.orders.ListOrders(r.Context(), session.BuyerID, statuses)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		response = append(response, toOrderResponse(o))
	}

	writeJSON(w, http.StatusOK, response)
}

// parseStatuses accepts both repeated and comma separated status values.
func parseStatuses(values []string) ([]domain.OrderStatus, error) {
	var statuses []domain.OrderStatus

	for _, value := range values {
		for _, raw := range strings.Split(value, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}

			status, err := domain.ToOrderStatus(raw)
			if err != nil {
				allowed := lo.Map(domain.OrderStatuses(), func(s domain.OrderStatus, _ int) string {
					return string(s)
				})
				return nil, apperrors.Wrap(apperrors.CodeValidation,
					fmt.Sprintf("status[%s] is not valid, allowed: %s", raw, strings.Join(allowed, ", ")), err)
			}
			statuses = append(statuses, status)
		}
	}

	return statuses, nil
}

func (a *api) paymentStatus(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	orderID, err := pathUUID(r, "orderID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := a.payments.Verify(r.Context(), session.BuyerID, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentStatusResponse(result))
}

func (a *api) recordPayment(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	orderID, err := pathUUID(r, "orderID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req recordPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := a.payments.RecordTransaction(r.Context(), session.BuyerID, orderID, req.TransactionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentStatusResponse(result))
}

func (a *api) settlements(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	orderID, err := pathUUID(r, "orderID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, err := a.orders.Settlements(r.Context(), session.BuyerID, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSettlementResponses(items))
}

func (a *api) listLibrary(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	library, err := a.library.ListLibrary(r.Context(), session.BuyerID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response := make([]libraryEntryResponse, 0, len(library))
	for _, access := range library {
		response = append(response, toLibraryEntryResponse(access))
	}

	writeJSON(w, http.StatusOK, response)
}

func (a *api) readURL(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	listingID, err := pathUUID(r, "listingID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	handle, err := a.library.GetReadURL(r.Context(), delivery.Viewer{BuyerID: session.BuyerID, Email: session.Email}, listingID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toReadURLResponse(handle))
}

func (a *api) updateProgress(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	listingID, err := pathUUID(r, "listingID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if req.LastPageRead == nil {
		writeError(w, r, apperrors.New(apperrors.CodeValidation, "last_page_read is required"))
		return
	}

	access, err := a.library.UpdateProgress(r.Context(), session.BuyerID, listingID, *req.LastPageRead)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toLibraryEntryResponse(access))
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperrors.Wrap(apperrors.CodeValidation, name+" is not a valid id", err)
	}

	return id, nil
}
