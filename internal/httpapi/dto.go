package httpapi

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/apperrors"
	"github.com/nikolayk812/booksettle/internal/delivery"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/reconcile"
	"github.com/nikolayk812/booksettle/internal/settlement"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type moneyDTO struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func toMoneyDTO(m domain.Money) moneyDTO {
	return moneyDTO{Amount: m.Amount, Currency: m.Currency.String()}
}

func (m moneyDTO) toDomain() (domain.Money, error) {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return domain.Money{}, fmt.Errorf("currency[%s]: %w", m.Currency, err)
	}

	return domain.Money{Amount: m.Amount, Currency: unit}, nil
}

type submitItemRequest struct {
	ListingID uuid.UUID `json:"listing_id"`
	Quantity  int       `json:"quantity"`
	Price     moneyDTO  `json:"price"`
}

type submitOrderRequest struct {
	Items         []submitItemRequest `json:"items"`
	Total         moneyDTO            `json:"total"`
	PaymentMethod string              `json:"payment_method"`
}

func (req submitOrderRequest) toInput(buyerID string) (settlement.SubmitInput, error) {
	total, err := req.Total.toDomain()
	if err != nil {
		return settlement.SubmitInput{}, apperrors.Wrap(apperrors.CodeValidation, "total: invalid currency", err)
	}

	items := make([]settlement.SubmitItem, 0, len(req.Items))
	for idx, item := range req.Items {
		price, err := item.Price.toDomain()
		if err != nil {
			return settlement.SubmitInput{}, apperrors.Wrap(apperrors.CodeValidation,
				fmt.Sprintf("item[%d]: invalid currency", idx), err)
		}

		items = append(items, settlement.SubmitItem{
			ListingID: item.ListingID,
			Quantity:  item.Quantity,
			Price:     price,
		})
	}

	return settlement.SubmitInput{
		BuyerID:       buyerID,
		Items:         items,
		Total:         total,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	}, nil
}

type settlementResponse struct {
	OrderItemID uuid.UUID `json:"order_item_id"`
	ListingID   uuid.UUID `json:"listing_id"`
	Kind        string    `json:"kind"`
	Quantity    int       `json:"quantity"`
	State       string    `json:"state"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
}

func toSettlementResponses(items []domain.ItemSettlement) []settlementResponse {
	return lo.Map(items, func(s domain.ItemSettlement, _ int) settlementResponse {
		return settlementResponse{
			OrderItemID: s.OrderItemID,
			ListingID:   s.ListingID,
			Kind:        string(s.Kind),
			Quantity:    s.Quantity,
			State:       string(s.State),
			Attempts:    s.Attempts,
			LastError:   s.LastError,
		}
	})
}

type submitOrderResponse struct {
	OrderID     uuid.UUID            `json:"order_id"`
	Status      string               `json:"status"`
	Settlements []settlementResponse `json:"settlements"`
}

type orderItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ListingID uuid.UUID `json:"listing_id"`
	Kind      string    `json:"kind"`
	Quantity  int       `json:"quantity"`
	Price     moneyDTO  `json:"price"`
}

type orderResponse struct {
	ID            uuid.UUID           `json:"id"`
	Status        string              `json:"status"`
	PaymentMethod string              `json:"payment_method"`
	Total         moneyDTO            `json:"total"`
	Items         []orderItemResponse `json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		Total:         toMoneyDTO(o.Total),
		Items: lo.Map(o.Items, func(item domain.OrderItem, _ int) orderItemResponse {
			return orderItemResponse{
				ID:        item.ID,
				ListingID: item.ListingID,
				Kind:      string(item.Kind),
				Quantity:  item.Quantity,
				Price:     toMoneyDTO(item.Price),
			}
		}),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

type paymentStatusResponse struct {
	Success        bool   `json:"success"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	RefundRequired bool   `json:"refund_required,omitempty"`
}

func toPaymentStatusResponse(r reconcile.Result) paymentStatusResponse {
	return paymentStatusResponse{
		Success:        r.Success,
		Status:         string(r.Status),
		Message:        r.Message,
		RefundRequired: r.RefundRequired,
	}
}

type recordPaymentRequest struct {
	TransactionID string `json:"transaction_id"`
}

type libraryEntryResponse struct {
	ListingID           uuid.UUID `json:"listing_id"`
	LastPageRead        int       `json:"last_page_read"`
	CanDownloadSnapshot bool      `json:"can_download_snapshot"`
	GrantedAt           time.Time `json:"granted_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toLibraryEntryResponse(a domain.LibraryAccess) libraryEntryResponse {
	return libraryEntryResponse{
		ListingID:           a.ListingID,
		LastPageRead:        a.LastPageRead,
		CanDownloadSnapshot: a.CanDownloadSnapshot,
		GrantedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

type readURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Viewer    string    `json:"viewer"`
}

func toReadURLResponse(h delivery.ReadHandle) readURLResponse {
	return readURLResponse{URL: h.URL, ExpiresAt: h.ExpiresAt, Viewer: h.Viewer}
}

type progressRequest struct {
	LastPageRead *int `json:"last_page_read"`
}
