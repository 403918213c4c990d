package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/BackOfficeGo/internal/domain"
	"github.com/utafrali/BackOfficeGo/internal/engine"
	"github.com/utafrali/BackOfficeGo/internal/repository"
	"github.com/utafrali/BackOfficeGo/internal/service"
	"github.com/utafrali/BackOfficeGo/pkg/httputil"
	"github.com/utafrali/BackOfficeGo/pkg/pagination"
	"github.com/utafrali/BackOfficeGo/pkg/validator"
)

const maxBodyBytes = 1 << 20

// PromotionHandler handles HTTP requests for promotion endpoints.
type PromotionHandler struct {
	service *service.PromotionService
	logger  *slog.Logger
}

// NewPromotionHandler creates a new promotion HTTP handler.
func NewPromotionHandler(svc *service.PromotionService, logger *slog.Logger) *PromotionHandler {
	return &PromotionHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// PromotionRequest is the JSON body for creating or replacing a promotion.
type PromotionRequest struct {
	Code                 string                 `json:"code" validate:"required,max=50"`
	Name                 string                 `json:"name" validate:"required,max=255"`
	Description          string                 `json:"description" validate:"max=2000"`
	Discount             *domain.DiscountParams `json:"discount" validate:"required"`
	IsActive             *bool                  `json:"is_active"`
	IsStackable          bool                   `json:"is_stackable"`
	Priority             int                    `json:"priority"`
	StartDate            *string                `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate              *string                `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	TimeStart            *string                `json:"time_start" validate:"omitempty,hhmm"`
	TimeEnd              *string                `json:"time_end" validate:"omitempty,hhmm"`
	DaysOfWeek           []int                  `json:"days_of_week" validate:"omitempty,max=7,dive,gte=0,lte=6"`
	MinPurchaseAmount    *int64                 `json:"min_purchase_amount" validate:"omitempty,gte=0"`
	MinQuantity          *int                   `json:"min_quantity" validate:"omitempty,gte=0"`
	MaxUsesTotal         *int                   `json:"max_uses_total" validate:"omitempty,gte=0"`
	ApplicableProducts   []string               `json:"applicable_products" validate:"omitempty,dive,required"`
	ApplicableCategories []string               `json:"applicable_categories" validate:"omitempty,dive,required"`
}

// CartLineRequest is one line of the cart being priced. LineTotal defaults to
// quantity × unit_price.
type CartLineRequest struct {
	ProductID  string `json:"product_id" validate:"required"`
	CategoryID string `json:"category_id"`
	Quantity   int    `json:"quantity" validate:"gt=0"`
	UnitPrice  int64  `json:"unit_price" validate:"gte=0"`
	LineTotal  *int64 `json:"line_total" validate:"omitempty,gte=0"`
}

// EvaluateRequest is the JSON body for pricing a cart.
type EvaluateRequest struct {
	Lines []CartLineRequest `json:"lines" validate:"dive"`
	At    *string           `json:"at"`
}

// RedeemRequest is the JSON body for checking a manually entered code.
type RedeemRequest struct {
	Code  string            `json:"code" validate:"required,max=50"`
	Lines []CartLineRequest `json:"lines" validate:"dive"`
	At    *string           `json:"at"`
}

// RecordUsageRequest is the JSON body for recording a consumed promotion.
type RecordUsageRequest struct {
	PromotionID    string  `json:"promotion_id" validate:"required,uuid"`
	CustomerID     *string `json:"customer_id" validate:"omitempty,max=100"`
	OrderID        string  `json:"order_id" validate:"required,max=100"`
	DiscountAmount int64   `json:"discount_amount" validate:"gte=0"`
}

// --- Response DTOs ---

// RedemptionResponse is the answer to a redeem request.
type RedemptionResponse struct {
	Valid            bool                     `json:"valid"`
	Reason           string                   `json:"reason,omitempty"`
	PromotionID      string                   `json:"promotion_id,omitempty"`
	Code             string                   `json:"code,omitempty"`
	Name             string                   `json:"name,omitempty"`
	DiscountAmount   int64                    `json:"discount_amount"`
	FreeProductLines []domain.FreeProductLine `json:"free_product_lines"`
}

// --- Handlers ---

// CreatePromotion handles POST /api/v1/promotions
func (h *PromotionHandler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req PromotionRequest
	if !h.decode(w, r, &req) {
		return
	}

	input, err := req.toInput()
	if err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	promo, err := h.service.CreatePromotion(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: promo})
}

// ListPromotions handles GET /api/v1/promotions
func (h *PromotionHandler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := repository.PromotionFilter{
		Page:    params.Page,
		PerPage: params.PerPage,
	}

	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteValidationError(w, errInvalidParam("active must be true or false"))
			return
		}
		filter.Active = &active
	}

	promos, total, err := h.service.ListPromotions(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(promos, total, params))
}

// ListActivePromotions handles GET /api/v1/promotions/active
func (h *PromotionHandler) ListActivePromotions(w http.ResponseWriter, r *http.Request) {
	at, err := parseInstant(queryPtr(r, "at"))
	if err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	promos, err := h.service.ListActivePromotions(r.Context(), at)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: promos})
}

// GetPromotion handles GET /api/v1/promotions/{id}
func (h *PromotionHandler) GetPromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	promo, err := h.service.GetPromotion(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: promo})
}

// UpdatePromotion handles PUT /api/v1/promotions/{id}
func (h *PromotionHandler) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req PromotionRequest
	if !h.decode(w, r, &req) {
		return
	}

	input, err := req.toInput()
	if err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	promo, err := h.service.UpdatePromotion(r.Context(), id.String(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: promo})
}

// DeactivatePromotion handles POST /api/v1/promotions/{id}/deactivate
func (h *PromotionHandler) DeactivatePromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	promo, err := h.service.DeactivatePromotion(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: promo})
}

// ListUsages handles GET /api/v1/promotions/{id}/usages
func (h *PromotionHandler) ListUsages(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	params := pagination.FromRequest(r)
	usages, total, err := h.service.ListUsages(r.Context(), id.String(), params.Page, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(usages, total, params))
}

// Evaluate handles POST /api/v1/promotions/evaluate
func (h *PromotionHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !h.decode(w, r, &req) {
		return
	}

	at, err := parseInstant(req.At)
	if err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	outcome, err := h.service.Evaluate(r.Context(), toCart(req.Lines), at)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: outcome})
}

// Redeem handles POST /api/v1/promotions/redeem. A rejected code is still a
// 200 response with valid=false and the reason.
func (h *PromotionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if !h.decode(w, r, &req) {
		return
	}

	at, err := parseInstant(req.At)
	if err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	redemption, err := h.service.RedeemCode(r.Context(), req.Code, toCart(req.Lines), at)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toRedemptionResponse(redemption)})
}

// RecordUsage handles POST /api/v1/usages
func (h *PromotionHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req RecordUsageRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.service.RecordUsage(r.Context(), &service.RecordUsageInput{
		PromotionID:    req.PromotionID,
		CustomerID:     req.CustomerID,
		OrderID:        req.OrderID,
		DiscountAmount: req.DiscountAmount,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// --- Helpers ---

// decode reads and validates a JSON body, answering 400 itself on failure.
func (h *PromotionHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return false
	}
	if err := validator.Validate(dst); err != nil {
		httputil.WriteValidationError(w, err)
		return false
	}
	return true
}

func (req *PromotionRequest) toInput() (*service.PromotionInput, error) {
	start, err := parseDate(req.StartDate)
	if err != nil {
		return nil, errInvalidParam("start_date must be YYYY-MM-DD")
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return nil, errInvalidParam("end_date must be YYYY-MM-DD")
	}

	var days []time.Weekday
	if req.DaysOfWeek != nil {
		days = make([]time.Weekday, len(req.DaysOfWeek))
		for i, d := range req.DaysOfWeek {
			days[i] = time.Weekday(d)
		}
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	return &service.PromotionInput{
		Code:                 req.Code,
		Name:                 req.Name,
		Description:          req.Description,
		Discount:             *req.Discount,
		IsActive:             active,
		IsStackable:          req.IsStackable,
		Priority:             req.Priority,
		StartDate:            start,
		EndDate:              end,
		TimeStart:            req.TimeStart,
		TimeEnd:              req.TimeEnd,
		DaysOfWeek:           days,
		MinPurchaseAmount:    req.MinPurchaseAmount,
		MinQuantity:          req.MinQuantity,
		MaxUsesTotal:         req.MaxUsesTotal,
		ApplicableProducts:   req.ApplicableProducts,
		ApplicableCategories: req.ApplicableCategories,
	}, nil
}

func toCart(lines []CartLineRequest) []domain.CartLine {
	cart := make([]domain.CartLine, len(lines))
	for i, l := range lines {
		cart[i] = domain.NewCartLine(l.ProductID, l.CategoryID, l.Quantity, l.UnitPrice)
		if l.LineTotal != nil {
			cart[i].LineTotal = *l.LineTotal
		}
	}
	return cart
}

func toRedemptionResponse(r *engine.Redemption) RedemptionResponse {
	resp := RedemptionResponse{
		Valid:            r.Valid,
		Reason:           string(r.Reason),
		FreeProductLines: []domain.FreeProductLine{},
	}
	if r.Result == nil {
		return resp
	}
	if p := r.Result.Promotion; p != nil {
		resp.PromotionID = p.ID
		resp.Code = p.Code
		resp.Name = p.Name
	}
	resp.DiscountAmount = r.Result.DiscountAmount
	resp.FreeProductLines = append(resp.FreeProductLines, r.Result.FreeProductLines...)
	return resp
}

func parseDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(domain.DateLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseInstant reads an RFC 3339 timestamp. The offset is kept: dates and
// wall-clock windows are judged in the caller's local time.
func parseInstant(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, errInvalidParam("at must be an RFC 3339 timestamp")
	}
	return &t, nil
}

func queryPtr(r *http.Request, key string) *string {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	return &v
}

type errInvalidParam string

func (e errInvalidParam) Error() string { return string(e) }
