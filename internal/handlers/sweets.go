package handlers

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sweetshop/apiserver/internal/services"
	"github.com/sweetshop/apiserver/types"
)

const (
	maxImageBytes      = 5 << 20
	maxMultipartMemory = 8 << 20
	formFieldImage     = "image"
)

// SweetHandler provides catalogue, purchase and stock endpoints.
type SweetHandler struct {
	sweetService *services.SweetService
	authService  *services.AuthService
	log          *slog.Logger
}

func NewSweetHandler(sweetService *services.SweetService, authService *services.AuthService, log *slog.Logger) *SweetHandler {
	return &SweetHandler{
		sweetService: sweetService,
		authService:  authService,
		log:          log,
	}
}

// SweetRouter registers sweet routes on the given router.
func SweetRouter(r chi.Router, sweetService *services.SweetService, authService *services.AuthService, log *slog.Logger) {
	handler := NewSweetHandler(sweetService, authService, log)
	authenticated := RequireAuth(authService)

	r.Get("/", handler.ListSweets)
	r.Get("/search", handler.SearchSweets)
	r.With(authenticated, RequireAdmin).Post("/", handler.CreateSweet)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", handler.GetSweet)
		r.Get("/image", handler.GetImage)
		r.With(authenticated, RequireAdmin).Put("/", handler.UpdateSweet)
		r.With(authenticated, RequireAdmin).Delete("/", handler.DeleteSweet)
		r.With(authenticated, RequireAdmin).Put("/image", handler.PutImage)
		r.With(authenticated, RequireAdmin).Post("/restock", handler.Restock)
		r.With(authenticated).Post("/purchase", handler.Purchase)
	})
}

func (h *SweetHandler) ListSweets(w http.ResponseWriter, r *http.Request) {
	sweets, err := h.sweetService.List(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "failed to list sweets")
		return
	}
	writeJSON(w, http.StatusOK, sweets)
}

func (h *SweetHandler) SearchSweets(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSweetFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sweets, err := h.sweetService.Search(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to search sweets")
		return
	}
	writeJSON(w, http.StatusOK, sweets)
}

func (h *SweetHandler) GetSweet(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sweet, err := h.sweetService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to fetch sweet")
		return
	}
	writeJSON(w, http.StatusOK, sweet)
}

func (h *SweetHandler) CreateSweet(w http.ResponseWriter, r *http.Request) {
	var req SweetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sweet, err := h.sweetService.Create(r.Context(), req.toSweet(0))
	if err != nil {
		writeServiceError(w, h.log, err, "failed to create sweet")
		return
	}
	writeJSON(w, http.StatusCreated, sweet)
}

func (h *SweetHandler) UpdateSweet(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SweetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sweet, err := h.sweetService.Update(r.Context(), req.toSweet(id))
	if err != nil {
		writeServiceError(w, h.log, err, "failed to update sweet")
		return
	}
	writeJSON(w, http.StatusOK, sweet)
}

func (h *SweetHandler) DeleteSweet(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sweetService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err, "failed to delete sweet")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Purchase buys quantity units for the token holder.
func (h *SweetHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req QuantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, err := h.authService.ResolveUserID(r.Context(), claims)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to resolve user")
		return
	}

	purchase, err := h.sweetService.Purchase(r.Context(), userID, id, req.Quantity)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to purchase sweet")
		return
	}
	writeJSON(w, http.StatusOK, PurchaseResponse{
		Message:    "purchase successful",
		TotalPrice: purchase.TotalPrice,
		Purchase:   purchase,
	})
}

func (h *SweetHandler) Restock(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req QuantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quantity, err := h.sweetService.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to restock sweet")
		return
	}
	writeJSON(w, http.StatusOK, RestockResponse{Message: "restocked", Quantity: quantity})
}

// PutImage accepts a multipart upload with the file in the "image" field.
func (h *SweetHandler) PutImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile(formFieldImage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	if header.Size > maxImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}

	sweet, err := h.sweetService.SetImage(r.Context(), id, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		writeServiceError(w, h.log, err, "failed to store image")
		return
	}
	writeJSON(w, http.StatusOK, sweet)
}

func (h *SweetHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	obj, err := h.sweetService.GetImage(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to load image")
		return
	}
	defer obj.Body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.log.Warn("stream image", "sweetID", id, "error", err)
	}
}

type SweetRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

func (req SweetRequest) toSweet(id int) types.Sweet {
	return types.Sweet{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Quantity:    req.Quantity,
	}
}

type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

type PurchaseResponse struct {
	Message    string         `json:"message"`
	TotalPrice float64        `json:"total_price"`
	Purchase   types.Purchase `json:"purchase"`
}

type RestockResponse struct {
	Message  string `json:"message"`
	Quantity int    `json:"quantity"`
}

// parseSweetFilter reads q, category, minPrice and maxPrice. A non-finite
// maxPrice (browsers send "Infinity") means unbounded.
func parseSweetFilter(r *http.Request) (types.SweetFilter, error) {
	query := r.URL.Query()
	minPrice, err := parseOptionalFloat(query.Get("minPrice"))
	if err != nil || math.IsNaN(minPrice) || math.IsInf(minPrice, 0) {
		return types.SweetFilter{}, errors.New("invalid minPrice")
	}
	maxPrice, err := parseOptionalFloat(query.Get("maxPrice"))
	if err != nil || math.IsNaN(maxPrice) {
		return types.SweetFilter{}, errors.New("invalid maxPrice")
	}
	if math.IsInf(maxPrice, 1) {
		maxPrice = 0
	}

	return types.SweetFilter{
		Query:    query.Get("q"),
		Category: query.Get("category"),
		MinPrice: minPrice,
		MaxPrice: maxPrice,
	}, nil
}
