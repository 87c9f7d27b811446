package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rl1809/import-export/internal/core/domain"
	"github.com/rl1809/import-export/internal/core/service"
)

const maxBodyBytes = 1 << 20

type HTTPHandler struct {
	catalog     *service.CatalogService
	transfers   *service.TransferService
	latestLimit int
	logger      *zap.Logger
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type UpdateResponse struct {
	Success bool                `json:"success"`
	Updated domain.UpdateResult `json:"updated"`
}

type DeleteResponse struct {
	Success bool                `json:"success"`
	Deleted domain.DeleteResult `json:"deleted"`
}

type ImportResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	TransferID string `json:"transferId"`
	Quantity   int    `json:"quantity"`
}

func NewHTTPHandler(catalog *service.CatalogService, transfers *service.TransferService, latestLimit int, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		catalog:     catalog,
		transfers:   transfers,
		latestLimit: latestLimit,
		logger:      logger,
	}
}

func (h *HTTPHandler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "Import-Export Server is running successfully!")
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Ping(r.Context()); err != nil {
		h.logger.Warn("http.health_degraded", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /data
func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GET /latestProducts
func (h *HTTPHandler) LatestProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListLatest(r.Context(), h.latestLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GET /data/{id}
func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// GET /data/{id}/transfers
func (h *HTTPHandler) ProductTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.catalog.ListTransfers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}

// GET /search?search=text
func (h *HTTPHandler) Search(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Search(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// POST /add-exports
func (h *HTTPHandler) AddExport(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	product, err := h.catalog.Create(r.Context(), fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, DataResponse{Success: true, Data: domain.NewProductDetail(*product, nil)})
}

// GET /my-exports/{userId}
func (h *HTTPHandler) MyExports(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListByOwner(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// PATCH /my-exports/{id}
func (h *HTTPHandler) UpdateExport(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	result, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateResponse{Success: true, Updated: result})
}

// DELETE /my-exports/{id}
func (h *HTTPHandler) DeleteExport(w http.ResponseWriter, r *http.Request) {
	result, err := h.catalog.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Success: true, Deleted: result})
}

// POST /import/{userId}
//
// Body: {"productId": "...", "importQuantity": 3}. "quantity" is accepted in
// place of importQuantity. An Idempotency-Key header makes retries safe.
func (h *HTTPHandler) Import(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	raw, present := fields["importQuantity"]
	if !present {
		raw = fields["quantity"]
	}
	quantity, err := service.ParseTransferQuantity(raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	productID, _ := fields["productId"].(string)

	result, err := h.transfers.Transfer(r.Context(),
		strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		chi.URLParam(r, "userId"),
		strings.TrimSpace(productID),
		quantity,
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ImportResponse{
		Success:    true,
		Message:    "Imported successfully",
		TransferID: result.TransferID,
		Quantity:   result.Quantity,
	})
}

// GET /my-imports/{userId}
func (h *HTTPHandler) MyImports(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.transfers.ListByUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}

// DELETE /my-imports/{id}
func (h *HTTPHandler) DeleteImport(w http.ResponseWriter, r *http.Request) {
	result, err := h.transfers.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Success: true, Deleted: result})
}

// DELETE /my-imports/{productId}/{userId}
func (h *HTTPHandler) DeleteUserImports(w http.ResponseWriter, r *http.Request) {
	result, err := h.transfers.RemoveForUser(r.Context(), chi.URLParam(r, "productId"), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Success: true, Deleted: result})
}

func (h *HTTPHandler) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{
			Success: false,
			Message: "invalid request body",
		})
		return nil, false
	}
	return fields, true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("http.request_failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, MessageResponse{Success: false, Message: message})
}

// statusFor maps domain errors onto HTTP statuses and client-safe messages.
func statusFor(err error) (int, string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "Import quantity exceeds available quantity"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store unavailable, retry later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
