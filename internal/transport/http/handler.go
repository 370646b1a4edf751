package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"ArticlesCatalog/internal/model"
	"ArticlesCatalog/internal/repository"
	"ArticlesCatalog/internal/service"
	"ArticlesCatalog/internal/spreadsheet"
)

// ArticlesService задаёт бизнес-логику каталога, используемую хендлером
type ArticlesService interface {
	Create(ctx context.Context, in model.ArticleInput) (*model.Article, error)
	Get(ctx context.Context, id int64) (*model.Article, error)
	Update(ctx context.Context, id int64, in model.ArticleInput) (*model.Article, error)
	Patch(ctx context.Context, id int64, in model.ArticleInput) (*model.Article, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, page int) (*model.Page, error)
	Import(ctx context.Context, r io.Reader) (*model.ImportResult, error)
	Export(ctx context.Context, w io.Writer) error
}

// Pinger проверяет доступность зависимости для /readyz
type Pinger interface {
	Ping(ctx context.Context) error
}

// Коды ошибок в теле ответа
const (
	codeInternal   = 1
	codeValidation = 2
	codeNotFound   = 3
	codeBadRequest = 4
	codeTooLarge   = 5
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportFilename  = "articles.xlsx"
	uploadField     = "file"
)

// Handler реализует HTTP-эндпоинты каталога статей
type Handler struct {
	srv       ArticlesService
	db        Pinger
	maxUpload int64
	debug     bool
}

// NewHandler создаёт Handler. db может быть nil, тогда /readyz всегда отвечает ready
func NewHandler(srv ArticlesService, db Pinger, maxUpload int64, debug bool) *Handler {
	return &Handler{srv: srv, db: db, maxUpload: maxUpload, debug: debug}
}

// RegisterRoutes регистрирует маршруты API
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.Readyz).Methods(http.MethodGet)

	api := r.PathPrefix("/api/articles").Subrouter()
	api.HandleFunc("/", h.List).Methods(http.MethodGet)
	api.HandleFunc("/", h.Create).Methods(http.MethodPost)
	api.HandleFunc("/import/", h.Import).Methods(http.MethodPost)
	api.HandleFunc("/export/", h.Export).Methods(http.MethodGet)
	api.HandleFunc("/{id:[0-9]+}/", h.Get).Methods(http.MethodGet)
	api.HandleFunc("/{id:[0-9]+}/", h.Update).Methods(http.MethodPut)
	api.HandleFunc("/{id:[0-9]+}/", h.Patch).Methods(http.MethodPatch)
	api.HandleFunc("/{id:[0-9]+}/", h.Delete).Methods(http.MethodDelete)
}

// ErrorResponse модель ошибки API
type ErrorResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	if resp.Details == nil {
		resp.Details = map[string]interface{}{}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError переводит ошибки сервиса в HTTP-статусы
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *model.ValidationError
	var missing *service.MissingHeadersError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, ErrorResponse{codeValidation, "validation failed", verr.Fields})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrorResponse{codeNotFound, "Not found.", nil})
	case errors.Is(err, service.ErrInvalidPage):
		writeError(w, http.StatusNotFound, ErrorResponse{codeNotFound, "Invalid page.", nil})
	case errors.Is(err, spreadsheet.ErrInvalidFileFormat):
		writeError(w, http.StatusBadRequest, ErrorResponse{codeBadRequest, "Invalid file: " + err.Error(), nil})
	case errors.As(err, &missing):
		writeError(w, http.StatusBadRequest, ErrorResponse{codeBadRequest, service.ErrMissingRequiredHeaders.Error(),
			map[string]interface{}{"missing": missing.Missing}})
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg := "internal server error"
		if errors.Is(err, service.ErrTransactionFailure) {
			msg = service.ErrTransactionFailure.Error()
		}
		var details interface{}
		if h.debug {
			details = map[string]interface{}{"error": err.Error()}
		}
		writeError(w, http.StatusInternalServerError, ErrorResponse{codeInternal, msg, details})
	}
}

// articleResponse: статья в JSON; цена всегда с двумя знаками после точки
type articleResponse struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Price       string `json:"price"`
}

func toResponse(a *model.Article) articleResponse {
	return articleResponse{
		ID:          a.ID,
		Code:        a.Code,
		Description: a.Description,
		Price:       a.Price.StringFixed(model.PriceDecimalPlaces),
	}
}

// articleRequest: цена принимается и числом, и строкой
type articleRequest struct {
	Code        *string         `json:"code"`
	Description *string         `json:"description"`
	Price       json.RawMessage `json:"price"`
}

func (req articleRequest) input() model.ArticleInput {
	in := model.ArticleInput{Code: req.Code, Description: req.Description}
	raw := bytes.TrimSpace(req.Price)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return in
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		in.Price = &s
		return in
	}
	// число (или мусор, который отвергнет валидация) передаётся как есть
	s = string(raw)
	in.Price = &s
	return in
}

func decodeArticle(r *http.Request) (model.ArticleInput, error) {
	var req articleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return model.ArticleInput{}, err
	}
	return req.input(), nil
}

func articleID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// pageResponse повторяет формат постраничного списка: count, next, previous, results
type pageResponse struct {
	Count    int               `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []articleResponse `json:"results"`
}

// List обрабатывает GET /api/articles/?page=N
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	number, err := h.pageNumber(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	page, err := h.srv.List(r.Context(), number)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := pageResponse{Count: page.Total, Results: make([]articleResponse, 0, len(page.Articles))}
	for i := range page.Articles {
		resp.Results = append(resp.Results, toResponse(&page.Articles[i]))
	}
	if page.Number*page.Size < page.Total {
		resp.Next = pageURL(r, page.Number+1)
	}
	if page.Number > 1 {
		resp.Previous = pageURL(r, page.Number-1)
	}
	writeJSON(w, http.StatusOK, resp)
}

// pageNumber разбирает параметр page; "last" означает последнюю страницу
func (h *Handler) pageNumber(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	switch raw {
	case "":
		return 1, nil
	case "last":
		first, err := h.srv.List(r.Context(), 1)
		if err != nil {
			return 0, err
		}
		if first.Total == 0 {
			return 1, nil
		}
		return (first.Total + first.Size - 1) / first.Size, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, service.ErrInvalidPage
	}
	return n, nil
}

// pageURL строит абсолютную ссылку на страницу; для первой страницы параметр page убирается
func pageURL(r *http.Request, number int) *string {
	q := r.URL.Query()
	if number == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(number))
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	s := u.String()
	return &s
}

// Create обрабатывает POST /api/articles/
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := decodeArticle(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{codeBadRequest, "invalid request body", nil})
		return
	}
	a, err := h.srv.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(a))
}

// Get обрабатывает GET /api/articles/{id}/
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(r)
	if !ok {
		writeError(w, http.StatusNotFound, ErrorResponse{codeNotFound, "Not found.", nil})
		return
	}
	a, err := h.srv.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(a))
}

// Update обрабатывает PUT /api/articles/{id}/
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	h.modify(w, r, h.srv.Update)
}

// Patch обрабатывает PATCH /api/articles/{id}/
func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	h.modify(w, r, h.srv.Patch)
}

func (h *Handler) modify(w http.ResponseWriter, r *http.Request,
	apply func(context.Context, int64, model.ArticleInput) (*model.Article, error)) {
	id, ok := articleID(r)
	if !ok {
		writeError(w, http.StatusNotFound, ErrorResponse{codeNotFound, "Not found.", nil})
		return
	}
	in, err := decodeArticle(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{codeBadRequest, "invalid request body", nil})
		return
	}
	a, err := apply(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(a))
}

// Delete обрабатывает DELETE /api/articles/{id}/
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(r)
	if !ok {
		writeError(w, http.StatusNotFound, ErrorResponse{codeNotFound, "Not found.", nil})
		return
	}
	if err := h.srv.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Import обрабатывает POST /api/articles/import/ с файлом в поле file
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		if r.ContentLength > h.maxUpload {
			writeTooLarge(w, h.maxUpload)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	file, _, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeTooLarge(w, h.maxUpload)
		case errors.Is(err, http.ErrMissingFile):
			writeError(w, http.StatusBadRequest, ErrorResponse{codeBadRequest, "missing file (field 'file')", nil})
		default:
			writeError(w, http.StatusBadRequest, ErrorResponse{codeBadRequest, "invalid multipart form: " + err.Error(), nil})
		}
		return
	}
	defer file.Close()

	res, err := h.srv.Import(r.Context(), file)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeTooLarge(w http.ResponseWriter, limit int64) {
	writeError(w, http.StatusRequestEntityTooLarge, ErrorResponse{codeTooLarge, "file too large",
		map[string]interface{}{"maxBytes": limit}})
}

// Export обрабатывает GET /api/articles/export/.
// Книга собирается в памяти, чтобы ошибка не оборвала уже начатый ответ
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.srv.Export(r.Context(), &buf); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Healthz возвращает статус работы сервиса
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz проверяет доступность базы
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			slog.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
