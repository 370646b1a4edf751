package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Ограничения полей статьи (таблица articles)
const (
	CodeMaxLength        = 50
	DescriptionMaxLength = 255
	// PriceMaxDigits: всего значащих цифр в NUMERIC(12,2)
	PriceMaxDigits = 12
	// PriceDecimalPlaces: количество знаков после запятой
	PriceDecimalPlaces = 2
)

// Article представляет сущность статьи каталога (таблица articles)
type Article struct {
	ID          int64           `db:"id" json:"id"`
	Code        string          `db:"code" json:"code"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
}

// ArticleInput содержит входные данные для создания и изменения статьи.
// nil означает, что поле не передано (используется в PATCH)
type ArticleInput struct {
	Code        *string
	Description *string
	Price       *string
}

// RowError описывает ошибку одной строки импорта.
// Row: номер строки в исходной таблице (заголовок в строке 1)
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportResult возвращает итог импорта, то есть счётчики и ошибки строк
type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Errors  []RowError `json:"errors"`
}

// Page хранит одну страницу списка статей
type Page struct {
	Articles []Article
	Total    int
	Number   int
	Size     int
}

// Действия событий журнала
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionImport = "import"
)

// ArticleEvent описывает событие изменения каталога, публикуемое в NATS и сохраняемое в ClickHouse
type ArticleEvent struct {
	Action      string    `json:"action"`
	ArticleID   int64     `json:"articleId,omitempty"`
	Code        string    `json:"code,omitempty"`
	Description string    `json:"description,omitempty"`
	Price       string    `json:"price,omitempty"`
	Created     int       `json:"created,omitempty"`
	Updated     int       `json:"updated,omitempty"`
	Failed      int       `json:"failed,omitempty"`
	EventTime   time.Time `json:"eventTime"`
}

// NewArticleEvent собирает событие по статье
func NewArticleEvent(action string, a *Article) ArticleEvent {
	return ArticleEvent{
		Action:      action,
		ArticleID:   a.ID,
		Code:        a.Code,
		Description: a.Description,
		Price:       a.Price.StringFixed(PriceDecimalPlaces),
		EventTime:   time.Now().UTC(),
	}
}

// ValidationError содержит ошибки валидации по полям; ключ равен имени поля в JSON
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError создаёт ошибку с одним сообщением для поля
func NewValidationError(field, msg string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}

// Add добавляет сообщение к полю
func (v *ValidationError) Add(field, msg string) {
	if v.Fields == nil {
		v.Fields = make(map[string][]string)
	}
	v.Fields[field] = append(v.Fields[field], msg)
}

// Empty сообщает, что ошибок нет
func (v *ValidationError) Empty() bool {
	return v == nil || len(v.Fields) == 0
}

func (v *ValidationError) Error() string {
	names := make([]string, 0, len(v.Fields))
	for name := range v.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(v.Fields[name], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Ошибки разбора цены
var (
	ErrPriceFormat   = errors.New("a valid number is required")
	ErrPricePlaces   = fmt.Errorf("ensure that there are no more than %d decimal places", PriceDecimalPlaces)
	ErrPriceTooLarge = fmt.Errorf("ensure that there are no more than %d digits in total", PriceMaxDigits)
)

// ParsePrice разбирает строку цены в десятичное число без округления.
// Пробелы по краям отбрасываются, NaN и бесконечности не принимаются
func ParsePrice(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, ErrPriceFormat
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrPriceFormat, s)
	}
	return d, nil
}

// CheckPrice проверяет, что цена помещается в NUMERIC(12,2) без потери точности
func CheckPrice(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(PriceDecimalPlaces)) {
		return ErrPricePlaces
	}
	return checkPriceDigits(d)
}

// NormalizePrice округляет цену до 2 знаков (банковское округление) и проверяет разрядность
func NormalizePrice(d decimal.Decimal) (decimal.Decimal, error) {
	d = d.RoundBank(PriceDecimalPlaces)
	if err := checkPriceDigits(d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// priceLimit: 10^(12-2), первое значение, не помещающееся в NUMERIC(12,2)
var priceLimit = decimal.New(1, PriceMaxDigits-PriceDecimalPlaces)

func checkPriceDigits(d decimal.Decimal) error {
	if d.Abs().GreaterThanOrEqual(priceLimit) {
		return ErrPriceTooLarge
	}
	return nil
}
