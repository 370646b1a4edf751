package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"ArticlesCatalog/internal/model"
	"ArticlesCatalog/internal/repository"
)

// PageSize: количество статей на странице списка
const PageSize = 20

// ErrInvalidPage возвращается для номера страницы вне диапазона
var ErrInvalidPage = errors.New("invalid page")

// Repo определяет хранилище статей (Postgres)
type Repo interface {
	CreateArticle(ctx context.Context, code, description string, price decimal.Decimal) (*model.Article, error)
	GetArticle(ctx context.Context, id int64) (*model.Article, error)
	UpdateArticle(ctx context.Context, a *model.Article) (*model.Article, error)
	DeleteArticle(ctx context.Context, id int64) error
	ListArticles(ctx context.Context, limit, offset int) ([]model.Article, int, error)
	AllArticles(ctx context.Context) ([]model.Article, error)
	WithinImport(ctx context.Context, fn func(tx repository.ImportTx) error) error
}

// Cache определяет кэш отдельных статей (Redis)
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Invalidate(ctx context.Context, keys ...string) error
}

// Publisher отправляет события каталога в журнал (NATS)
type Publisher interface {
	PublishEvent(event any) error
}

// ArticlesService реализует бизнес-логику каталога: валидацию, CRUD, импорт и экспорт.
// Кэш и журнал событий необязательны: без них сервис работает только с базой
type ArticlesService struct {
	repo     Repo
	cache    Cache
	events   Publisher
	cacheTTL time.Duration
	validate *validator.Validate
}

// NewArticlesService создаёт сервис; c и p могут быть nil
func NewArticlesService(r Repo, c Cache, p Publisher, cacheTTL time.Duration) *ArticlesService {
	if c == nil {
		c = noopCache{}
	}
	if p == nil {
		p = noopPublisher{}
	}
	return &ArticlesService{repo: r, cache: c, events: p, cacheTTL: cacheTTL, validate: newValidator()}
}

func articleKey(id int64) string {
	return fmt.Sprintf("article:%d", id)
}

// Create проверяет поля и создаёт статью
func (s *ArticlesService) Create(ctx context.Context, in model.ArticleInput) (*model.Article, error) {
	a, err := s.validateInput(in, nil)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.CreateArticle(ctx, a.Code, a.Description, a.Price)
	if err != nil {
		return nil, mapStoreError(err)
	}
	s.publish(model.NewArticleEvent(model.ActionCreate, created))
	return created, nil
}

// Get возвращает статью по id, сначала из кэша
func (s *ArticlesService) Get(ctx context.Context, id int64) (*model.Article, error) {
	key := articleKey(id)
	if data, err := s.cache.Get(ctx, key); err == nil {
		var a model.Article
		if err := json.Unmarshal(data, &a); err == nil {
			return &a, nil
		}
	}
	a, err := s.repo.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(a); err == nil {
		if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
			slog.Warn("failed to cache article", "id", id, "error", err)
		}
	}
	return a, nil
}

// Update заменяет все поля статьи (PUT)
func (s *ArticlesService) Update(ctx context.Context, id int64, in model.ArticleInput) (*model.Article, error) {
	return s.update(ctx, id, in, false)
}

// Patch меняет только переданные поля (PATCH)
func (s *ArticlesService) Patch(ctx context.Context, id int64, in model.ArticleInput) (*model.Article, error) {
	return s.update(ctx, id, in, true)
}

func (s *ArticlesService) update(ctx context.Context, id int64, in model.ArticleInput, partial bool) (*model.Article, error) {
	current, err := s.repo.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	var base *model.Article
	if partial {
		base = current
	}
	a, err := s.validateInput(in, base)
	if err != nil {
		return nil, err
	}
	a.ID = id
	updated, err := s.repo.UpdateArticle(ctx, a)
	if err != nil {
		return nil, mapStoreError(err)
	}
	s.invalidate(ctx, id)
	s.publish(model.NewArticleEvent(model.ActionUpdate, updated))
	return updated, nil
}

// Delete удаляет статью физически
func (s *ArticlesService) Delete(ctx context.Context, id int64) error {
	a, err := s.repo.GetArticle(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteArticle(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.publish(model.NewArticleEvent(model.ActionDelete, a))
	return nil
}

// List возвращает страницу number (с 1) в порядке id.
// Первая страница существует всегда, даже для пустого каталога
func (s *ArticlesService) List(ctx context.Context, number int) (*model.Page, error) {
	if number < 1 {
		return nil, ErrInvalidPage
	}
	articles, total, err := s.repo.ListArticles(ctx, PageSize, (number-1)*PageSize)
	if err != nil {
		return nil, err
	}
	if number > 1 && len(articles) == 0 {
		return nil, ErrInvalidPage
	}
	return &model.Page{Articles: articles, Total: total, Number: number, Size: PageSize}, nil
}

func (s *ArticlesService) invalidate(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = articleKey(id)
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		slog.Warn("failed to invalidate cache", "keys", len(keys), "error", err)
	}
}

// publish: журнал событий не влияет на результат операции
func (s *ArticlesService) publish(e model.ArticleEvent) {
	if err := s.events.PublishEvent(e); err != nil {
		slog.Warn("failed to publish event", "action", e.Action, "error", err)
	}
}

// mapStoreError превращает конфликт code в ошибку поля
func mapStoreError(err error) error {
	if errors.Is(err, repository.ErrDuplicateCode) {
		return model.NewValidationError("code", msgCodeTaken)
	}
	return err
}

// Сообщения ошибок полей
const (
	msgRequired  = "This field is required."
	msgBlank     = "This field may not be blank."
	msgMaxLength = "Ensure this field has no more than %d characters."
	msgNumber    = "A valid number is required."
	msgPlaces    = "Ensure that there are no more than %d decimal places."
	msgDigits    = "Ensure that there are no more than %d digits in total."
	msgCodeTaken = "article with this code already exists."
)

// articleFields представляет поля статьи в виде, в котором их проверяет validator
type articleFields struct {
	Code        string `json:"code" validate:"notblank,max=50"`
	Description string `json:"description" validate:"notblank,max=255"`
	Price       string `json:"price" validate:"notblank,price"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	// ошибки называют поля так же, как JSON
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("price", func(fl validator.FieldLevel) bool {
		return priceError(fl.Field().String()) == ""
	})
	return v
}

// priceError возвращает сообщение об ошибке цены или пустую строку
func priceError(raw string) string {
	d, err := model.ParsePrice(raw)
	if err != nil {
		return msgNumber
	}
	switch err := model.CheckPrice(d); {
	case errors.Is(err, model.ErrPricePlaces):
		return fmt.Sprintf(msgPlaces, model.PriceDecimalPlaces)
	case errors.Is(err, model.ErrPriceTooLarge):
		return fmt.Sprintf(msgDigits, model.PriceMaxDigits)
	}
	return ""
}

// validateInput проверяет входные поля. Если base задан (PATCH), непереданные поля берутся из него,
// иначе отсутствующее поле считается ошибкой
func (s *ArticlesService) validateInput(in model.ArticleInput, base *model.Article) (*model.Article, error) {
	verr := &model.ValidationError{}
	fields := articleFields{}
	pick := func(name string, v *string, fallback string) string {
		switch {
		case v != nil:
			return strings.TrimSpace(*v)
		case base != nil:
			return fallback
		}
		verr.Add(name, msgRequired)
		return ""
	}
	var baseCode, baseDesc, basePrice string
	if base != nil {
		baseCode, baseDesc, basePrice = base.Code, base.Description, base.Price.String()
	}
	fields.Code = pick("code", in.Code, baseCode)
	fields.Description = pick("description", in.Description, baseDesc)
	fields.Price = pick("price", in.Price, basePrice)

	if err := s.validate.Struct(fields); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return nil, fmt.Errorf("failed to validate article: %w", err)
		}
		for _, fe := range ves {
			if _, missing := verr.Fields[fe.Field()]; missing {
				continue
			}
			verr.Add(fe.Field(), fieldMessage(fe))
		}
	}
	if !verr.Empty() {
		return nil, verr
	}

	price, err := model.ParsePrice(fields.Price)
	if err != nil {
		return nil, model.NewValidationError("price", msgNumber)
	}
	return &model.Article{Code: fields.Code, Description: fields.Description, Price: price}, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank":
		return msgBlank
	case "max":
		return fmt.Sprintf(msgMaxLength, maxLength(fe.Field()))
	case "price":
		return priceError(fmt.Sprint(fe.Value()))
	}
	return fmt.Sprintf("failed on %s", fe.Tag())
}

func maxLength(field string) int {
	if field == "code" {
		return model.CodeMaxLength
	}
	return model.DescriptionMaxLength
}

type noopCache struct{}

func (noopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (noopCache) Get(context.Context, string) ([]byte, error)              { return nil, errNoCache }
func (noopCache) Invalidate(context.Context, ...string) error              { return nil }

var errNoCache = errors.New("cache disabled")

type noopPublisher struct{}

func (noopPublisher) PublishEvent(any) error { return nil }
