package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ArticlesCatalog/internal/model"
	"ArticlesCatalog/internal/repository"
)

func newTestService(store *memStore) (*ArticlesService, *memCache, *mockPublisher) {
	cache := newMemCache()
	pub := &mockPublisher{}
	return NewArticlesService(store, cache, pub, time.Minute), cache, pub
}

func validationFields(t *testing.T, err error) map[string][]string {
	t.Helper()
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	return verr.Fields
}

// TestCreate_Success: статья создаётся с обрезанными полями и публикуется событие
func TestCreate_Success(t *testing.T) {
	store := newMemStore()
	svc, _, pub := newTestService(store)

	a, err := svc.Create(context.Background(), model.ArticleInput{
		Code:        ptr("  A1 "),
		Description: ptr("Tornillo"),
		Price:       ptr("12.5"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), a.ID)
	require.Equal(t, "A1", a.Code)
	require.True(t, a.Price.Equal(dec("12.50")))

	require.Len(t, pub.events, 1)
	require.Equal(t, model.ActionCreate, pub.events[0].Action)
	require.Equal(t, "12.50", pub.events[0].Price)
}

func TestCreate_ValidationErrors(t *testing.T) {
	svc, _, pub := newTestService(newMemStore())

	_, err := svc.Create(context.Background(), model.ArticleInput{
		Code:  ptr("   "),
		Price: ptr("1.234"),
	})
	fields := validationFields(t, err)
	require.Equal(t, []string{"This field may not be blank."}, fields["code"])
	require.Equal(t, []string{"This field is required."}, fields["description"])
	require.Equal(t, []string{"Ensure that there are no more than 2 decimal places."}, fields["price"])
	require.Empty(t, pub.events)
}

func TestCreate_FieldLimits(t *testing.T) {
	svc, _, _ := newTestService(newMemStore())
	tests := []struct {
		name  string
		in    model.ArticleInput
		field string
		msg   string
	}{
		{"long code", model.ArticleInput{Code: ptr(strings.Repeat("x", 51)), Description: ptr("d"), Price: ptr("1")},
			"code", "Ensure this field has no more than 50 characters."},
		{"long description", model.ArticleInput{Code: ptr("A"), Description: ptr(strings.Repeat("я", 256)), Price: ptr("1")},
			"description", "Ensure this field has no more than 255 characters."},
		{"not a number", model.ArticleInput{Code: ptr("A"), Description: ptr("d"), Price: ptr("abc")},
			"price", "A valid number is required."},
		{"too many digits", model.ArticleInput{Code: ptr("A"), Description: ptr("d"), Price: ptr("10000000000")},
			"price", "Ensure that there are no more than 12 digits in total."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			require.Equal(t, []string{tt.msg}, validationFields(t, err)[tt.field])
		})
	}

	// граничные значения допустимы
	_, err := svc.Create(context.Background(), model.ArticleInput{
		Code: ptr(strings.Repeat("x", 50)), Description: ptr(strings.Repeat("я", 255)), Price: ptr("9999999999.99"),
	})
	require.NoError(t, err)
}

// TestCreate_DuplicateCode: конфликт code возвращается как ошибка поля code
func TestCreate_DuplicateCode(t *testing.T) {
	svc, _, _ := newTestService(newMemStore(model.Article{Code: "A1", Description: "x", Price: dec("1")}))

	_, err := svc.Create(context.Background(), model.ArticleInput{Code: ptr("A1"), Description: ptr("y"), Price: ptr("2")})
	require.Equal(t, []string{"article with this code already exists."}, validationFields(t, err)["code"])
}

// TestGet_UsesCache: второй запрос обслуживается из кэша
func TestGet_UsesCache(t *testing.T) {
	store := newMemStore(model.Article{Code: "A1", Description: "x", Price: dec("3.40")})
	svc, cache, _ := newTestService(store)
	ctx := context.Background()

	first, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Contains(t, cache.data, "article:1")

	second, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, store.getCalls)
	require.Equal(t, first.Code, second.Code)
	require.True(t, first.Price.Equal(second.Price))
}

func TestGet_NotFound(t *testing.T) {
	svc, _, _ := newTestService(newMemStore())
	_, err := svc.Get(context.Background(), 42)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

// TestUpdate_RequiresAllFields: PUT без цены не проходит
func TestUpdate_RequiresAllFields(t *testing.T) {
	svc, _, _ := newTestService(newMemStore(model.Article{Code: "A1", Description: "x", Price: dec("1")}))

	_, err := svc.Update(context.Background(), 1, model.ArticleInput{Code: ptr("A1"), Description: ptr("y")})
	require.Equal(t, []string{"This field is required."}, validationFields(t, err)["price"])
}

func TestUpdate_Success(t *testing.T) {
	store := newMemStore(model.Article{Code: "A1", Description: "x", Price: dec("1")})
	svc, cache, pub := newTestService(store)
	cache.data["article:1"] = []byte(`{"id":1,"code":"A1","description":"x","price":"1"}`)

	a, err := svc.Update(context.Background(), 1, model.ArticleInput{Code: ptr("B1"), Description: ptr("y"), Price: ptr("2.5")})
	require.NoError(t, err)
	require.Equal(t, "B1", a.Code)
	require.NotContains(t, cache.data, "article:1")
	require.Equal(t, model.ActionUpdate, pub.events[0].Action)
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _, _ := newTestService(newMemStore())
	_, err := svc.Update(context.Background(), 9, model.ArticleInput{Code: ptr("A"), Description: ptr("d"), Price: ptr("1")})
	require.ErrorIs(t, err, repository.ErrNotFound)
}

// TestPatch_KeepsOmittedFields: PATCH меняет только переданные поля
func TestPatch_KeepsOmittedFields(t *testing.T) {
	store := newMemStore(model.Article{Code: "A1", Description: "old", Price: dec("7.25")})
	svc, _, _ := newTestService(store)

	a, err := svc.Patch(context.Background(), 1, model.ArticleInput{Description: ptr("new")})
	require.NoError(t, err)
	require.Equal(t, "A1", a.Code)
	require.Equal(t, "new", a.Description)
	require.True(t, a.Price.Equal(dec("7.25")))

	_, err = svc.Patch(context.Background(), 1, model.ArticleInput{Price: ptr("x")})
	require.Equal(t, []string{"A valid number is required."}, validationFields(t, err)["price"])
}

// TestPatch_DuplicateCode: нельзя занять code другой статьи
func TestPatch_DuplicateCode(t *testing.T) {
	store := newMemStore(
		model.Article{Code: "A1", Description: "a", Price: dec("1")},
		model.Article{Code: "B1", Description: "b", Price: dec("2")},
	)
	svc, _, _ := newTestService(store)

	_, err := svc.Patch(context.Background(), 2, model.ArticleInput{Code: ptr("A1")})
	require.Contains(t, validationFields(t, err), "code")
}

func TestDelete(t *testing.T) {
	store := newMemStore(model.Article{Code: "A1", Description: "a", Price: dec("1")})
	svc, cache, pub := newTestService(store)

	require.NoError(t, svc.Delete(context.Background(), 1))
	require.Equal(t, 0, store.count())
	require.Equal(t, []string{"article:1"}, cache.invalidated)
	require.Equal(t, model.ActionDelete, pub.events[0].Action)
	require.Equal(t, "A1", pub.events[0].Code)

	require.ErrorIs(t, svc.Delete(context.Background(), 1), repository.ErrNotFound)
}

// Ошибка публикации не ломает операцию
func TestCreate_PublishErrorIgnored(t *testing.T) {
	store := newMemStore()
	pub := &mockPublisher{err: errors.New("nats down")}
	svc := NewArticlesService(store, nil, pub, time.Minute)

	_, err := svc.Create(context.Background(), model.ArticleInput{Code: ptr("A"), Description: ptr("d"), Price: ptr("1")})
	require.NoError(t, err)
	require.Equal(t, 1, store.count())
}

func TestList_Pages(t *testing.T) {
	articles := make([]model.Article, 45)
	for i := range articles {
		articles[i] = model.Article{Code: strings.Repeat("c", i+1), Description: "d", Price: dec("1")}
	}
	svc, _, _ := newTestService(newMemStore(articles...))
	ctx := context.Background()

	p, err := svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, p.Articles, PageSize)
	require.Equal(t, 45, p.Total)
	require.Equal(t, int64(1), p.Articles[0].ID)

	p, err = svc.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, p.Articles, 5)
	require.Equal(t, int64(41), p.Articles[0].ID)

	_, err = svc.List(ctx, 4)
	require.ErrorIs(t, err, ErrInvalidPage)
	_, err = svc.List(ctx, 0)
	require.ErrorIs(t, err, ErrInvalidPage)
}

// Первая страница пустого каталога существует
func TestList_EmptyFirstPage(t *testing.T) {
	svc, _, _ := newTestService(newMemStore())
	p, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, p.Articles)
	require.Equal(t, 0, p.Total)
}
