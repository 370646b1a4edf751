package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"ArticlesCatalog/internal/model"
)

// ErrNotFound возвращается при отсутствии записи
var ErrNotFound = errors.New("record not found")

// ErrDuplicateCode возвращается при нарушении уникальности code
var ErrDuplicateCode = errors.New("article with this code already exists")

// uniqueViolation: SQLSTATE нарушения уникального индекса
const uniqueViolation = "23505"

const articleColumns = `id, code, description, price`

// ArticleRepository реализует доступ к таблице articles
type ArticleRepository struct {
	db *sql.DB
}

// NewArticleRepository создает новый репозиторий статей
func NewArticleRepository(db *sql.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// Ping проверяет доступность базы (используется в /readyz)
func (r *ArticleRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateArticle добавляет новую статью, id назначает последовательность
func (r *ArticleRepository) CreateArticle(ctx context.Context, code, description string, price decimal.Decimal) (*model.Article, error) {
	query := `INSERT INTO articles(code, description, price) VALUES($1, $2, $3) RETURNING id`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, code, description, price).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to insert article: %w", err)
	}
	return &model.Article{ID: id, Code: code, Description: description, Price: price}, nil
}

// GetArticle возвращает статью по id
func (r *ArticleRepository) GetArticle(ctx context.Context, id int64) (*model.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id=$1`
	var a model.Article
	err := r.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.Code, &a.Description, &a.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return &a, nil
}

// UpdateArticle перезаписывает code, description и price статьи с заданным id
func (r *ArticleRepository) UpdateArticle(ctx context.Context, a *model.Article) (*model.Article, error) {
	query := `UPDATE articles SET code=$1, description=$2, price=$3 WHERE id=$4 RETURNING ` + articleColumns
	var out model.Article
	err := r.db.QueryRowContext(ctx, query, a.Code, a.Description, a.Price, a.ID).
		Scan(&out.ID, &out.Code, &out.Description, &out.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to update article: %w", err)
	}
	return &out, nil
}

// DeleteArticle удаляет статью физически
func (r *ArticleRepository) DeleteArticle(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM articles WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListArticles возвращает страницу статей в порядке id и общее количество записей
func (r *ArticleRepository) ListArticles(ctx context.Context, limit, offset int) ([]model.Article, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count articles: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to select articles list: %w", err)
	}
	defer rows.Close()
	articles, err := scanArticles(rows)
	if err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

// AllArticles возвращает все статьи в порядке создания (id по возрастанию)
func (r *ArticleRepository) AllArticles(ctx context.Context) ([]model.Article, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

func scanArticles(rows *sql.Rows) ([]model.Article, error) {
	articles := make([]model.Article, 0)
	for rows.Next() {
		var a model.Article
		if err := rows.Scan(&a.ID, &a.Code, &a.Description, &a.Price); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}
	return articles, nil
}

// isUniqueViolation проверяет код ошибки Postgres
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
