package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ImportTx перечисляет операции, доступные внутри транзакции импорта
type ImportTx interface {
	// UpsertArticle обновляет статью с таким code или создаёт новую.
	// created=true, если запись была вставлена
	UpsertArticle(ctx context.Context, code, description string, price decimal.Decimal) (id int64, created bool, err error)
}

// upsertQuery: xmax = 0 только у строки, вставленной текущей командой
const upsertQuery = `INSERT INTO articles(code, description, price) VALUES($1, $2, $3)
	ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description, price = EXCLUDED.price
	RETURNING id, (xmax = 0) AS inserted`

// WithinImport выполняет fn в одной транзакции.
// Ошибка fn или паника откатывают транзакцию, иначе она фиксируется
func (r *ArticleRepository) WithinImport(ctx context.Context, fn func(tx ImportTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// после Commit откат ничего не делает
	defer tx.Rollback()
	if err := fn(&importTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// importTx оборачивает каждую запись в SAVEPOINT, чтобы ошибка одной строки
// не переводила всю транзакцию Postgres в состояние aborted
type importTx struct {
	tx  *sql.Tx
	seq int
}

func (t *importTx) UpsertArticle(ctx context.Context, code, description string, price decimal.Decimal) (int64, bool, error) {
	t.seq++
	sp := fmt.Sprintf("import_row_%d", t.seq)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
		return 0, false, fmt.Errorf("failed to create savepoint: %w", err)
	}
	var id int64
	var inserted bool
	if err := t.tx.QueryRowContext(ctx, upsertQuery, code, description, price).Scan(&id, &inserted); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
			return 0, false, fmt.Errorf("failed to rollback to savepoint: %w", rbErr)
		}
		return 0, false, fmt.Errorf("failed to upsert article: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
		return 0, false, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return id, inserted, nil
}

// IsDataError сообщает, что ошибка вызвана данными строки, а не состоянием базы:
// классы SQLSTATE 22 (data exception) и 23 (integrity constraint violation).
// Такие ошибки записываются в отчёт импорта, остальные прерывают транзакцию
func IsDataError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code.Class() {
	case "22", "23":
		return true
	}
	return false
}

// DataErrorDetail возвращает текст ошибки Postgres без обёрток для отчёта импорта
func DataErrorDetail(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Message
	}
	return err.Error()
}
