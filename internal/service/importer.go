package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"ArticlesCatalog/internal/model"
	"ArticlesCatalog/internal/repository"
	"ArticlesCatalog/internal/spreadsheet"
)

var (
	// ErrMissingRequiredHeaders: в первой строке нет одного из обязательных столбцов
	ErrMissingRequiredHeaders = errors.New("required headers not found, use: code/codigo, description/descripcion, price/precio")
	// ErrTransactionFailure: импорт прерван и откатён целиком
	ErrTransactionFailure = errors.New("import transaction failed")
)

// Логические столбцы импорта
const (
	fieldCode        = "code"
	fieldDescription = "description"
	fieldPrice       = "price"
)

// nowUTC подменяется в тестах
var nowUTC = func() time.Time { return time.Now().UTC() }

var requiredFields = []string{fieldCode, fieldDescription, fieldPrice}

// headerAliases сопоставляет нормализованный заголовок столбцу
var headerAliases = map[string]string{
	"code":        fieldCode,
	"codigo":      fieldCode,
	"description": fieldDescription,
	"descripcion": fieldDescription,
	"descripción": fieldDescription,
	"price":       fieldPrice,
	"precio":      fieldPrice,
}

// MissingHeadersError перечисляет ненайденные столбцы
type MissingHeadersError struct {
	Missing []string
}

func (e *MissingHeadersError) Error() string {
	return fmt.Sprintf("%v: missing %s", ErrMissingRequiredHeaders, strings.Join(e.Missing, ", "))
}

func (e *MissingHeadersError) Unwrap() error {
	return ErrMissingRequiredHeaders
}

// mapHeader возвращает индекс столбца для каждого логического поля.
// При повторе псевдонима побеждает последний столбец
func mapHeader(header spreadsheet.Row) (map[string]int, error) {
	cols := make(map[string]int, len(requiredFields))
	for i, cell := range header {
		if cell.IsEmpty() {
			continue
		}
		if field, ok := headerAliases[strings.ToLower(strings.TrimSpace(cell.Value))]; ok {
			cols[field] = i
		}
	}
	var missing []string
	for _, f := range requiredFields {
		if _, ok := cols[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingHeadersError{Missing: missing}
	}
	return cols, nil
}

// importRecord: строка импорта, готовая к записи
type importRecord struct {
	code        string
	description string
	price       decimal.Decimal
}

// parseRow разбирает строку данных. skip=true означает, что строку молча пропускают;
// непустой msg содержит ошибку строки для отчёта
func parseRow(row spreadsheet.Row, cols map[string]int) (rec importRecord, skip bool, msg string) {
	code := strings.TrimSpace(row.Cell(cols[fieldCode]).Value)
	description := strings.TrimSpace(row.Cell(cols[fieldDescription]).Value)
	priceCell := row.Cell(cols[fieldPrice])
	if priceCell.IsEmpty() || code == "" || description == "" {
		return rec, true, ""
	}

	raw := priceCell.Value
	if priceCell.Kind == spreadsheet.CellText {
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	price, err := model.ParsePrice(raw)
	if err != nil {
		return rec, false, "Invalid price: " + err.Error()
	}
	price, err = model.NormalizePrice(price)
	if err != nil {
		return rec, false, "Invalid price: " + err.Error()
	}

	if n := utf8.RuneCountInString(code); n > model.CodeMaxLength {
		return rec, false, fmt.Sprintf("code: ensure this field has no more than %d characters", model.CodeMaxLength)
	}
	if n := utf8.RuneCountInString(description); n > model.DescriptionMaxLength {
		return rec, false, fmt.Sprintf("description: ensure this field has no more than %d characters", model.DescriptionMaxLength)
	}
	return importRecord{code: code, description: description, price: price}, false, ""
}

// Import загружает статьи из xlsx. Существующие по code обновляются, новые создаются.
// Ошибки отдельных строк попадают в отчёт, остальные ошибки откатывают весь импорт
func (s *ArticlesService) Import(ctx context.Context, r io.Reader) (*model.ImportResult, error) {
	rows, err := spreadsheet.Read(r)
	if err != nil {
		return nil, err
	}
	var header spreadsheet.Row
	if len(rows) > 0 {
		header = rows[0]
	}
	cols, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	var (
		result  *model.ImportResult
		touched []int64
	)
	err = s.repo.WithinImport(ctx, func(tx repository.ImportTx) error {
		// повторный вызов fn не должен суммировать счётчики
		result = &model.ImportResult{Errors: []model.RowError{}}
		touched = touched[:0]
		for i := 1; i < len(rows); i++ {
			line := i + 1
			if rows[i].IsEmpty() {
				continue
			}
			rec, skip, msg := parseRow(rows[i], cols)
			if skip {
				continue
			}
			if msg != "" {
				result.Errors = append(result.Errors, model.RowError{Row: line, Error: msg})
				continue
			}
			id, created, err := tx.UpsertArticle(ctx, rec.code, rec.description, rec.price)
			if err != nil {
				if repository.IsDataError(err) {
					result.Errors = append(result.Errors, model.RowError{Row: line, Error: repository.DataErrorDetail(err)})
					continue
				}
				return fmt.Errorf("row %d: %w", line, err)
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
			touched = append(touched, id)
		}
		return nil
	})
	if err != nil {
		slog.Error("import rolled back", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailure, err)
	}

	s.invalidate(ctx, touched...)
	s.publish(model.ArticleEvent{
		Action:    model.ActionImport,
		Created:   result.Created,
		Updated:   result.Updated,
		Failed:    len(result.Errors),
		EventTime: nowUTC(),
	})
	slog.Info("import finished", "created", result.Created, "updated", result.Updated, "errors", len(result.Errors))
	return result, nil
}
