package service

import (
	"context"
	"fmt"
	"io"

	"ArticlesCatalog/internal/spreadsheet"
)

// ExportHeader: заголовок выгрузки; совпадает с псевдонимами импорта
var ExportHeader = []string{"code", "description", "price"}

// Export пишет все статьи в порядке id в xlsx-книгу с листом Articles.
// Цена пишется числом
func (s *ArticlesService) Export(ctx context.Context, w io.Writer) error {
	articles, err := s.repo.AllArticles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load articles: %w", err)
	}
	rows := make([][]any, 0, len(articles))
	for _, a := range articles {
		price, _ := a.Price.Float64()
		rows = append(rows, []any{a.Code, a.Description, price})
	}
	return spreadsheet.Write(w, spreadsheet.DefaultSheet, ExportHeader, rows)
}
