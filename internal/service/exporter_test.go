package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ArticlesCatalog/internal/model"
	"ArticlesCatalog/internal/spreadsheet"
)

// TestExport_OrderByID: строки упорядочены по id, а не по code
func TestExport_OrderByID(t *testing.T) {
	store := newMemStore(
		model.Article{Code: "Z9", Description: "first", Price: dec("1.10")},
		model.Article{Code: "A1", Description: "second", Price: dec("2")},
		model.Article{Code: "M5", Description: "third", Price: dec("3.33")},
	)
	svc, _, _ := newTestService(store)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(context.Background(), &buf))

	rows, err := spreadsheet.Read(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, "code", rows[0].Cell(0).Value)
	require.Equal(t, "price", rows[0].Cell(2).Value)
	var codes []string
	for _, r := range rows[1:] {
		codes = append(codes, r.Cell(0).Value)
		require.Equal(t, spreadsheet.CellNumber, r.Cell(2).Kind)
	}
	require.Equal(t, []string{"Z9", "A1", "M5"}, codes)
}

// TestExport_EmptyCatalog: только заголовок
func TestExport_EmptyCatalog(t *testing.T) {
	svc, _, _ := newTestService(newMemStore())
	var buf bytes.Buffer
	require.NoError(t, svc.Export(context.Background(), &buf))

	rows, err := spreadsheet.Read(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

// TestExportImport_RoundTrip: выгрузка, загруженная в пустой каталог, даёт те же значения
func TestExportImport_RoundTrip(t *testing.T) {
	source := newMemStore(
		model.Article{Code: "A1", Description: "Tornillo 3/8", Price: dec("12.50")},
		model.Article{Code: "B2", Description: "Tuerca", Price: dec("0.10")},
		model.Article{Code: "C3", Description: "Arandela ñ", Price: dec("9999999999.99")},
		model.Article{Code: "D4", Description: "Negativo", Price: dec("-3.07")},
	)
	exportSvc, _, _ := newTestService(source)
	var buf bytes.Buffer
	require.NoError(t, exportSvc.Export(context.Background(), &buf))

	target := newMemStore()
	importSvc, _, _ := newTestService(target)
	res, err := importSvc.Import(context.Background(), &buf)
	require.NoError(t, err)
	require.Equal(t, 4, res.Created)
	require.Empty(t, res.Errors)

	for _, want := range source.sorted() {
		got, ok := target.byCode(want.Code)
		require.True(t, ok, want.Code)
		require.Equal(t, want.Description, got.Description)
		require.True(t, want.Price.Equal(got.Price), "%s: %s != %s", want.Code, want.Price, got.Price)
	}
}
