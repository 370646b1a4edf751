package spreadsheet

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// TestWriteRead_RoundTrip: заголовок и значения читаются обратно, числа остаются числами
func TestWriteRead_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	header := []string{"code", "description", "price"}
	err := Write(&buf, "", header, [][]any{
		{"A1", "Tornillo", 12.5},
		{"B2", "Tuerca", 0.75},
	})
	require.NoError(t, err)

	rows, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for i, h := range header {
		require.Equal(t, Cell{Kind: CellText, Value: h}, rows[0][i])
	}
	require.Equal(t, Cell{Kind: CellText, Value: "A1"}, rows[1].Cell(0))
	require.Equal(t, Cell{Kind: CellText, Value: "Tornillo"}, rows[1].Cell(1))
	require.Equal(t, Cell{Kind: CellNumber, Value: "12.5"}, rows[1].Cell(2))
	require.Equal(t, Cell{Kind: CellNumber, Value: "0.75"}, rows[2].Cell(2))
}

func TestWrite_SheetName(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "", []string{"code"}, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{DefaultSheet}, f.GetSheetList())
}

func TestRead_InvalidFormat(t *testing.T) {
	_, err := Read(strings.NewReader("code,description,price\nA1,x,1\n"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidFileFormat))
}

// Пустая строка в середине листа сохраняет позицию следующих строк
func TestRead_KeepsBlankRows(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "code"))
	require.NoError(t, f.SetCellValue("Sheet1", "A3", "A1"))
	require.NoError(t, f.SetCellValue("Sheet1", "C3", "12,50"))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	rows, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.True(t, rows[1].IsEmpty())
	require.False(t, rows[2].IsEmpty())
	// пропущенная ячейка B3 пустая, C3 текстовая
	require.True(t, rows[2].Cell(1).IsEmpty())
	require.Equal(t, Cell{Kind: CellText, Value: "12,50"}, rows[2].Cell(2))
	require.True(t, rows[2].Cell(10).IsEmpty())
}

// Читается активный лист, а не первый
func TestRead_ActiveSheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "ignored"))
	idx, err := f.NewSheet("Data")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Data", "A1", "price"))
	require.NoError(t, f.SetCellValue("Data", "A2", 3))
	f.SetActiveSheet(idx)
	var buf bytes.Buffer
	_, err = f.WriteTo(&buf)
	require.NoError(t, err)

	rows, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "price", rows[0].Cell(0).Value)
	require.Equal(t, Cell{Kind: CellNumber, Value: "3"}, rows[1].Cell(0))
}

func TestRow_IsEmpty(t *testing.T) {
	require.True(t, Row(nil).IsEmpty())
	require.True(t, Row{{Kind: CellText, Value: "   "}, {}}.IsEmpty())
	require.False(t, Row{{}, {Kind: CellNumber, Value: "0"}}.IsEmpty())
}
