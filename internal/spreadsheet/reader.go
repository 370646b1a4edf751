// Package spreadsheet читает и пишет xlsx-книги, не вникая в смысл данных
package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrInvalidFileFormat возвращается, если поток не является читаемой xlsx-книгой
var ErrInvalidFileFormat = errors.New("invalid file format")

// CellKind: тип значения ячейки
type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
)

// Cell хранит значение ячейки без форматирования
type Cell struct {
	Kind  CellKind
	Value string
}

// IsEmpty сообщает, что в ячейке нет значения (пробелы не считаются)
func (c Cell) IsEmpty() bool {
	return c.Kind == CellEmpty || strings.TrimSpace(c.Value) == ""
}

// Row: строка листа; ячейки справа от последней заполненной отсутствуют
type Row []Cell

// Cell возвращает i-ю ячейку или пустую, если строка короче
func (r Row) Cell(i int) Cell {
	if i < 0 || i >= len(r) {
		return Cell{}
	}
	return r[i]
}

// IsEmpty сообщает, что все ячейки строки пусты
func (r Row) IsEmpty() bool {
	for _, c := range r {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// Read читает активный лист книги.
// Пустые строки внутри листа сохраняются, чтобы номер строки совпадал с позицией в файле
func Read(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFileFormat, err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrInvalidFileFormat)
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFileFormat, err)
	}

	rows := make([]Row, len(raw))
	for i, values := range raw {
		row := make(Row, len(values))
		for j, v := range values {
			if v == "" {
				continue
			}
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidFileFormat, err)
			}
			typ, err := f.GetCellType(sheet, name)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidFileFormat, err)
			}
			row[j] = Cell{Kind: kindOf(typ), Value: v}
		}
		rows[i] = row
	}
	return rows, nil
}

// kindOf: ячейка без атрибута t по стандарту OOXML числовая
func kindOf(t excelize.CellType) CellKind {
	switch t {
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		return CellNumber
	default:
		return CellText
	}
}
