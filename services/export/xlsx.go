package export

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// Workbook builds one sheet per table: bold header, autofilter on the header row,
// and column widths fitted to the content.
func Workbook(tables ...Table) (*excelize.File, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, "creating header style")
	}

	used := make(map[string]int, len(tables))
	for i, t := range tables {
		name := sheetName(t.Title, i)
		if n := used[name]; n > 0 {
			used[name]++
			base := []rune(name)
			if len(base) > 26 {
				base = base[:26]
			}
			name = fmt.Sprintf("%s (%d)", string(base), n+1)
		}
		used[name]++
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return nil, errors.Wrap(err, "renaming sheet")
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, errors.Wrap(err, "creating sheet")
		}

		if err := f.SetSheetRow(name, "A1", &t.Header); err != nil {
			return nil, errors.Wrap(err, "writing header")
		}
		for r, row := range t.Rows {
			cells := make([]interface{}, len(row))
			for c, v := range row {
				cells[c] = v
			}
			if err := f.SetSheetRow(name, fmt.Sprintf("A%d", r+2), &cells); err != nil {
				return nil, errors.Wrapf(err, "writing row %d", r+2)
			}
		}
		if len(t.Header) == 0 {
			continue
		}
		last := columnName(len(t.Header))
		_ = f.SetCellStyle(name, "A1", last+"1", bold)
		_ = f.AutoFilter(name, "A1:"+last+"1", nil)
		fitColumns(f, name, t)
	}
	return f, nil
}

// WriteWorkbook streams the workbook of tables to w.
func WriteWorkbook(w io.Writer, tables ...Table) error {
	f, err := Workbook(tables...)
	if err != nil {
		return err
	}
	defer f.Close()
	return errors.Wrap(f.Write(w), "writing workbook")
}

func fitColumns(f *excelize.File, sheet string, t Table) {
	for c := range t.Header {
		width := len([]rune(t.Header[c])) + 2
		for r := 0; r < len(t.Rows) && r < 100; r++ {
			if c < len(t.Rows[r]) {
				if l := len([]rune(t.Rows[r][c])); l > width {
					width = l
				}
			}
		}
		w := float64(width) * 1.1
		if w < 10 {
			w = 10
		}
		if w > 60 {
			w = 60
		}
		col := columnName(c + 1)
		_ = f.SetColWidth(sheet, col, col, w)
	}
}

// sheet names are limited to 31 chars and must not contain []:*?/\
func sheetName(title string, i int) string {
	clean := make([]rune, 0, len(title))
	for _, r := range title {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			r = '_'
		}
		clean = append(clean, r)
	}
	if len(clean) > 31 {
		clean = clean[:31]
	}
	if len(clean) == 0 {
		return fmt.Sprintf("Sheet%d", i+1)
	}
	return string(clean)
}

// columnName maps 1 -> A, 27 -> AA.
func columnName(n int) string {
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+(n%26))) + s
		n /= 26
	}
	return s
}
