// Package export renders tabular data as CSV files and xlsx workbooks.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat validates a requested export format. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	default:
		return "", core.NewValidationError(nil, core.FieldError{
			Field: "format",
			Error: fmt.Sprintf("unsupported export format %q", s),
		})
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

var unsafeName = regexp.MustCompile(`[^a-z0-9_-]+`)

// Filename is "<resource>-<YYYY-MM-DD>.<ext>".
func Filename(resource string, format Format, now time.Time) string {
	resource = unsafeName.ReplaceAllString(strings.ToLower(resource), "_")
	if resource == "" {
		resource = "export"
	}
	return fmt.Sprintf("%s-%s.%s", resource, now.Format("2006-01-02"), format)
}

// Table is a header plus string rows.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return errors.Wrap(err, "writing csv rows")
	}
	return nil
}
