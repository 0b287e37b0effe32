package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core"
)

var (
	orderingParam = "ordering"
	queryBinder   = &echo.DefaultBinder{}
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// listParams binds the query-string filter (if any), pagination and ordering of a list request.
func listParams(ctx echo.Context, filter interface{}) (core.Pagination, []core.DBOrdering, error) {
	var page core.Pagination
	if err := queryBinder.BindQueryParams(ctx, &page); err != nil {
		return page, nil, err
	}
	page.Clean()

	if filter != nil {
		if err := queryBinder.BindQueryParams(ctx, filter); err != nil {
			return page, nil, err
		}
		if c, ok := filter.(interface{ Clean() }); ok {
			c.Clean()
		}
	}

	var ord Ordering
	ord.Bind(ctx)
	return page, ord.Orderings, nil
}

// DestroyMultipleRequest carries the ids of a bulk delete (?id=a&id=b).
type DestroyMultipleRequest struct {
	IDs []string `query:"id" json:"id" validate:"required,min=1,max=500,dive,uuid"`
}

func bindIDs(ctx echo.Context) (DestroyMultipleRequest, error) {
	var data DestroyMultipleRequest
	if err := queryBinder.BindQueryParams(ctx, &data); err != nil {
		return data, err
	}
	data.IDs = core.UniqueStrings(data.IDs)
	return data, nil
}

// bindBody binds the JSON body of ctx into data.
func bindBody(ctx echo.Context, data interface{}) error {
	return (&echo.DefaultBinder{}).BindBody(ctx, data)
}
