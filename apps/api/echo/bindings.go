package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

var (
	pageParam     = "page"
	pageSizeParam = "page_size"
)

// Pagination binds the common page/page_size query params. Zero values mean
// "caller did not ask"; services apply their own defaults.
type Pagination struct {
	Page     int
	PageSize int
}

func (p *Pagination) Bind(ctx echo.Context) {
	if v, err := strconv.Atoi(ctx.QueryParam(pageParam)); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(ctx.QueryParam(pageSizeParam)); err == nil && v > 0 {
		p.PageSize = v
	}
}
