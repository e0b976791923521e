package echoapi

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
)

const dateLayout = "2006-01-02"

// bindJSON decodes the request body into dst, rejecting unknown fields and trailing data.
func bindJSON(ctx echo.Context, dst interface{}) error {
	dec := json.NewDecoder(ctx.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return core.NewValidationError(errors.New("request body is empty"))
		}
		return core.NewValidationError(errors.Wrap(err, "invalid request body"))
	}
	if dec.More() {
		return core.NewValidationError(errors.New("request body must hold a single JSON object"))
	}
	return nil
}

// query reads the supported query parameters of a listing.
// Malformed values are reported per parameter.
type query struct {
	ctx    echo.Context
	fields []core.FieldError
}

func newQuery(ctx echo.Context) *query {
	return &query{ctx: ctx}
}

func (q *query) String(name string) string {
	return core.CleanString(q.ctx.QueryParam(name))
}

// Strings accepts both `?id=a&id=b` and `?id=a,b`.
func (q *query) Strings(name string) []string {
	var vals []string
	for _, val := range q.ctx.QueryParams()[name] {
		vals = append(vals, strings.Split(val, ",")...)
	}
	return core.CleanStrings(vals)
}

func (q *query) Int(name string) int {
	val := q.String(name)
	if val == "" {
		return 0
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		q.fields = append(q.fields, core.FieldError{Field: name, Error: "must be a positive integer"})
		return 0
	}
	return i
}

func (q *query) Bool(name string) bool {
	val := q.String(name)
	if val == "" {
		return false
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		q.fields = append(q.fields, core.FieldError{Field: name, Error: "must be a boolean"})
	}
	return b
}

func (q *query) Date(name string) time.Time {
	val := q.String(name)
	if val == "" {
		return time.Time{}
	}
	d, err := time.Parse(dateLayout, val)
	if err != nil {
		q.fields = append(q.fields, core.FieldError{Field: name, Error: "must be a date (YYYY-MM-DD)"})
	}
	return d
}

func (q *query) Page() core.Page {
	p := core.Page{Page: q.Int("page"), PageSize: q.Int("page_size")}
	p.Clean()
	return p
}

func (q *query) Err() error {
	if len(q.fields) == 0 {
		return nil
	}
	return core.NewValidationError(nil, q.fields...)
}
