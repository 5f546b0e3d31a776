package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSelector is returned for selectors that name no model.
var ErrInvalidSelector = errors.New("invalid selector")

// Selector picks a model or column and the directions to traverse, using
// dbt's graph operator syntax: "+orders.amount" selects upstream,
// "orders.amount+" downstream and "orders.amount" both.
type Selector struct {
	Model      string
	Column     string // empty selects the whole model
	Upstream   bool
	Downstream bool
}

// ParseSelector parses "[+]model[.column][+]".
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Selector{}, fmt.Errorf("%w: selector cannot be empty", ErrInvalidSelector)
	}

	sel := Selector{
		Upstream:   strings.HasPrefix(s, "+"),
		Downstream: strings.HasSuffix(s, "+"),
	}
	if !sel.Upstream && !sel.Downstream {
		sel.Upstream, sel.Downstream = true, true
	}

	body := strings.Trim(s, "+")
	model, column, _ := strings.Cut(body, ".")
	sel.Model = strings.ToLower(strings.TrimSpace(model))
	sel.Column = strings.ToLower(strings.TrimSpace(column))
	if sel.Model == "" {
		return Selector{}, fmt.Errorf("%w: %q names no model", ErrInvalidSelector, s)
	}
	return sel, nil
}

// HasColumn reports whether the selector names a column.
func (s Selector) HasColumn() bool {
	return s.Column != ""
}

// Direction describes the traversal directions.
func (s Selector) Direction() string {
	switch {
	case s.Upstream && s.Downstream:
		return "both directions"
	case s.Upstream:
		return "upstream"
	default:
		return "downstream"
	}
}

func (s Selector) String() string {
	target := s.Model
	if s.Column != "" {
		target += "." + s.Column
	}
	return fmt.Sprintf("%s (%s)", target, s.Direction())
}
