package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/docman/internal/domain/document"
	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

func parsePagination(ctx *gin.Context) (limit, offset int, fields []FieldError) {
	limit = defaultLimit

	if s := ctx.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxLimit {
			fields = append(fields, FieldError{Field: "limit", Rule: "range", Param: "1-100", Message: "must be a number between 1 and 100"})
		} else {
			limit = n
		}
	}

	if s := ctx.Query("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			fields = append(fields, FieldError{Field: "offset", Rule: "min", Param: "0", Message: "must be a non-negative number"})
		} else {
			offset = n
		}
	}

	return limit, offset, fields
}

// parseDay accepts YYYY-MM-DD or RFC3339 and returns the start of that day,
// keeping the offset the client wrote.
func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("invalid date")
	}

	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()), nil
}

// parseDocumentFilter reads role, created, created_min, created_max, q, limit
// and offset. Day bounds are inclusive: created_max=2024-03-10 keeps documents
// created any time on the 10th.
func parseDocumentFilter(ctx *gin.Context) (document.ListFilter, []FieldError) {
	var filter document.ListFilter

	limit, offset, fields := parsePagination(ctx)
	filter.Limit = limit
	filter.Offset = offset

	if s := strings.TrimSpace(ctx.Query("role")); s != "" {
		r, err := role.Parse(s)
		if err != nil {
			fields = append(fields, FieldError{Field: "role", Rule: "roletitle", Message: validationMessage("roletitle", "")})
		} else {
			filter.Role = &r
		}
	}

	narrowFrom := func(t time.Time) {
		if filter.CreatedFrom == nil || t.After(*filter.CreatedFrom) {
			filter.CreatedFrom = &t
		}
	}
	narrowBefore := func(t time.Time) {
		if filter.CreatedBefore == nil || t.Before(*filter.CreatedBefore) {
			filter.CreatedBefore = &t
		}
	}

	dayParam := func(name string, apply func(day time.Time)) {
		s := strings.TrimSpace(ctx.Query(name))
		if s == "" {
			return
		}
		day, err := parseDay(s)
		if err != nil {
			fields = append(fields, FieldError{Field: name, Rule: "date", Message: "must be YYYY-MM-DD or RFC3339"})
			return
		}
		apply(day)
	}

	var minDay, maxDay *time.Time

	dayParam("created", func(day time.Time) {
		narrowFrom(day)
		narrowBefore(day.AddDate(0, 0, 1))
	})
	dayParam("created_min", func(day time.Time) {
		minDay = &day
		narrowFrom(day)
	})
	dayParam("created_max", func(day time.Time) {
		maxDay = &day
		narrowBefore(day.AddDate(0, 0, 1))
	})

	if minDay != nil && maxDay != nil && minDay.After(*maxDay) {
		fields = append(fields, FieldError{Field: "created_min", Rule: "order", Message: "must not be after created_max"})
	}

	if q := strings.TrimSpace(ctx.Query("q")); q != "" {
		filter.Query = &q
	}

	return filter, fields
}
