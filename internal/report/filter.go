package report

import (
	"strings"
	"time"

	"github.com/iago/obra-back/internal/domain"
)

type RangeMode string

const (
	RangeLast7Days  RangeMode = "LAST_7_DAYS"
	RangeLast30Days RangeMode = "LAST_30_DAYS"
	RangeThisMonth  RangeMode = "THIS_MONTH"
	RangeAll        RangeMode = "ALL"
)

// ParseRangeMode accepts canonical names and the short dashboard aliases
// (7d, 30d, month, all). Anything else means no bound.
func ParseRangeMode(value string) RangeMode {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(RangeLast7Days), "7D":
		return RangeLast7Days
	case string(RangeLast30Days), "30D":
		return RangeLast30Days
	case string(RangeThisMonth), "MONTH":
		return RangeThisMonth
	default:
		return RangeAll
	}
}

// LowerBound returns the earliest creation time mode admits, evaluated in
// now's location.
func LowerBound(mode RangeMode, now time.Time) (time.Time, bool) {
	switch mode {
	case RangeLast7Days:
		return now.AddDate(0, 0, -7), true
	case RangeLast30Days:
		return now.AddDate(0, 0, -30), true
	case RangeThisMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), true
	default:
		return time.Time{}, false
	}
}

// FilterByRange keeps tasks created on or after the mode's lower bound. It
// must run before aggregation because totals are range scoped. Tasks with no
// creation time are dropped whenever a bound applies.
func FilterByRange(tasks []domain.Task, mode RangeMode, now time.Time) []domain.Task {
	bound, ok := LowerBound(mode, now)
	if !ok {
		return tasks
	}
	filtered := make([]domain.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.CreatedAt.IsZero() || task.CreatedAt.Before(bound) {
			continue
		}
		filtered = append(filtered, task)
	}
	return filtered
}

// Search narrows already aggregated rows to those where any field contains
// query, ignoring case. An empty query returns rows unchanged.
func Search[T any](rows []T, query string, fields func(T) []string) []T {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return rows
	}
	matched := make([]T, 0, len(rows))
	for _, row := range rows {
		for _, field := range fields(row) {
			if strings.Contains(strings.ToLower(field), needle) {
				matched = append(matched, row)
				break
			}
		}
	}
	return matched
}
