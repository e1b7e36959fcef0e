package report

import (
	"context"
	"strings"

	"github.com/qamtools/reviewtool/internal/models"
)

// Outcome — трёхзначный итог тестового отчёта.
type Outcome int

// Возможные значения Outcome.
const (
	OutcomeUnknown Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

// Report — тестовый отчёт, привязанный ровно к одной заявке.
type Report struct {
	// Fields — карта полей отчёта с ключами в нижнем регистре.
	Fields map[string]string
	// Outcome — итог тестирования по отчёту.
	Outcome Outcome
	// LogURL — машиночитаемый адрес артефакта.
	LogURL string
	// ReportURL — адрес отчёта для человека.
	ReportURL string
}

// Rating возвращает серьёзность инцидента из отчёта.
func (r *Report) Rating() string {
	return r.Fields["rating"]
}

// ReviewerComment возвращает комментарий тестировщика из отчёта.
func (r *Report) ReviewerComment() string {
	return r.Fields["comment"]
}

// Source разрешает тестовый отчёт по заявке. Отсутствующий артефакт
// обозначается ошибкой domain.ErrReportNotFound.
type Source interface {
	Load(ctx context.Context, req *models.Request) (*Report, error)
}

// severityOrder задаёт порядок сортировки серьёзности: критичное раньше.
var severityOrder = map[string]int{
	"critical":  0,
	"important": 1,
	"moderate":  2,
	"low":       3,
}

// SeverityRank возвращает ранг серьёзности для сортировки; неизвестные и
// пустые значения уходят в конец.
func SeverityRank(rating string) int {
	if rank, ok := severityOrder[strings.ToLower(strings.TrimSpace(rating))]; ok {
		return rank
	}
	return len(severityOrder)
}
