package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qamtools/reviewtool/internal/domain"
	"github.com/qamtools/reviewtool/internal/models"
	"github.com/qamtools/reviewtool/internal/remote"
)

// RemoteSource читает текстовые артефакты отчётов из удалённого хранилища.
type RemoteSource struct {
	client remote.Client
}

// NewRemoteSource создаёт источник отчётов поверх клиента build-сервиса.
func NewRemoteSource(client remote.Client) *RemoteSource {
	return &RemoteSource{client: client}
}

// Load получает и разбирает артефакт отчёта заявки. Ответ 404 означает, что
// отчёт ещё не сгенерирован.
func (s *RemoteSource) Load(ctx context.Context, req *models.Request) (*Report, error) {
	path := fmt.Sprintf("reports/%s/log", req.ID)
	payload, err := s.client.Get(ctx, path, nil)
	if err != nil {
		var te *domain.TransportError
		if errors.As(err, &te) && te.StatusCode == 404 {
			return nil, fmt.Errorf("%w: request %s", domain.ErrReportNotFound, req.ID)
		}
		return nil, err
	}

	rep := parseText(string(payload))
	rep.LogURL = path
	rep.ReportURL = fmt.Sprintf("reports/%s", req.ID)
	return rep, nil
}

// parseText разбирает строки вида "Ключ: значение"; поле SUMMARY определяет
// итог тестирования. Строки без двоеточия продолжают значение предыдущего
// поля.
func parseText(text string) *Report {
	rep := &Report{Fields: make(map[string]string)}

	var lastKey string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		key, value, found := strings.Cut(trimmed, ":")
		if !found {
			if lastKey != "" {
				rep.Fields[lastKey] = strings.TrimSpace(rep.Fields[lastKey] + "\n" + trimmed)
			}
			continue
		}
		lastKey = strings.ToLower(strings.TrimSpace(key))
		rep.Fields[lastKey] = strings.TrimSpace(value)
	}

	summary := strings.ToUpper(rep.Fields["summary"])
	switch {
	case strings.Contains(summary, "PASSED"):
		rep.Outcome = OutcomeSuccess
	case strings.Contains(summary, "FAILED"):
		rep.Outcome = OutcomeFailure
	default:
		rep.Outcome = OutcomeUnknown
	}
	return rep
}
