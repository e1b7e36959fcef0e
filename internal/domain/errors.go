package domain

import (
	"errors"
	"fmt"
)

// Сентинельные ошибки, используемые парсером, движком назначений и действиями.
var (
	ErrParse          = errors.New("PARSE_ERROR")
	ErrLookup         = errors.New("LOOKUP_FAILED")
	ErrReportNotFound = errors.New("REPORT_NOT_FOUND")

	// Семейство ошибок валидации: нарушенные предусловия действий.
	// Возвращаются вызывающему как есть и никогда не запускают откат.
	ErrMissingReviewer     = errors.New("MISSING_REVIEWER")
	ErrNotAssigned         = errors.New("NOT_ASSIGNED")
	ErrNoActiveReview      = errors.New("NO_ACTIVE_REVIEW")
	ErrUninferableGroup    = errors.New("UNINFERABLE_GROUP")
	ErrNotUnderReview      = errors.New("NOT_UNDER_REVIEW")
	ErrNotPreviousReviewer = errors.New("NOT_PREVIOUS_REVIEWER")
	ErrReportMissing       = errors.New("REPORT_MISSING")
	ErrReportNotPassed     = errors.New("REPORT_NOT_PASSED")
	ErrReportNotFailed     = errors.New("REPORT_NOT_FAILED")
	ErrMissingComment      = errors.New("MISSING_COMMENT")
)

// validationFamily перечисляет сентинелы семейства ошибок валидации.
var validationFamily = []error{
	ErrMissingReviewer,
	ErrNotAssigned,
	ErrNoActiveReview,
	ErrUninferableGroup,
	ErrNotUnderReview,
	ErrNotPreviousReviewer,
	ErrReportMissing,
	ErrReportNotPassed,
	ErrReportNotFailed,
	ErrMissingComment,
}

// IsValidation сообщает, относится ли ошибка к семейству ошибок валидации.
func IsValidation(err error) bool {
	for _, sentinel := range validationFamily {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// TransportError описывает сбой связи с удалённым build-сервисом.
type TransportError struct {
	URL        string
	StatusCode int
	Message    string
}

// Error форматирует транспортную ошибку с URL и статусом ответа.
func (e *TransportError) Error() string {
	return fmt.Sprintf("remote request failed: %s: status %d: %s", e.URL, e.StatusCode, e.Message)
}

// NewTransportError создаёт транспортную ошибку для неуспешного ответа.
func NewTransportError(url string, status int, message string) *TransportError {
	return &TransportError{
		URL:        url,
		StatusCode: status,
		Message:    message,
	}
}

// IsTransport сообщает, вызвана ли ошибка сбоем связи с удалённой системой.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// NewParseError возвращает ошибку разбора входного документа.
func NewParseError(detail string) error {
	return fmt.Errorf("%w: %s", ErrParse, detail)
}

// WrapParseError оборачивает низкоуровневую ошибку разбора XML.
func WrapParseError(err error) error {
	return fmt.Errorf("%w: %v", ErrParse, err)
}

// NewLookupError сообщает об отсутствии обязательной под-записи.
func NewLookupError(resource string) error {
	return fmt.Errorf("%w: %s not found", ErrLookup, resource)
}

// NewMissingReviewerError используется, когда операции не передан ни пользователь, ни группа.
func NewMissingReviewerError(operation string) error {
	return fmt.Errorf("%w: %s requires a user or a group", ErrMissingReviewer, operation)
}

// NewNotAssignedError сообщает, что пользователь не числится среди назначенных на заявку.
func NewNotAssignedError(login, requestID string) error {
	return fmt.Errorf("%w: user %s is not assigned on request %s", ErrNotAssigned, login, requestID)
}

// NewNoActiveReviewError используется при попытке снять назначение, которого нет.
func NewNoActiveReviewError(login, requestID string) error {
	return fmt.Errorf("%w: user %s has no active review on request %s", ErrNoActiveReview, login, requestID)
}

// NewUninferableGroupError сообщает, что группу нельзя вывести однозначно.
func NewUninferableGroupError(login string, candidates int) error {
	return fmt.Errorf("%w: %d candidate groups for user %s, pass an explicit group", ErrUninferableGroup, candidates, login)
}

// NewNotUnderReviewError сообщает, что группа не участвует в ревью заявки.
func NewNotUnderReviewError(group, requestID string) error {
	return fmt.Errorf("%w: group %s is not reviewing request %s", ErrNotUnderReview, group, requestID)
}

// NewNotPreviousReviewerError используется при повторном назначении на отклонённую заявку.
func NewNotPreviousReviewerError(login, requestID string) error {
	return fmt.Errorf("%w: user %s did not review declined request %s before", ErrNotPreviousReviewer, login, requestID)
}

// NewReportMissingError сообщает об отсутствии тестового отчёта по заявке.
func NewReportMissingError(requestID string) error {
	return fmt.Errorf("%w: no test report for request %s", ErrReportMissing, requestID)
}

// NewReportNotPassedError используется, когда отчёт не подтверждает успех тестирования.
func NewReportNotPassedError(requestID string) error {
	return fmt.Errorf("%w: test report for request %s does not report success", ErrReportNotPassed, requestID)
}

// NewReportNotFailedError используется, когда отклонение не подкреплено провалом тестов.
func NewReportNotFailedError(requestID string) error {
	return fmt.Errorf("%w: test report for request %s does not report failure", ErrReportNotFailed, requestID)
}

// NewMissingCommentError сообщает об отсутствии обязательного комментария тестировщика.
func NewMissingCommentError(requestID string) error {
	return fmt.Errorf("%w: test report for request %s carries no reviewer comment", ErrMissingComment, requestID)
}
