package models

import (
	"strings"
	"time"
)

// ReviewState перечисляет состояния ревью в удалённой системе.
type ReviewState string

// Возможные значения ReviewState.
const (
	ReviewStateNew        ReviewState = "new"
	ReviewStateReview     ReviewState = "review"
	ReviewStateAccepted   ReviewState = "accepted"
	ReviewStateDeclined   ReviewState = "declined"
	ReviewStateRevoked    ReviewState = "revoked"
	ReviewStateSuperseded ReviewState = "superseded"
)

// ReviewEventKind классифицирует записи истории ревью.
type ReviewEventKind int

// Распознаваемые виды событий истории.
const (
	EventUnknown ReviewEventKind = iota
	EventAssigned
	EventAccepted
	EventReopened
)

// ReviewEvent — одна запись истории переходов состояния ревью.
type ReviewEvent struct {
	Description string
	Who         string
	When        time.Time
}

// Kind определяет вид события по его описанию. Нераспознанные описания дают
// EventUnknown и игнорируются свёрткой назначений.
func (e ReviewEvent) Kind() ReviewEventKind {
	desc := strings.ToLower(e.Description)
	switch {
	case strings.Contains(desc, "accepted"):
		return EventAccepted
	case strings.Contains(desc, "reopened"):
		return EventReopened
	case strings.Contains(desc, "assigned"):
		return EventAssigned
	default:
		return EventUnknown
	}
}

// ReviewRecord — сырая запись ревью из истории заявки вместе с её событиями.
type ReviewRecord struct {
	State   ReviewState
	ByGroup string
	ByUser  string
	Who     string
	When    time.Time
	Events  []ReviewEvent
}

// Review — типизированная обёртка записи ревью: либо групповое ревью, либо
// персональное. Вариант выбирается по дискриминатору записи при разборе.
type Review interface {
	// Reviewer возвращает идентичность ревьюера: имя группы либо логин.
	Reviewer() string
	State() ReviewState
	// Open сообщает, ожидает ли ревью решения (new или review).
	Open() bool
	// Closed сообщает, завершено ли ревью принятием. Состояние declined
	// не относится ни к открытым, ни к закрытым.
	Closed() bool
	Record() *ReviewRecord
	isReview()
}

// GroupReview — ревью, ожидаемое от группы.
type GroupReview struct {
	Group  Group
	record *ReviewRecord
}

// UserReview — персональное ревью конкретного пользователя.
type UserReview struct {
	User   User
	record *ReviewRecord
}

func (r *GroupReview) isReview() {}
func (r *UserReview) isReview()  {}

// Reviewer возвращает имя группы.
func (r *GroupReview) Reviewer() string { return r.Group.Name }

// Reviewer возвращает логин пользователя.
func (r *UserReview) Reviewer() string { return r.User.Login }

// State возвращает текущее состояние записи ревью.
func (r *GroupReview) State() ReviewState { return r.record.State }

// State возвращает текущее состояние записи ревью.
func (r *UserReview) State() ReviewState { return r.record.State }

// Open сообщает, ожидает ли групповое ревью решения.
func (r *GroupReview) Open() bool { return stateOpen(r.record.State) }

// Open сообщает, ожидает ли персональное ревью решения.
func (r *UserReview) Open() bool { return stateOpen(r.record.State) }

// Closed сообщает, принято ли групповое ревью.
func (r *GroupReview) Closed() bool { return r.record.State == ReviewStateAccepted }

// Closed сообщает, принято ли персональное ревью.
func (r *UserReview) Closed() bool { return r.record.State == ReviewStateAccepted }

// Record возвращает сырую запись, на которой построено ревью.
func (r *GroupReview) Record() *ReviewRecord { return r.record }

// Record возвращает сырую запись, на которой построено ревью.
func (r *UserReview) Record() *ReviewRecord { return r.record }

// stateOpen относит состояние к открытым.
func stateOpen(s ReviewState) bool {
	return s == ReviewStateNew || s == ReviewStateReview
}

// classifyReview выбирает вариант ревью по дискриминатору записи. Записи с
// иными дискриминаторами (по проекту, по пакету) типизированного варианта не
// имеют и пропускаются.
func classifyReview(rec *ReviewRecord) Review {
	switch {
	case rec.ByGroup != "":
		return &GroupReview{Group: Group{Name: rec.ByGroup}, record: rec}
	case rec.ByUser != "":
		return &UserReview{User: User{Login: rec.ByUser}, record: rec}
	default:
		return nil
	}
}
