package models

import "context"

// RequestState перечисляет состояния заявки на обслуживание.
type RequestState string

// Возможные значения RequestState.
const (
	RequestStateNew        RequestState = "new"
	RequestStateReview     RequestState = "review"
	RequestStateDeclined   RequestState = "declined"
	RequestStateAccepted   RequestState = "accepted"
	RequestStateRevoked    RequestState = "revoked"
	RequestStateSuperseded RequestState = "superseded"
)

// RequestAction описывает одно действие сборки, привязанное к заявке.
type RequestAction struct {
	Type          string
	SourceProject string
	SourcePackage string
	TargetProject string
}

// RequestReader дозагружает производные данные заявки из удалённой системы.
type RequestReader interface {
	Comments(ctx context.Context, requestID string) ([]Comment, error)
	IncidentPriority(ctx context.Context, project string) (int, error)
	Issues(ctx context.Context, project string) ([]string, error)
}

// Request описывает заявку на обслуживание. Идентичность задаётся парой
// (идентификатор, исходный проект). Производные свойства вычисляются лениво
// и кэшируются на время жизни экземпляра; мутирующие вызовы к удалённой
// системе кэши не сбрасывают.
type Request struct {
	ID            string `validate:"required"`
	SourceProject string
	Creator       string
	State         RequestState
	Description   string
	Actions       []RequestAction
	// Records — упорядоченная сырая история ревью заявки.
	Records []*ReviewRecord

	loader RequestReader

	reviews        []Review
	reviewsLoaded  bool
	comments       []Comment
	commentsLoaded bool
	priority       int
	priorityLoaded bool
	packages       []string
	issues         []string
	issuesLoaded   bool
}

// Identity возвращает идентичность заявки.
func (r *Request) Identity() string {
	return r.ID + "@" + r.SourceProject
}

// BindLoader подключает источник ленивых дозагрузок.
func (r *Request) BindLoader(l RequestReader) {
	r.loader = l
}

// ReviewList классифицирует сырые записи истории в типизированные ревью и
// кэширует результат. Записи без группового или пользовательского
// дискриминатора в список не попадают.
func (r *Request) ReviewList() []Review {
	if r.reviewsLoaded {
		return r.reviews
	}
	for _, rec := range r.Records {
		if review := classifyReview(rec); review != nil {
			r.reviews = append(r.reviews, review)
		}
	}
	r.reviewsLoaded = true
	return r.reviews
}

// OpenReviews возвращает ревью в открытых состояниях.
func (r *Request) OpenReviews() []Review {
	var out []Review
	for _, rev := range r.ReviewList() {
		if rev.Open() {
			out = append(out, rev)
		}
	}
	return out
}

// AcceptedReviews возвращает принятые ревью.
func (r *Request) AcceptedReviews() []Review {
	var out []Review
	for _, rev := range r.ReviewList() {
		if rev.State() == ReviewStateAccepted {
			out = append(out, rev)
		}
	}
	return out
}

// GroupReviews возвращает типизированные групповые ревью заявки.
func (r *Request) GroupReviews() []*GroupReview {
	var out []*GroupReview
	for _, rev := range r.ReviewList() {
		if gr, ok := rev.(*GroupReview); ok {
			out = append(out, gr)
		}
	}
	return out
}

// UserReviews возвращает типизированные персональные ревью заявки.
func (r *Request) UserReviews() []*UserReview {
	var out []*UserReview
	for _, rev := range r.ReviewList() {
		if ur, ok := rev.(*UserReview); ok {
			out = append(out, ur)
		}
	}
	return out
}

// GroupReviewFor возвращает групповое ревью по имени группы.
func (r *Request) GroupReviewFor(name string) (*GroupReview, bool) {
	for _, gr := range r.GroupReviews() {
		if gr.Group.Name == name {
			return gr, true
		}
	}
	return nil, false
}

// UserReviewFor возвращает персональное ревью по логину.
func (r *Request) UserReviewFor(login string) (*UserReview, bool) {
	for _, ur := range r.UserReviews() {
		if ur.User.Login == login {
			return ur, true
		}
	}
	return nil, false
}

// Packages возвращает пакеты из действий сборки без дублей, с кэшированием.
func (r *Request) Packages() []string {
	if r.packages != nil {
		return r.packages
	}
	seen := make(map[string]bool, len(r.Actions))
	packages := make([]string, 0, len(r.Actions))
	for _, a := range r.Actions {
		if a.SourcePackage == "" || seen[a.SourcePackage] {
			continue
		}
		seen[a.SourcePackage] = true
		packages = append(packages, a.SourcePackage)
	}
	r.packages = packages
	return r.packages
}

// Comments возвращает комментарии заявки, загружая их при первом вызове.
func (r *Request) Comments(ctx context.Context) ([]Comment, error) {
	if r.commentsLoaded {
		return r.comments, nil
	}
	if r.loader == nil {
		return nil, nil
	}
	comments, err := r.loader.Comments(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.comments = comments
	r.commentsLoaded = true
	return r.comments, nil
}

// Priority возвращает приоритет инцидента, загружая его при первом вызове.
func (r *Request) Priority(ctx context.Context) (int, error) {
	if r.priorityLoaded {
		return r.priority, nil
	}
	if r.loader == nil {
		return 0, nil
	}
	priority, err := r.loader.IncidentPriority(ctx, r.SourceProject)
	if err != nil {
		return 0, err
	}
	r.priority = priority
	r.priorityLoaded = true
	return r.priority, nil
}

// Issues возвращает ссылки на дефекты инцидента, загружая их при первом вызове.
func (r *Request) Issues(ctx context.Context) ([]string, error) {
	if r.issuesLoaded {
		return r.issues, nil
	}
	if r.loader == nil {
		return nil, nil
	}
	issues, err := r.loader.Issues(ctx, r.SourceProject)
	if err != nil {
		return nil, err
	}
	r.issues = issues
	r.issuesLoaded = true
	return r.issues, nil
}
