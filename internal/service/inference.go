package service

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/qamtools/reviewtool/internal/domain"
	"github.com/qamtools/reviewtool/internal/models"
)

// InferenceEngine восстанавливает назначения "пользователь ревьюит от имени
// группы" из истории переходов ревью заявки. Удалённая система такой факт
// явно не хранит: движок сворачивает события accepted/reopened групповых
// ревью и вычитает пользователей с уже закрытым персональным ревью.
// Результат кэшируется по идентичности заявки на время жизни экземпляра.
type InferenceEngine struct {
	conv models.GroupConvention
	log  *slog.Logger

	mu    sync.Mutex
	cache map[string]*models.AssignmentSet
}

// NewInferenceEngine создаёт движок для заданного соглашения QAM-групп.
func NewInferenceEngine(conv models.GroupConvention, log *slog.Logger) *InferenceEngine {
	if log == nil {
		log = slog.Default()
	}
	return &InferenceEngine{
		conv:  conv,
		log:   log,
		cache: make(map[string]*models.AssignmentSet),
	}
}

// Assignments возвращает выведенное множество назначений заявки.
func (e *InferenceEngine) Assignments(req *models.Request) (*models.AssignmentSet, error) {
	e.mu.Lock()
	cached, ok := e.cache[req.Identity()]
	e.mu.Unlock()
	if ok {
		return cached, nil
	}

	set, err := e.infer(req, e.candidateGroups(req))
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[req.Identity()] = set
	e.mu.Unlock()
	return set, nil
}

// AssignmentsFor выводит назначения только по указанным группам. Группа без
// записи ревью в истории заявки — нарушение предусловия: без полной истории
// решения о назначении принимать нельзя.
func (e *InferenceEngine) AssignmentsFor(req *models.Request, groups ...models.Group) (*models.AssignmentSet, error) {
	reviews := make([]*models.GroupReview, 0, len(groups))
	for _, g := range groups {
		gr, ok := req.GroupReviewFor(g.Name)
		if !ok {
			return nil, domain.NewLookupError("review history of group " + g.Name + " on request " + req.ID)
		}
		reviews = append(reviews, gr)
	}
	return e.infer(req, reviews)
}

// candidateGroups отбирает групповые QAM-ревью, всё ещё значимые для
// назначений: в состоянии new либо accepted.
func (e *InferenceEngine) candidateGroups(req *models.Request) []*models.GroupReview {
	var out []*models.GroupReview
	for _, gr := range req.GroupReviews() {
		if !e.conv.IsQAM(gr.Group.Name) {
			continue
		}
		if state := gr.State(); state == models.ReviewStateNew || state == models.ReviewStateAccepted {
			out = append(out, gr)
		}
	}
	return out
}

// infer сворачивает истории групп и вычитает закрытые персональные ревью.
func (e *InferenceEngine) infer(req *models.Request, reviews []*models.GroupReview) (*models.AssignmentSet, error) {
	set := models.NewAssignmentSet()
	// Порядок свёртки между группами значения не имеет: до объединения
	// множество каждой группы независимо.
	for _, gr := range reviews {
		set.Merge(e.foldGroupHistory(req, gr))
	}

	// Завершённое персональное ревью означает, что пользователь больше не
	// занят заявкой, даже если групповая история всё ещё его показывает.
	for _, ur := range req.UserReviews() {
		if ur.Closed() {
			set.RemoveUser(ur.User.Login)
		}
	}
	return set, nil
}

// foldGroupHistory сворачивает события одной группы в множество назначений.
// События обрабатываются строго по возрастанию метки времени; события с
// одинаковой меткой сохраняют исходный порядок.
func (e *InferenceEngine) foldGroupHistory(req *models.Request, gr *models.GroupReview) *models.AssignmentSet {
	events := make([]models.ReviewEvent, len(gr.Record().Events))
	copy(events, gr.Record().Events)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].When.Before(events[j].When)
	})

	set := models.NewAssignmentSet()
	for _, event := range events {
		assignment := models.Assignment{
			User:  models.User{Login: event.Who},
			Group: gr.Group,
		}
		switch event.Kind() {
		case models.EventAccepted:
			set.Add(assignment)
		case models.EventReopened:
			// Reopen без предшествующего accept — не ошибка.
			set.Remove(assignment)
		case models.EventAssigned:
			// Наблюдаем, но на множество не влияет: факт назначения
			// восстанавливается только из accepted/reopened.
		default:
			e.log.Debug("ignoring unrecognized review event",
				"request", req.ID,
				"group", gr.Group.Name,
				"description", event.Description)
		}
	}
	return set
}
