package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/qamtools/reviewtool/internal/models"
	"github.com/qamtools/reviewtool/internal/report"
)

// QueryKind перечисляет стратегии выборки заявок.
type QueryKind int

// Возможные значения QueryKind.
const (
	QueryByID QueryKind = iota
	QueryOpenForUser
	QueryOpenForGroup
	QueryAssignedToUser
	QueryAssignedToGroup
)

// Query задаёт стратегию выборки и её параметры.
type Query struct {
	Kind      QueryKind
	RequestID string
	User      string
	Group     string
	// WithAssignments дополняет каждую заявку выведенными назначениями.
	WithAssignments bool
}

// RequestSource описывает загрузку заявок, которая нужна листингу.
type RequestSource interface {
	ByID(ctx context.Context, id string) (*models.Request, error)
	Search(ctx context.Context, match string) ([]*models.Request, error)
}

// ListedRequest — заявка вместе с разрешённым отчётом и приоритетом.
type ListedRequest struct {
	Request  *models.Request
	Report   *report.Report
	Priority int
	// Assignments заполняется по запросу выведенными парами
	// (пользователь, группа).
	Assignments []models.Assignment
}

// Lister загружает наборы заявок по стратегии, разрешает по отчёту на заявку
// в ограниченном пуле воркеров и сортирует результат.
type Lister struct {
	requests RequestSource
	reports  report.Source
	resolver models.GroupResolver
	inf      Inferrer
	conv     models.GroupConvention
	workers  int
	log      *slog.Logger
}

// NewLister собирает листинг заявок с заданным размером пула воркеров.
func NewLister(requests RequestSource, reports report.Source, resolver models.GroupResolver, inf Inferrer, conv models.GroupConvention, workers int, log *slog.Logger) *Lister {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Lister{
		requests: requests,
		reports:  reports,
		resolver: resolver,
		inf:      inf,
		conv:     conv,
		workers:  workers,
		log:      log,
	}
}

// List выполняет выборку, разрешает отчёты и возвращает отсортированный набор.
// Заявка, отчёт которой разрешить не удалось, выпадает из результата с
// предупреждением в логе, не прерывая весь листинг.
func (l *Lister) List(ctx context.Context, q Query) ([]ListedRequest, error) {
	requests, err := l.load(ctx, q)
	if err != nil {
		return nil, err
	}

	// По одной задаче на заявку; порядок завершения не важен, слоты
	// фиксированы индексом.
	slots := make([]*ListedRequest, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			rep, err := l.reports.Load(gctx, req)
			if err != nil {
				l.log.Warn("dropping request without resolvable report",
					"request", req.ID, "error", err)
				return nil
			}
			priority, err := req.Priority(gctx)
			if err != nil {
				l.log.Debug("incident priority unavailable", "request", req.ID, "error", err)
			}
			item := &ListedRequest{Request: req, Report: rep, Priority: priority}
			if q.WithAssignments && l.inf != nil {
				set, err := l.inf.Assignments(req)
				if err != nil {
					l.log.Debug("assignments unavailable", "request", req.ID, "error", err)
				} else {
					item.Assignments = set.List()
				}
			}
			slots[i] = item
			return nil
		})
	}
	// Задачи ошибок не возвращают, ждём только завершения всех.
	_ = g.Wait()

	out := make([]ListedRequest, 0, len(slots))
	for _, slot := range slots {
		if slot != nil {
			out = append(out, *slot)
		}
	}
	sortListed(out)
	return out, nil
}

// load выполняет стратегию выборки.
func (l *Lister) load(ctx context.Context, q Query) ([]*models.Request, error) {
	switch q.Kind {
	case QueryByID:
		req, err := l.requests.ByID(ctx, q.RequestID)
		if err != nil {
			return nil, err
		}
		return []*models.Request{req}, nil
	case QueryOpenForUser:
		groups, err := l.qamGroupsOf(ctx, q.User)
		if err != nil {
			return nil, err
		}
		if len(groups) == 0 {
			return nil, nil
		}
		return l.requests.Search(ctx, openForGroupsMatch(groups))
	case QueryOpenForGroup:
		return l.requests.Search(ctx, fmt.Sprintf(
			"state/@name='review' and review[@by_group='%s' and @state='new']", q.Group))
	case QueryAssignedToUser:
		return l.requests.Search(ctx, fmt.Sprintf(
			"state/@name='review' and review[@by_user='%s' and @state='new']", q.User))
	case QueryAssignedToGroup:
		return l.requests.Search(ctx, fmt.Sprintf(
			"state/@name='review' and review[@by_group='%s' and @state='accepted']", q.Group))
	default:
		return nil, fmt.Errorf("unknown query kind %d", q.Kind)
	}
}

// qamGroupsOf возвращает QAM-группы пользователя по его членствам.
func (l *Lister) qamGroupsOf(ctx context.Context, login string) ([]models.Group, error) {
	groups, err := l.resolver.GroupsOfUser(ctx, login)
	if err != nil {
		return nil, err
	}
	var out []models.Group
	for _, g := range groups {
		if l.conv.IsQAM(g.Name) {
			out = append(out, g)
		}
	}
	return out, nil
}

// openForGroupsMatch собирает match-выражение открытых ревью любой из групп.
func openForGroupsMatch(groups []models.Group) string {
	clauses := make([]string, 0, len(groups))
	for _, g := range groups {
		clauses = append(clauses, fmt.Sprintf(
			"review[@by_group='%s' and @state='new']", g.Name))
	}
	return "state/@name='review' and (" + strings.Join(clauses, " or ") + ")"
}

// sortListed упорядочивает результат: идентификатор заявки по возрастанию,
// затем ранг серьёзности отчёта, затем численно больший приоритет раньше.
func sortListed(items []ListedRequest) {
	sort.SliceStable(items, func(i, j int) bool {
		if c := compareRequestIDs(items[i].Request.ID, items[j].Request.ID); c != 0 {
			return c < 0
		}
		ri := report.SeverityRank(items[i].Report.Rating())
		rj := report.SeverityRank(items[j].Report.Rating())
		if ri != rj {
			return ri < rj
		}
		return items[i].Priority > items[j].Priority
	})
}

// compareRequestIDs сравнивает идентификаторы численно, когда оба числовые.
func compareRequestIDs(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
