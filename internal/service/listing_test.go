package service

import (
	"context"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qamtools/reviewtool/internal/domain"
	"github.com/qamtools/reviewtool/internal/models"
	"github.com/qamtools/reviewtool/internal/report"
)

type mockRequestSource struct {
	byIDFn   func(id string) (*models.Request, error)
	searchFn func(match string) ([]*models.Request, error)

	matches []string
}

func (m *mockRequestSource) ByID(ctx context.Context, id string) (*models.Request, error) {
	return m.byIDFn(id)
}

func (m *mockRequestSource) Search(ctx context.Context, match string) ([]*models.Request, error) {
	m.matches = append(m.matches, match)
	return m.searchFn(match)
}

type fnReportSource struct {
	fn func(req *models.Request) (*report.Report, error)
}

func (s *fnReportSource) Load(ctx context.Context, req *models.Request) (*report.Report, error) {
	return s.fn(req)
}

type staticReader struct {
	priorities map[string]int
}

func (r *staticReader) Comments(ctx context.Context, requestID string) ([]models.Comment, error) {
	return nil, nil
}

func (r *staticReader) IncidentPriority(ctx context.Context, project string) (int, error) {
	return r.priorities[project], nil
}

func (r *staticReader) Issues(ctx context.Context, project string) ([]string, error) {
	return nil, nil
}

func ratingReport(rating string) *report.Report {
	return &report.Report{
		Fields:  map[string]string{"rating": rating},
		Outcome: report.OutcomeSuccess,
	}
}

func listRequest(id, project string) *models.Request {
	return &models.Request{ID: id, SourceProject: project, State: models.RequestStateReview}
}

func newListLister(requests RequestSource, reports report.Source) *Lister {
	return NewLister(requests, reports, nil, nil, models.InternalConvention, 2, nil)
}

func TestListSortsNumericIDsAscending(t *testing.T) {
	src := &mockRequestSource{searchFn: func(string) ([]*models.Request, error) {
		return []*models.Request{
			listRequest("100", "SUSE:Maintenance:100"),
			listRequest("9", "SUSE:Maintenance:9"),
			listRequest("21", "SUSE:Maintenance:21"),
		}, nil
	}}
	reports := &fnReportSource{fn: func(*models.Request) (*report.Report, error) {
		return ratingReport("moderate"), nil
	}}

	out, err := newListLister(src, reports).List(context.Background(), Query{Kind: QueryOpenForGroup, Group: "qam-sle"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, "9", out[0].Request.ID)
	require.Equal(t, "21", out[1].Request.ID)
	require.Equal(t, "100", out[2].Request.ID)
}

func TestCompareRequestIDsExtremeValues(t *testing.T) {
	// Вычитание чисел здесь переполнилось бы: сравнение обязано быть явным.
	min := strconv.Itoa(math.MinInt)
	max := strconv.Itoa(math.MaxInt)
	require.Equal(t, -1, compareRequestIDs(min, max))
	require.Equal(t, 1, compareRequestIDs(max, min))
	require.Equal(t, 0, compareRequestIDs(max, max))

	// Нечисловые идентификаторы сравниваются как строки.
	require.Negative(t, compareRequestIDs("abc", "abd"))
}

func TestListSortsBySeverityRankOnEqualIDs(t *testing.T) {
	// Лексикографически low < critical < moderate: если бы сортировка шла
	// по строке рейтинга, порядок был бы другим.
	ratings := map[string]string{
		"SUSE:Maintenance:a": "low",
		"SUSE:Maintenance:b": "critical",
		"SUSE:Maintenance:c": "moderate",
	}
	src := &mockRequestSource{searchFn: func(string) ([]*models.Request, error) {
		return []*models.Request{
			listRequest("200", "SUSE:Maintenance:a"),
			listRequest("200", "SUSE:Maintenance:b"),
			listRequest("200", "SUSE:Maintenance:c"),
		}, nil
	}}
	reports := &fnReportSource{fn: func(req *models.Request) (*report.Report, error) {
		return ratingReport(ratings[req.SourceProject]), nil
	}}

	out, err := newListLister(src, reports).List(context.Background(), Query{Kind: QueryOpenForGroup, Group: "qam-sle"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, "critical", out[0].Report.Rating())
	require.Equal(t, "moderate", out[1].Report.Rating())
	require.Equal(t, "low", out[2].Report.Rating())
}

func TestListHigherPriorityFirstOnEqualIDAndRating(t *testing.T) {
	reader := &staticReader{priorities: map[string]int{
		"SUSE:Maintenance:a": 3,
		"SUSE:Maintenance:b": 9,
	}}
	low := listRequest("200", "SUSE:Maintenance:a")
	high := listRequest("200", "SUSE:Maintenance:b")
	low.BindLoader(reader)
	high.BindLoader(reader)

	src := &mockRequestSource{searchFn: func(string) ([]*models.Request, error) {
		return []*models.Request{low, high}, nil
	}}
	reports := &fnReportSource{fn: func(*models.Request) (*report.Report, error) {
		return ratingReport("important"), nil
	}}

	out, err := newListLister(src, reports).List(context.Background(), Query{Kind: QueryOpenForGroup, Group: "qam-sle"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 9, out[0].Priority)
	require.Equal(t, 3, out[1].Priority)
}

func TestListDropsRequestWithUnresolvableReport(t *testing.T) {
	src := &mockRequestSource{searchFn: func(string) ([]*models.Request, error) {
		return []*models.Request{
			listRequest("1", "SUSE:Maintenance:1"),
			listRequest("2", "SUSE:Maintenance:2"),
		}, nil
	}}
	reports := &fnReportSource{fn: func(req *models.Request) (*report.Report, error) {
		if req.ID == "1" {
			return nil, domain.NewTransportError("https://remote/reports/1/log", 500, "boom")
		}
		return ratingReport("low"), nil
	}}

	out, err := newListLister(src, reports).List(context.Background(), Query{Kind: QueryOpenForGroup, Group: "qam-sle"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "2", out[0].Request.ID)
}

func TestListResolvesInferredAssignmentsOnRequest(t *testing.T) {
	req := newRequest("1", groupRecord("qam-sle", models.ReviewStateAccepted, accepted("alice", 0)))
	src := &mockRequestSource{searchFn: func(string) ([]*models.Request, error) {
		return []*models.Request{req}, nil
	}}
	reports := &fnReportSource{fn: func(*models.Request) (*report.Report, error) {
		return ratingReport("moderate"), nil
	}}
	lister := NewLister(src, reports, nil, NewInferenceEngine(models.InternalConvention, nil),
		models.InternalConvention, 2, nil)

	out, err := lister.List(context.Background(), Query{
		Kind:            QueryOpenForGroup,
		Group:           "qam-sle",
		WithAssignments: true,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, []models.Assignment{{
		User:  models.User{Login: "alice"},
		Group: models.Group{Name: "qam-sle"},
	}}, out[0].Assignments)

	// Без запроса назначений свёртка истории не выполняется.
	out, err = lister.List(context.Background(), Query{Kind: QueryOpenForGroup, Group: "qam-sle"})
	require.NoError(t, err)
	require.Nil(t, out[0].Assignments)
}

func TestListByIDLoadsSingleRequest(t *testing.T) {
	src := &mockRequestSource{byIDFn: func(id string) (*models.Request, error) {
		require.Equal(t, "42", id)
		return listRequest("42", "SUSE:Maintenance:42"), nil
	}}
	reports := &fnReportSource{fn: func(*models.Request) (*report.Report, error) {
		return ratingReport("low"), nil
	}}

	out, err := newListLister(src, reports).List(context.Background(), Query{Kind: QueryByID, RequestID: "42"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "42", out[0].Request.ID)
}

func TestListOpenForGroupMatchExpression(t *testing.T) {
	src := &mockRequestSource{searchFn: func(string) ([]*models.Request, error) {
		return nil, nil
	}}
	lister := newListLister(src, &fnReportSource{fn: func(*models.Request) (*report.Report, error) {
		return ratingReport("low"), nil
	}})

	_, err := lister.List(context.Background(), Query{Kind: QueryOpenForGroup, Group: "qam-sle"})
	require.NoError(t, err)
	require.Equal(t, []string{
		"state/@name='review' and review[@by_group='qam-sle' and @state='new']",
	}, src.matches)
}

func TestListOpenForUserCombinesQAMGroups(t *testing.T) {
	resolver := &staticResolver{groups: []models.Group{
		{Name: "qam-sle"},
		{Name: "developers"},
		{Name: "qam-cloud"},
	}}
	src := &mockRequestSource{searchFn: func(string) ([]*models.Request, error) {
		return nil, nil
	}}
	lister := NewLister(src, &fnReportSource{fn: func(*models.Request) (*report.Report, error) {
		return ratingReport("low"), nil
	}}, resolver, nil, models.InternalConvention, 2, nil)

	_, err := lister.List(context.Background(), Query{Kind: QueryOpenForUser, User: "alice"})
	require.NoError(t, err)
	require.Equal(t, []string{
		"state/@name='review' and (review[@by_group='qam-sle' and @state='new'] or review[@by_group='qam-cloud' and @state='new'])",
	}, src.matches)
}

func TestListOpenForUserWithoutQAMGroupsSkipsSearch(t *testing.T) {
	resolver := &staticResolver{groups: []models.Group{{Name: "developers"}}}
	src := &mockRequestSource{searchFn: func(string) ([]*models.Request, error) {
		t.Fatal("search must not be called")
		return nil, nil
	}}
	lister := NewLister(src, &fnReportSource{fn: func(*models.Request) (*report.Report, error) {
		return ratingReport("low"), nil
	}}, resolver, nil, models.InternalConvention, 2, nil)

	out, err := lister.List(context.Background(), Query{Kind: QueryOpenForUser, User: "alice"})
	require.NoError(t, err)
	require.Empty(t, out)
}
