package report

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qamtools/reviewtool/internal/domain"
	"github.com/qamtools/reviewtool/internal/models"
)

type mockClient struct {
	payload []byte
	err     error

	paths []string
}

func (m *mockClient) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	m.paths = append(m.paths, path)
	return m.payload, m.err
}

func (m *mockClient) Post(ctx context.Context, path string, query url.Values, body []byte) ([]byte, error) {
	return nil, nil
}

func (m *mockClient) Delete(ctx context.Context, path string) ([]byte, error) {
	return nil, nil
}

const sampleLog = `Products: SLES 15-SP6 (x86_64)
Rating: important
comment: regression confirmed
  in the curl testsuite
SUMMARY: Test results are FAILED
`

func TestLoadParsesReportArtifact(t *testing.T) {
	client := &mockClient{payload: []byte(sampleLog)}
	source := NewRemoteSource(client)

	rep, err := source.Load(context.Background(), &models.Request{ID: "42"})
	require.NoError(t, err)
	require.Equal(t, []string{"reports/42/log"}, client.paths)

	require.Equal(t, "important", rep.Rating())
	require.Equal(t, "SLES 15-SP6 (x86_64)", rep.Fields["products"])
	require.Equal(t, OutcomeFailure, rep.Outcome)
	require.Equal(t, "reports/42/log", rep.LogURL)
	require.Equal(t, "reports/42", rep.ReportURL)
}

func TestParseTextContinuationLinesExtendPreviousField(t *testing.T) {
	rep := parseText(sampleLog)
	require.Equal(t, "regression confirmed\nin the curl testsuite", rep.ReviewerComment())
}

func TestParseTextOutcomes(t *testing.T) {
	require.Equal(t, OutcomeSuccess, parseText("SUMMARY: Test results are PASSED\n").Outcome)
	require.Equal(t, OutcomeFailure, parseText("summary: FAILED with regressions\n").Outcome)
	require.Equal(t, OutcomeUnknown, parseText("Rating: low\n").Outcome)
}

func TestLoadMissingArtifactIsReportNotFound(t *testing.T) {
	client := &mockClient{err: domain.NewTransportError("https://remote/reports/42/log", 404, "not found")}
	source := NewRemoteSource(client)

	_, err := source.Load(context.Background(), &models.Request{ID: "42"})
	require.ErrorIs(t, err, domain.ErrReportNotFound)
}

func TestLoadOtherTransportErrorsPropagate(t *testing.T) {
	client := &mockClient{err: domain.NewTransportError("https://remote/reports/42/log", 500, "boom")}
	source := NewRemoteSource(client)

	_, err := source.Load(context.Background(), &models.Request{ID: "42"})
	require.True(t, domain.IsTransport(err))
	require.NotErrorIs(t, err, domain.ErrReportNotFound)
}

func TestSeverityRankOrdersKnownRatings(t *testing.T) {
	require.Less(t, SeverityRank("critical"), SeverityRank("important"))
	require.Less(t, SeverityRank("important"), SeverityRank("moderate"))
	require.Less(t, SeverityRank("moderate"), SeverityRank("low"))
	require.Less(t, SeverityRank("low"), SeverityRank("glibc"), "неизвестный рейтинг уходит в конец")
	require.Equal(t, SeverityRank("CRITICAL"), SeverityRank("critical"))
}
