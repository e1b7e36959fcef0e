package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qamtools/reviewtool/internal/domain"
	"github.com/qamtools/reviewtool/internal/models"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func accepted(who string, offset time.Duration) models.ReviewEvent {
	return models.ReviewEvent{Description: "Review got accepted", Who: who, When: baseTime.Add(offset)}
}

func reopened(who string, offset time.Duration) models.ReviewEvent {
	return models.ReviewEvent{Description: "Review got reopened", Who: who, When: baseTime.Add(offset)}
}

func groupRecord(group string, state models.ReviewState, events ...models.ReviewEvent) *models.ReviewRecord {
	return &models.ReviewRecord{State: state, ByGroup: group, Events: events}
}

func userRecord(login string, state models.ReviewState) *models.ReviewRecord {
	return &models.ReviewRecord{State: state, ByUser: login}
}

func newRequest(id string, records ...*models.ReviewRecord) *models.Request {
	return &models.Request{
		ID:            id,
		SourceProject: "SUSE:Maintenance:1",
		State:         models.RequestStateReview,
		Records:       records,
	}
}

func newEngine() *InferenceEngine {
	return NewInferenceEngine(models.InternalConvention, nil)
}

func TestInferSingleAccept(t *testing.T) {
	req := newRequest("1", groupRecord("qam-sle", models.ReviewStateAccepted, accepted("alice", 0)))

	set, err := newEngine().Assignments(req)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	require.True(t, set.Contains(models.Assignment{
		User:  models.User{Login: "alice"},
		Group: models.Group{Name: "qam-sle"},
	}))
}

func TestInferAcceptThenReopenCancelsOut(t *testing.T) {
	req := newRequest("1", groupRecord("qam-sle", models.ReviewStateNew,
		accepted("alice", 0),
		reopened("alice", time.Minute),
	))

	set, err := newEngine().Assignments(req)
	require.NoError(t, err)
	require.Equal(t, 0, set.Len())
}

func TestInferSortsEventsByTimestamp(t *testing.T) {
	// События приходят в обратном порядке; свёртка обязана упорядочить их.
	req := newRequest("1", groupRecord("qam-sle", models.ReviewStateNew,
		reopened("alice", time.Minute),
		accepted("alice", 0),
	))

	set, err := newEngine().Assignments(req)
	require.NoError(t, err)
	require.Equal(t, 0, set.Len())
}

func TestInferDuplicateAcceptsAbsorbed(t *testing.T) {
	req := newRequest("1", groupRecord("qam-sle", models.ReviewStateAccepted,
		accepted("alice", 0),
		accepted("alice", time.Minute),
	))

	set, err := newEngine().Assignments(req)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
}

func TestInferReopenWithoutAcceptIsNoop(t *testing.T) {
	req := newRequest("1", groupRecord("qam-sle", models.ReviewStateNew,
		reopened("alice", 0),
		accepted("bob", time.Minute),
	))

	set, err := newEngine().Assignments(req)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	require.True(t, set.ContainsUser("bob"))
}

func TestInferClosedPersonalReviewExcludesUser(t *testing.T) {
	req := newRequest("1",
		groupRecord("qam-sle", models.ReviewStateAccepted, accepted("alice", 0)),
		userRecord("alice", models.ReviewStateAccepted),
	)

	set, err := newEngine().Assignments(req)
	require.NoError(t, err)
	require.Equal(t, 0, set.Len(), "a finished personal review removes the assignment")
}

func TestInferOpenPersonalReviewKeepsUser(t *testing.T) {
	req := newRequest("1",
		groupRecord("qam-sle", models.ReviewStateAccepted, accepted("alice", 0)),
		userRecord("alice", models.ReviewStateNew),
	)

	set, err := newEngine().Assignments(req)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
}

func TestInferIgnoresNonQAMAndIrrelevantGroups(t *testing.T) {
	req := newRequest("1",
		groupRecord("devs", models.ReviewStateNew, accepted("alice", 0)),
		groupRecord("qam-auto", models.ReviewStateNew, accepted("alice", 0)),
		groupRecord("qam-sle", models.ReviewStateDeclined, accepted("alice", 0)),
	)

	set, err := newEngine().Assignments(req)
	require.NoError(t, err)
	require.Equal(t, 0, set.Len())
}

func TestInferCrossGroupOrderIrrelevant(t *testing.T) {
	recA := groupRecord("qam-sle", models.ReviewStateAccepted, accepted("alice", time.Hour))
	recB := groupRecord("qam-cloud", models.ReviewStateAccepted, accepted("bob", 0))

	setAB, err := newEngine().Assignments(newRequest("1", recA, recB))
	require.NoError(t, err)
	setBA, err := newEngine().Assignments(newRequest("1", recB, recA))
	require.NoError(t, err)

	require.Equal(t, setAB.List(), setBA.List())
	require.Equal(t, 2, setAB.Len())
}

func TestInferIntraGroupOrderMattersOnEqualTimestamps(t *testing.T) {
	// При равных метках времени tie-break сохраняет исходный порядок,
	// поэтому перестановка внутри одной группы меняет результат.
	acceptFirst := newRequest("1", groupRecord("qam-sle", models.ReviewStateNew,
		accepted("alice", 0), reopened("alice", 0)))
	reopenFirst := newRequest("1", groupRecord("qam-sle", models.ReviewStateNew,
		reopened("alice", 0), accepted("alice", 0)))

	setA, err := newEngine().Assignments(acceptFirst)
	require.NoError(t, err)
	setB, err := newEngine().Assignments(reopenFirst)
	require.NoError(t, err)

	require.Equal(t, 0, setA.Len())
	require.Equal(t, 1, setB.Len())
}

func TestInferResultCachedPerRequestIdentity(t *testing.T) {
	engine := newEngine()
	req := newRequest("1", groupRecord("qam-sle", models.ReviewStateAccepted, accepted("alice", 0)))

	first, err := engine.Assignments(req)
	require.NoError(t, err)

	// Дописанная история не влияет: результат уже кэширован.
	req.Records[0].Events = append(req.Records[0].Events, reopened("alice", time.Minute))
	second, err := engine.Assignments(req)
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestAssignmentsForUnknownGroupFailsLoudly(t *testing.T) {
	req := newRequest("1", groupRecord("qam-sle", models.ReviewStateNew, accepted("alice", 0)))

	_, err := newEngine().AssignmentsFor(req, models.Group{Name: "qam-cloud"})
	require.ErrorIs(t, err, domain.ErrLookup)
}

func TestAssignmentsForExplicitSubset(t *testing.T) {
	req := newRequest("1",
		groupRecord("qam-sle", models.ReviewStateAccepted, accepted("alice", 0)),
		groupRecord("qam-cloud", models.ReviewStateAccepted, accepted("bob", 0)),
	)

	set, err := newEngine().AssignmentsFor(req, models.Group{Name: "qam-cloud"})
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	require.True(t, set.ContainsUser("bob"))
}
