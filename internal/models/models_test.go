package models

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		{
			Number: 1, QuestionID: "q-1", Kind: QuestionKindObjective, Text: "2+2?", Marks: 2, Unit: "arith", Difficulty: DifficultyEasy,
			Objective: &ObjectivePayload{Options: Options{{Key: "A", Text: "3"}, {Key: "B", Text: "4"}}, CorrectOption: "B"},
		},
		{
			Number: 2, QuestionID: "q-2", Kind: QuestionKindSubjective, Text: "Explain carrying.", Marks: 6, Unit: "arith", Difficulty: DifficultyHard,
			Subjective: &SubjectivePayload{MaxWords: 200, Rubric: "mention carry"},
		},
	}
}

func TestExamStateTransitions(t *testing.T) {
	cases := []struct {
		from, to ExamState
		ok       bool
	}{
		{ExamStateCreated, ExamStateInProgress, true},
		{ExamStateInProgress, ExamStateSubmittedMCQ, true},
		{ExamStateSubmittedMCQ, ExamStateEvaluated, true},
		{ExamStateSubmittedMCQ, ExamStateNoEvaluationNeeded, true},
		{ExamStateCreated, ExamStateSubmittedMCQ, false},
		{ExamStateSubmittedMCQ, ExamStateInProgress, false},
		{ExamStateEvaluated, ExamStateSubmittedMCQ, false},
		{ExamStateNoEvaluationNeeded, ExamStateEvaluated, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
	assert.True(t, ExamStateEvaluated.IsTerminal())
	assert.False(t, ExamStateSubmittedMCQ.IsTerminal())
}

func TestExamInstanceAcceptsAnswersAt(t *testing.T) {
	started := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	inst := &ExamInstance{ID: "exam-1", State: ExamStateInProgress, StartedAt: &started, DurationMinutes: 60}

	deadline, err := inst.Deadline()
	require.NoError(t, err)
	assert.Equal(t, started.Add(time.Hour), deadline)

	assert.True(t, inst.AcceptsAnswersAt(deadline.Add(5*time.Minute), 5*time.Minute))
	assert.False(t, inst.AcceptsAnswersAt(deadline.Add(5*time.Minute+time.Second), 5*time.Minute))

	inst.State = ExamStateSubmittedMCQ
	assert.False(t, inst.AcceptsAnswersAt(started, time.Minute))

	_, err = (&ExamInstance{ID: "exam-2"}).Deadline()
	require.Error(t, err)
}

func TestSnapshotValidate(t *testing.T) {
	require.NoError(t, sampleSnapshot().Validate())

	cases := map[string]func(Snapshot) Snapshot{
		"empty": func(Snapshot) Snapshot { return Snapshot{} },
		"gap in numbering": func(s Snapshot) Snapshot {
			s[1].Number = 3
			return s
		},
		"objective without payload": func(s Snapshot) Snapshot {
			s[0].Objective = nil
			return s
		},
		"both payloads": func(s Snapshot) Snapshot {
			s[1].Objective = &ObjectivePayload{Options: Options{{Key: "A"}, {Key: "B"}}, CorrectOption: "A"}
			return s
		},
		"unknown correct option": func(s Snapshot) Snapshot {
			s[0].Objective.CorrectOption = "Z"
			return s
		},
		"zero marks": func(s Snapshot) Snapshot {
			s[1].Marks = 0
			return s
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, mutate(sampleSnapshot()).Validate())
		})
	}
}

func TestSnapshotStudentViewHidesKeys(t *testing.T) {
	snap := sampleSnapshot()
	view := snap.StudentView()

	want := Snapshot{
		{
			Number: 1, QuestionID: "q-1", Kind: QuestionKindObjective, Text: "2+2?", Marks: 2, Unit: "arith", Difficulty: DifficultyEasy,
			Objective: &ObjectivePayload{Options: Options{{Key: "A", Text: "3"}, {Key: "B", Text: "4"}}},
		},
		{
			Number: 2, QuestionID: "q-2", Kind: QuestionKindSubjective, Text: "Explain carrying.", Marks: 6, Unit: "arith", Difficulty: DifficultyHard,
			Subjective: &SubjectivePayload{MaxWords: 200},
		},
	}
	if diff := cmp.Diff(want, view); diff != "" {
		t.Fatalf("student view mismatch (-want +got):\n%s", diff)
	}

	view[0].Objective.Options[0].Text = "changed"
	assert.Equal(t, "3", snap[0].Objective.Options[0].Text)
	assert.Equal(t, "B", snap[0].Objective.CorrectOption)
}

func TestSnapshotRoundTripsThroughJSONB(t *testing.T) {
	snap := sampleSnapshot()
	raw, err := snap.Value()
	require.NoError(t, err)

	var out Snapshot
	require.NoError(t, out.Scan(raw))
	if diff := cmp.Diff(snap, out); diff != "" {
		t.Fatalf("snapshot changed after persistence (-want +got):\n%s", diff)
	}
	assert.Equal(t, 8.0, out.TotalMarks())
	assert.Equal(t, 2.0, out.TotalMarks(QuestionKindObjective))
	assert.Equal(t, []int{2}, out.SubjectiveNumbers())
}

func TestSubscriptionWindowCoversAndOverlaps(t *testing.T) {
	day := func(s string) time.Time {
		d, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return d
	}
	w := SubscriptionWindow{StartDate: day("2026-01-01"), EndDate: day("2026-01-31"), Active: true}

	assert.True(t, w.Covers(day("2026-01-31")))
	assert.False(t, w.Covers(day("2026-02-01")))
	assert.True(t, w.Overlaps(SubscriptionWindow{StartDate: day("2026-01-31"), EndDate: day("2026-02-28")}))
	assert.False(t, w.Overlaps(SubscriptionWindow{StartDate: day("2026-02-01"), EndDate: day("2026-02-28")}))

	w.Active = false
	assert.False(t, w.Covers(day("2026-01-15")))
}
