package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Exam.SubmissionGrace)
	assert.Equal(t, 15*time.Minute, cfg.Evaluation.ScanInterval)
	assert.Equal(t, time.Minute, cfg.Exam.TemplateCacheTTL)
	assert.Equal(t, "exam-engine.events", cfg.Notifier.Stream)
	assert.Equal(t, int64(100000), cfg.Notifier.MaxLen)
	assert.Equal(t, "09:00", cfg.Calendar.WorkStart)
	assert.Equal(t, "18:00", cfg.Calendar.WorkEnd)
	assert.Equal(t, []string{"MON", "TUE", "WED", "THU", "FRI", "SAT"}, cfg.Calendar.WorkingDays)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("EXAM_SUBMISSION_GRACE", "90s")
	t.Setenv("EVALUATION_TIE_BREAK", "count_only")
	t.Setenv("CALENDAR_WORKING_DAYS", "MON, TUE ,WED")
	t.Setenv("EVALUATION_SCAN_INTERVAL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Exam.SubmissionGrace)
	assert.Equal(t, "count_only", cfg.Evaluation.TieBreak)
	assert.Equal(t, []string{"MON", "TUE", "WED"}, cfg.Calendar.WorkingDays)
	assert.Equal(t, 15*time.Minute, cfg.Evaluation.ScanInterval)
}
