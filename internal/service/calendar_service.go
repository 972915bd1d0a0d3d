package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-api/internal/models"
	"github.com/noah-isme/sma-exam-api/pkg/config"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
)

// calendarHorizonDays bounds the deadline walk so an all-holiday calendar
// fails instead of looping.
const calendarHorizonDays = 730

type holidaySource interface {
	ListFrom(ctx context.Context, from time.Time) ([]models.Holiday, error)
}

var weekdayNames = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

// CalendarService converts an instant plus an SLA class into a deadline
// counted in working minutes.
type CalendarService struct {
	loc         *time.Location
	openMinute  int
	closeMinute int
	workingDays map[time.Weekday]bool
	source      holidaySource
	logger      *zap.Logger

	mu       sync.RWMutex
	holidays map[string]struct{}
	now      func() time.Time
}

// NewCalendarService validates the working-hours configuration. Every
// configuration problem is reported here so Deadline can never loop.
func NewCalendarService(cfg config.CalendarConfig, source holidaySource, logger *zap.Logger) (*CalendarService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidConfig.Code, appErrors.ErrInvalidConfig.Status, fmt.Sprintf("unknown calendar timezone %q", tz))
	}
	open, err := parseClock(cfg.WorkStart)
	if err != nil {
		return nil, err
	}
	closing, err := parseClock(cfg.WorkEnd)
	if err != nil {
		return nil, err
	}
	if closing <= open {
		return nil, appErrors.Clone(appErrors.ErrInvalidConfig, fmt.Sprintf("working window %s-%s has no length", cfg.WorkStart, cfg.WorkEnd))
	}
	days := make(map[time.Weekday]bool, len(cfg.WorkingDays))
	for _, raw := range cfg.WorkingDays {
		day, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(raw))]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrInvalidConfig, fmt.Sprintf("unknown working day %q", raw))
		}
		days[day] = true
	}
	if len(days) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidConfig, "at least one working day is required")
	}

	return &CalendarService{
		loc:         loc,
		openMinute:  open,
		closeMinute: closing,
		workingDays: days,
		source:      source,
		logger:      logger,
		holidays:    map[string]struct{}{},
		now:         time.Now,
	}, nil
}

func parseClock(raw string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInvalidConfig.Code, appErrors.ErrInvalidConfig.Status, fmt.Sprintf("invalid working hour %q", raw))
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Location is the timezone working hours are expressed in.
func (s *CalendarService) Location() *time.Location {
	return s.loc
}

// ValidateSLA rejects SLA classes other than the contractual ones.
func ValidateSLA(slaHours int) error {
	for _, valid := range models.ValidSLAHours {
		if slaHours == valid {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrInvalidSLAClass, fmt.Sprintf("sla class %dh is not supported", slaHours))
}

// SetHolidays replaces the holiday set.
func (s *CalendarService) SetHolidays(holidays []models.Holiday) {
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		set[h.Date.Format("2006-01-02")] = struct{}{}
	}
	s.mu.Lock()
	s.holidays = set
	s.mu.Unlock()
}

// Refresh reloads holidays from the admin configuration. On error the previous
// set stays in effect.
func (s *CalendarService) Refresh(ctx context.Context) error {
	if s.source == nil {
		return nil
	}
	from := s.now().In(s.loc).AddDate(0, 0, -7)
	holidays, err := s.source.ListFrom(ctx, from)
	if err != nil {
		return fmt.Errorf("refresh holidays: %w", err)
	}
	s.SetHolidays(holidays)
	s.logger.Debug("holiday calendar refreshed", zap.Int("holidays", len(holidays)))
	return nil
}

func (s *CalendarService) isWorkingDay(day time.Time) bool {
	if !s.workingDays[day.Weekday()] {
		return false
	}
	s.mu.RLock()
	_, holiday := s.holidays[day.Format("2006-01-02")]
	s.mu.RUnlock()
	return !holiday
}

// Deadline walks forward from start consuming only working minutes until
// slaHours of them are used. A start outside the window first moves to the
// next window open.
func (s *CalendarService) Deadline(start time.Time, slaHours int) (time.Time, error) {
	if err := ValidateSLA(slaHours); err != nil {
		return time.Time{}, err
	}
	remaining := time.Duration(slaHours) * time.Hour
	cursor := start.In(s.loc)

	for i := 0; i < calendarHorizonDays; i++ {
		y, m, d := cursor.Date()
		if s.isWorkingDay(cursor) {
			open := time.Date(y, m, d, 0, s.openMinute, 0, 0, s.loc)
			closing := time.Date(y, m, d, 0, s.closeMinute, 0, 0, s.loc)
			if cursor.Before(open) {
				cursor = open
			}
			if cursor.Before(closing) {
				available := closing.Sub(cursor)
				if remaining <= available {
					return cursor.Add(remaining), nil
				}
				remaining -= available
			}
		}
		cursor = time.Date(y, m, d+1, 0, 0, 0, 0, s.loc)
	}
	return time.Time{}, appErrors.Clone(appErrors.ErrInvalidConfig, "no working time within the calendar horizon")
}
