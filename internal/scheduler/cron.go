package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CalculateNextDue вычисляет следующее время срабатывания записи.
// Учитывает timezone записи.
func CalculateNextDue(e *Entry, from time.Time) (time.Time, error) {
	loc := time.UTC
	if e.Timezone != "" {
		l, err := time.LoadLocation(e.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("load timezone %q: %w", e.Timezone, err)
		}
		loc = l
	}

	fromInTz := from.In(loc)

	if e.IsCron() {
		return calculateNextCron(e.Cron, fromInTz)
	}

	if e.IsInterval() {
		return calculateNextInterval(e.IntervalSec, fromInTz), nil
	}

	return time.Time{}, fmt.Errorf("%w: entry %q has neither cron nor interval_sec", ErrInvalidEntry, e.Name)
}

// calculateNextCron вычисляет следующее время по cron-выражению.
func calculateNextCron(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}

	return schedule.Next(from).UTC(), nil
}

// calculateNextInterval вычисляет следующее время по интервалу.
func calculateNextInterval(intervalSec int, from time.Time) time.Time {
	return from.Add(time.Duration(intervalSec) * time.Second).UTC()
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}
