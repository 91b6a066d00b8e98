package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/kizami/internal/errs"
	"github.com/and161185/kizami/internal/model"
	"github.com/and161185/kizami/internal/repository"
	"github.com/and161185/kizami/internal/timewindow"
)

const dateLayout = "2006-01-02"

// EntryService defines operations over time entries.
type EntryService interface {
	// TimeOptions lists the selectable quarter-hour times of a day.
	TimeOptions() []string
	// CalculateHours returns the grid-checked duration between two HH:MM values.
	CalculateHours(start, end string) (float64, error)
	// Create validates raw input and stores the entry.
	Create(ctx context.Context, in model.EntryInput) (model.TimeEntry, error)
}

type EntryServiceImpl struct {
	repo repository.EntryRepository
}

var _ EntryService = (*EntryServiceImpl)(nil)

// NewEntryService constructs EntryService.
func NewEntryService(repo repository.EntryRepository) *EntryServiceImpl {
	return &EntryServiceImpl{repo: repo}
}

func (s *EntryServiceImpl) TimeOptions() []string { return timewindow.Options() }

func (s *EntryServiceImpl) CalculateHours(start, end string) (float64, error) {
	st, err := timewindow.Parse(start)
	if err != nil {
		return 0, err
	}
	en, err := timewindow.Parse(end)
	if err != nil {
		return 0, err
	}
	return timewindow.Validate(st, en)
}

// Normalize trims every field.
func Normalize(in model.EntryInput) model.EntryInput {
	return model.EntryInput{
		Date:           strings.TrimSpace(in.Date),
		ClientID:       strings.TrimSpace(in.ClientID),
		WorkCategoryID: strings.TrimSpace(in.WorkCategoryID),
		StartTime:      strings.TrimSpace(in.StartTime),
		EndTime:        strings.TrimSpace(in.EndTime),
		Comment:        strings.TrimSpace(in.Comment),
	}
}

// Validate reports every missing or malformed field at once.
func Validate(in model.EntryInput) error {
	var msgs []string
	if in.Date == "" {
		msgs = append(msgs, "date is required")
	} else if _, err := time.Parse(dateLayout, in.Date); err != nil {
		msgs = append(msgs, "date must be YYYY-MM-DD")
	}
	if in.ClientID == "" {
		msgs = append(msgs, "client is required")
	} else if _, ok := parseID(in.ClientID); !ok {
		msgs = append(msgs, "client is invalid")
	}
	if in.WorkCategoryID == "" {
		msgs = append(msgs, "work category is required")
	} else if _, ok := parseID(in.WorkCategoryID); !ok {
		msgs = append(msgs, "work category is invalid")
	}
	msgs = append(msgs, checkTime("start time", in.StartTime)...)
	msgs = append(msgs, checkTime("end time", in.EndTime)...)
	if len(msgs) > 0 {
		return fmt.Errorf("%w: %s", errs.ErrValidation, strings.Join(msgs, "; "))
	}
	return nil
}

// Create normalizes and validates input, then hands the entry to the repository,
// which re-derives the hours before writing.
func (s *EntryServiceImpl) Create(ctx context.Context, raw model.EntryInput) (model.TimeEntry, error) {
	in := Normalize(raw)
	if err := Validate(in); err != nil {
		return model.TimeEntry{}, err
	}

	date, _ := time.Parse(dateLayout, in.Date)
	clientID, _ := parseID(in.ClientID)
	categoryID, _ := parseID(in.WorkCategoryID)

	start, err := timewindow.Parse(in.StartTime)
	if err != nil {
		return model.TimeEntry{}, err
	}
	end, err := timewindow.Parse(in.EndTime)
	if err != nil {
		return model.TimeEntry{}, err
	}
	hours, err := timewindow.Validate(start, end)
	if err != nil {
		return model.TimeEntry{}, err
	}

	e := model.TimeEntry{
		ClientID:       clientID,
		WorkCategoryID: categoryID,
		Date:           date,
		StartTime:      start,
		EndTime:        end,
		Hours:          hours,
	}
	if in.Comment != "" {
		e.Comment = &in.Comment
	}
	if _, err := s.repo.Create(ctx, &e); err != nil {
		return model.TimeEntry{}, err
	}
	return e, nil
}

func checkTime(label, v string) []string {
	switch {
	case v == "":
		return []string{label + " is required"}
	case !timewindow.IsQuarterAlignedString(v):
		if _, err := timewindow.Parse(v); err != nil {
			return []string{label + " is malformed"}
		}
		return []string{label + " must be on a 15 minute step"}
	}
	return nil
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}
