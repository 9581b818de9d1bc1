package validator

import (
	"strings"
	"testing"

	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

func newTestValidator() *ScheduleValidator {
	log := logger.New(logger.Config{
		Level:   "error",
		Format:  logger.JSON,
		Service: "test",
	})
	return NewScheduleValidator(log)
}

func validSchedule() *model.Schedule {
	return &model.Schedule{
		DoctorID:  "64c0000000000000000000c1",
		Weekday:   model.Monday,
		StartTime: "09:00",
		EndTime:   "17:00",
	}
}

func TestValidate_ValidSchedule(t *testing.T) {
	v := newTestValidator()
	if err := v.Validate(validSchedule()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_TimeFormat(t *testing.T) {
	tests := []struct {
		name      string
		startTime string
		valid     bool
	}{
		{"midnight", "00:00", true},
		{"late afternoon", "16:59", true},
		{"hour out of range", "24:00", false},
		{"minute out of range", "09:60", false},
		{"missing leading zero", "9:00", false},
		{"not a time", "morning", false},
		{"empty", "", false},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := validSchedule()
			sc.StartTime = tt.startTime
			err := v.Validate(sc)
			if tt.valid && err != nil {
				t.Errorf("expected %q to validate, got %v", tt.startTime, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("expected %q to be rejected", tt.startTime)
			}
		})
	}
}

func TestValidate_EndMustFollowStart(t *testing.T) {
	v := newTestValidator()

	sc := validSchedule()
	sc.StartTime = "17:00"
	sc.EndTime = "09:00"
	if err := v.Validate(sc); err == nil {
		t.Errorf("expected inverted range to be rejected")
	}

	sc = validSchedule()
	sc.StartTime = "09:00"
	sc.EndTime = "09:00"
	if err := v.Validate(sc); err == nil {
		t.Errorf("expected zero-length range to be rejected")
	}
}

func TestValidate_UnknownWeekday(t *testing.T) {
	v := newTestValidator()
	sc := validSchedule()
	sc.Weekday = "Funday"
	err := v.Validate(sc)
	if err == nil {
		t.Fatalf("expected unknown weekday to be rejected")
	}
	if !strings.Contains(err.Error(), "Weekday") {
		t.Errorf("error should name the weekday field, got %v", err)
	}
}

func TestValidateDayOff(t *testing.T) {
	v := newTestValidator()

	d := &model.DayOff{
		DoctorID: "64c0000000000000000000c1",
		Date:     "2026-02-10",
		Status:   model.DayOffPending,
	}
	if err := v.ValidateDayOff(d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Date = "10/02/2026"
	if err := v.ValidateDayOff(d); err == nil {
		t.Errorf("expected non ISO date to be rejected")
	}

	d.Date = "2026-02-10"
	d.Reason = strings.Repeat("x", 501)
	if err := v.ValidateDayOff(d); err == nil {
		t.Errorf("expected overlong reason to be rejected")
	}
}
