// Package model declares the staffing collections and wires the
// generic record machinery into an application: entity hooks that
// derive denormalized keys, and the rollup cascade from attendance
// days up to yearly summaries.
package model

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/crewbase/crewbase/internal/compiler"
	"github.com/crewbase/crewbase/internal/document"
	"github.com/crewbase/crewbase/internal/record"
	"github.com/crewbase/crewbase/internal/rollup"
	"github.com/crewbase/crewbase/internal/schema"
	"github.com/crewbase/crewbase/internal/store"
)

//go:embed collections.cue
var collectionsCUE string

// Collections compiles the embedded declarations. A compile error here
// is a programming error, so callers at startup treat it as fatal.
func Collections() (schema.Registry, error) {
	return compiler.CompileSource(collectionsCUE)
}

// App is the assembled application: one record base, one roller, one
// store, writing as one author.
type App struct {
	Base   *record.Base
	Roller *rollup.Roller
}

// NewApp wires declarations, hooks, and the rollup cascade over an
// open store.
func NewApp(s *store.Store, author string) (*App, error) {
	registry, err := Collections()
	if err != nil {
		return nil, fmt.Errorf("compile collection declarations: %w", err)
	}

	roller := rollup.New(s, author)
	roller.Register(rollup.Level{
		Leaf:           "attendance_days",
		Summary:        "attendance_months",
		PartitionField: "monthKey",
		SumFields:      []string{"hours", "overtime"},
		MapFields:      []string{"allowances"},
		CountField:     "days",
		Roll:           monthToYear,
		RollField:      "yearKey",
	})
	roller.Register(rollup.Level{
		Leaf:           "attendance_months",
		Summary:        "attendance_years",
		PartitionField: "yearKey",
		SumFields:      []string{"hours", "overtime"},
		MapFields:      []string{"allowances"},
		CountField:     "months",
	})
	roller.Register(rollup.Level{
		Leaf:           "billing",
		Summary:        "billing_years",
		PartitionField: "yearKey",
		SumFields:      []string{"amount", "tax"},
		CountField:     "invoices",
	})

	base := record.New(s, registry, author,
		record.WithHooks("work_results", workResultHooks{}),
		record.WithHooks("attendance_days", attendanceHooks{roller}),
		record.WithHooks("billing", billingHooks{roller}),
	)
	return &App{Base: base, Roller: roller}, nil
}

// monthToYear maps a month partition to its year partition:
// "E0001-202603" rolls to "E0001-2026".
func monthToYear(partition string) string {
	if len(partition) < 2 {
		return partition
	}
	return partition[:len(partition)-2]
}

// MonthKey derives the month partition of an attendance day from its
// employee and date ("2026-03-15" under "E0001" is "E0001-202603").
func MonthKey(employeeID, date string) string {
	return employeeID + "-" + strings.ReplaceAll(date, "-", "")[:6]
}

// workResultHooks keeps workerIds, the flat id array probed by the
// employee delete guard, in sync with the embedded workers array.
type workResultHooks struct {
	record.NopHooks
}

func (workResultHooks) BeforeCreate(_ context.Context, _ record.ReadOnlyView, rec *document.Record) error {
	return syncWorkerIDs(rec)
}

func (workResultHooks) BeforeUpdate(_ context.Context, _ record.ReadOnlyView, rec *document.Record) error {
	return syncWorkerIDs(rec)
}

func syncWorkerIDs(rec *document.Record) error {
	// Partial updates that leave the workers array alone must not
	// clobber the stored workerIds the delete guard depends on.
	if _, ok := rec.Fields["workers"]; !ok {
		return nil
	}
	workers := rec.Array("workers")
	ids := make([]any, 0, len(workers))
	for _, w := range workers {
		entry, ok := w.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := entry["employeeId"].(string); id != "" {
			ids = append(ids, id)
		}
	}
	rec.Fields["workerIds"] = ids
	return nil
}

// attendanceHooks derives the month partition before writes and
// triggers the day→month→year cascade after commits.
type attendanceHooks struct {
	roller *rollup.Roller
}

func (attendanceHooks) BeforeCreate(_ context.Context, _ record.ReadOnlyView, rec *document.Record) error {
	return stampMonthKey(rec)
}

func (h attendanceHooks) AfterCreate(_ context.Context, rec document.Record) {
	h.trigger(rec)
}

func (attendanceHooks) BeforeUpdate(_ context.Context, _ record.ReadOnlyView, rec *document.Record) error {
	return stampMonthKey(rec)
}

func (h attendanceHooks) AfterUpdate(_ context.Context, _, rec document.Record) {
	h.trigger(rec)
}

func (attendanceHooks) BeforeDelete(context.Context, record.ReadOnlyView, document.Record) error {
	return nil
}

func (h attendanceHooks) AfterDelete(_ context.Context, rec document.Record) {
	h.trigger(rec)
}

func (h attendanceHooks) trigger(rec document.Record) {
	if key := rec.String("monthKey"); key != "" {
		h.roller.Trigger("attendance_days", key)
	}
}

func stampMonthKey(rec *document.Record) error {
	employeeID := rec.String("employeeId")
	date := rec.String("date")
	if employeeID == "" || date == "" {
		// Required-field validation reports the real error.
		return nil
	}
	if len(date) < 7 {
		return fmt.Errorf("malformed date %q", date)
	}
	rec.Fields["monthKey"] = MonthKey(employeeID, date)
	return nil
}

// billingHooks derives the year partition from the invoice month and
// keeps the yearly summary current.
type billingHooks struct {
	roller *rollup.Roller
}

func (billingHooks) BeforeCreate(_ context.Context, _ record.ReadOnlyView, rec *document.Record) error {
	return stampYearKey(rec)
}

func (h billingHooks) AfterCreate(_ context.Context, rec document.Record) {
	h.trigger(rec)
}

func (billingHooks) BeforeUpdate(_ context.Context, _ record.ReadOnlyView, rec *document.Record) error {
	return stampYearKey(rec)
}

func (h billingHooks) AfterUpdate(_ context.Context, prev, rec document.Record) {
	// An invoice moved to another year leaves the old summary behind
	// unless that partition is refolded too.
	if old := prev.String("yearKey"); old != "" && old != rec.String("yearKey") {
		h.roller.Trigger("billing", old)
	}
	h.trigger(rec)
}

func (billingHooks) BeforeDelete(context.Context, record.ReadOnlyView, document.Record) error {
	return nil
}

func (h billingHooks) AfterDelete(_ context.Context, rec document.Record) {
	h.trigger(rec)
}

func (h billingHooks) trigger(rec document.Record) {
	if key := rec.String("yearKey"); key != "" {
		h.roller.Trigger("billing", key)
	}
}

func stampYearKey(rec *document.Record) error {
	month := rec.String("month")
	if month == "" {
		return nil
	}
	if len(month) < 4 {
		return fmt.Errorf("malformed billing month %q", month)
	}
	rec.Fields["yearKey"] = month[:4]
	return nil
}
