package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadScheduleAcceptsYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "schedule.yml")
	if err := os.WriteFile(yml, []byte(`activities:
  - description: Tutoring
    start_date: "2024-06-01"
    planned_end_date: "2024-06-30"
    results: Attendance sheet
  - description: Workshop
    start_date: "2024-07-01"
    planned_end_date: "2024-07-15"
`), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	items, err := readSchedule(yml)
	if err != nil {
		t.Fatalf("read yaml: %v", err)
	}
	if len(items) != 2 || items[0].PlannedEndDate != "2024-06-30" || items[0].Results != "Attendance sheet" {
		t.Fatalf("unexpected items %+v", items)
	}

	js := filepath.Join(dir, "schedule.json")
	if err := os.WriteFile(js, []byte(`{"activities":[{"description":"Tutoring","start_date":"2024-06-01","planned_end_date":"2024-06-30"}]}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}
	items, err = readSchedule(js)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	if len(items) != 1 || items[0].Description != "Tutoring" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestReadScheduleRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("activities: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readSchedule(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseID(t *testing.T) {
	if _, err := parseID("0"); err == nil {
		t.Fatalf("expected zero id rejected")
	}
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Fatalf("parse 42: %d %v", id, err)
	}
}
