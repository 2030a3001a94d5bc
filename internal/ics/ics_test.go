package ics

import (
	"strings"
	"testing"
)

const sampleVTODO = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//test//EN\r\n" +
	"BEGIN:VTODO\r\n" +
	"UID:abc-123\r\n" +
	"SUMMARY:Buy milk\r\n" +
	"DESCRIPTION:Two percent\\, please\r\n" +
	"STATUS:NEEDS-ACTION\r\n" +
	"PRIORITY:5\r\n" +
	"SEQUENCE:2\r\n" +
	"DUE;VALUE=DATE:20260901\r\n" +
	"CATEGORIES:errands,home\r\n" +
	"X-CUSTOM-FIELD:keep-me\r\n" +
	"BEGIN:VALARM\r\n" +
	"ACTION:DISPLAY\r\n" +
	"TRIGGER:-PT15M\r\n" +
	"END:VALARM\r\n" +
	"END:VTODO\r\n" +
	"END:VCALENDAR\r\n"

func TestFromICSParsesCoreFields(t *testing.T) {
	task, err := FromICS(sampleVTODO)
	if err != nil {
		t.Fatalf("FromICS: %v", err)
	}
	if task.UID != "abc-123" {
		t.Errorf("UID = %q, want abc-123", task.UID)
	}
	if task.Summary != "Buy milk" {
		t.Errorf("Summary = %q, want %q", task.Summary, "Buy milk")
	}
	if task.Description != "Two percent, please" {
		t.Errorf("Description = %q, want unescaped comma", task.Description)
	}
	if task.Priority != 5 {
		t.Errorf("Priority = %d, want 5", task.Priority)
	}
	if len(task.Categories) != 2 || task.Categories[0] != "errands" || task.Categories[1] != "home" {
		t.Errorf("Categories = %v, want [errands home]", task.Categories)
	}
	if task.Due == nil {
		t.Fatal("expected Due to be parsed")
	}
}

func TestFromICSPreservesUnmappedPropertyVerbatim(t *testing.T) {
	task, err := FromICS(sampleVTODO)
	if err != nil {
		t.Fatalf("FromICS: %v", err)
	}
	found := false
	for _, p := range task.UnmappedProperties {
		if p.Key == "X-CUSTOM-FIELD" && p.Value == "keep-me" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected X-CUSTOM-FIELD to survive as an unmapped property, got %v", task.UnmappedProperties)
	}
}

func TestFromICSPreservesRawAlarmBlock(t *testing.T) {
	task, err := FromICS(sampleVTODO)
	if err != nil {
		t.Fatalf("FromICS: %v", err)
	}
	if len(task.RawAlarms) != 1 {
		t.Fatalf("RawAlarms = %v, want one captured VALARM block", task.RawAlarms)
	}
	if !strings.Contains(task.RawAlarms[0], "TRIGGER:-PT15M") {
		t.Errorf("RawAlarms[0] = %q, want it to contain the original TRIGGER line", task.RawAlarms[0])
	}
}

func TestRoundTripPreservesUnmappedAndAlarms(t *testing.T) {
	task, err := FromICS(sampleVTODO)
	if err != nil {
		t.Fatalf("FromICS: %v", err)
	}
	out := ToICS(task)

	reparsed, err := FromICS(out)
	if err != nil {
		t.Fatalf("FromICS(ToICS(...)): %v", err)
	}
	if reparsed.UID != task.UID || reparsed.Summary != task.Summary {
		t.Errorf("round trip lost core fields: got %+v", reparsed)
	}

	foundCustom := false
	for _, p := range reparsed.UnmappedProperties {
		if p.Key == "X-CUSTOM-FIELD" {
			foundCustom = true
		}
	}
	if !foundCustom {
		t.Error("expected X-CUSTOM-FIELD to survive a full parse-emit-parse round trip")
	}
	if len(reparsed.RawAlarms) != 1 {
		t.Errorf("expected the VALARM block to survive the round trip, got %v", reparsed.RawAlarms)
	}
}

func TestFromICSMissingPrimaryVTODOErrors(t *testing.T) {
	_, err := FromICS("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")
	if err == nil {
		t.Error("expected an error when no primary VTODO is present")
	}
}

func TestFromICSSiblingComponentsPreservedVerbatim(t *testing.T) {
	text := "BEGIN:VCALENDAR\r\n" +
		"BEGIN:VTODO\r\n" +
		"UID:main\r\n" +
		"SUMMARY:Primary\r\n" +
		"END:VTODO\r\n" +
		"BEGIN:VTODO\r\n" +
		"UID:main\r\n" +
		"RECURRENCE-ID:20260101T000000Z\r\n" +
		"SUMMARY:Exception instance\r\n" +
		"END:VTODO\r\n" +
		"END:VCALENDAR\r\n"

	task, err := FromICS(text)
	if err != nil {
		t.Fatalf("FromICS: %v", err)
	}
	if len(task.RawComponents) != 1 {
		t.Fatalf("RawComponents = %v, want the RECURRENCE-ID instance preserved as a sibling", task.RawComponents)
	}
	if !strings.Contains(task.RawComponents[0], "RECURRENCE-ID") {
		t.Errorf("sibling component lost its RECURRENCE-ID: %q", task.RawComponents[0])
	}

	out := ToICS(task)
	if !strings.Contains(out, "RECURRENCE-ID:20260101T000000Z") {
		t.Error("expected ToICS to splice the preserved sibling component back in verbatim")
	}
}
