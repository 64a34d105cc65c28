package tables

import (
	"reflect"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/behavioretl/internal/core"
)

func sampleRecord() core.TransformedRecord {
	return core.TransformedRecord{
		UserID:                pgtype.Text{String: "17", Valid: true},
		DeviceModel:           "Pixel 5",
		OperatingSystem:       "Android",
		AppUsageTimeMinPerDay: pgtype.Float8{Float64: 393, Valid: true},
		ScreenOnTimeMinPerDay: 384,
		BatteryDrainPerDay:    1872,
		AppsInstalledCount:    67,
		DataUsagePerDay:       1122.5,
		UserAge:               40,
		UserGender:            "Male",
		BehaviorClass:         4,
		BehaviorLabel:         pgtype.Text{String: "High", Valid: true},
		BatteryEfficiency:     292.5,
	}
}

func TestUserBehavior_Registered(t *testing.T) {
	def, ok := core.Get(UserBehaviorKey)
	if !ok {
		t.Fatalf("table %q not registered", UserBehaviorKey)
	}
	if def.Info.Table != "UserBehaviorData" {
		t.Errorf("Table = %q, want UserBehaviorData", def.Info.Table)
	}
	if err := def.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

// Every destination column maps to exactly one TransformedRecord field, in
// the same order, and CopyRow emits that field's value.
func TestUserBehavior_ColumnsMatchRecordFields(t *testing.T) {
	def, _ := core.Get(UserBehaviorKey)
	typ := reflect.TypeOf(core.TransformedRecord{})

	if len(def.CopyColumns) != typ.NumField() {
		t.Fatalf("len(CopyColumns) = %d, want %d fields", len(def.CopyColumns), typ.NumField())
	}

	seen := make(map[string]bool)
	for i, col := range def.CopyColumns {
		if seen[col] {
			t.Errorf("column %q listed twice", col)
		}
		seen[col] = true

		if tag := typ.Field(i).Tag.Get("db"); tag != col {
			t.Errorf("column %d = %q, field %s has db tag %q", i, col, typ.Field(i).Name, tag)
		}
	}

	rec := sampleRecord()
	row := def.CopyRow(rec)
	val := reflect.ValueOf(rec)
	if len(row) != val.NumField() {
		t.Fatalf("len(CopyRow) = %d, want %d", len(row), val.NumField())
	}
	for i := range row {
		if !reflect.DeepEqual(row[i], val.Field(i).Interface()) {
			t.Errorf("CopyRow[%d] (%s) = %v, want %v", i, def.CopyColumns[i], row[i], val.Field(i).Interface())
		}
	}
}

func TestUserBehavior_ColumnsFollowFieldMappings(t *testing.T) {
	def, _ := core.Get(UserBehaviorKey)

	want := map[string]string{
		"UserID":                      "UserId",
		"DeviceModel":                 "DeviceModel",
		"OperatingSystem":             "OperatingSystem",
		"AppUsageTime(min/day)":       "AppUsageTimeMinPerDay",
		"ScreenOnTime(min/day)":       "ScreenOnTimeMinPerDay",
		"BatteryDrain(mAh/day)":       "BatteryDrainPerDay",
		"NumberofAppsInstalled":       "AppsInstalledCount",
		"DataUsage(MB/day)":           "DataUsagePerDay",
		"Age":                         "UserAge",
		"Gender":                      "UserGender",
		"UserBehaviorClass":           "BehaviorClass",
		"UserBehaviorLabel":           "BehaviorLabel",
		"BatteryEfficiency(mAh/hour)": "BatteryEfficiency",
	}

	if len(core.FieldMappings) != len(want) {
		t.Fatalf("len(FieldMappings) = %d, want %d", len(core.FieldMappings), len(want))
	}
	for i, m := range core.FieldMappings {
		if want[m.Source] != m.Destination {
			t.Errorf("%s -> %s, want %s", m.Source, m.Destination, want[m.Source])
		}
		if def.CopyColumns[i] != m.Destination {
			t.Errorf("CopyColumns[%d] = %q, want %q", i, def.CopyColumns[i], m.Destination)
		}
	}
}

func TestUserBehavior_RecordID(t *testing.T) {
	def, _ := core.Get(UserBehaviorKey)

	if got := def.RecordID(sampleRecord()); got != "17" {
		t.Errorf("RecordID = %q, want %q", got, "17")
	}
}
