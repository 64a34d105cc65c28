package core

// Source column headers, exactly as they appear in the delivered files.
const (
	ColUserID        = "UserID"
	ColDeviceModel   = "DeviceModel"
	ColOS            = "OperatingSystem"
	ColAppUsage      = "AppUsageTime(min/day)"
	ColScreenOnHours = "ScreenOnTime(hours/day)"
	ColBatteryDrain  = "BatteryDrain(mAh/day)"
	ColAppsInstalled = "NumberofAppsInstalled"
	ColDataUsage     = "DataUsage(MB/day)"
	ColAge           = "Age"
	ColGender        = "Gender"
	ColBehaviorClass = "UserBehaviorClass"
)

// Columns added by the transformer.
const (
	ColScreenOnMinutes   = "ScreenOnTime(min/day)"
	ColBehaviorLabel     = "UserBehaviorLabel"
	ColBatteryEfficiency = "BatteryEfficiency(mAh/hour)"
)

// SourceColumns lists every header a source file must carry.
var SourceColumns = []string{
	ColUserID,
	ColDeviceModel,
	ColOS,
	ColAppUsage,
	ColScreenOnHours,
	ColBatteryDrain,
	ColAppsInstalled,
	ColDataUsage,
	ColAge,
	ColGender,
	ColBehaviorClass,
}

// FieldMapping renames one source (or derived) column to its destination name.
type FieldMapping struct {
	Source      string
	Destination string
	Derived     bool
}

// FieldMappings is the rename table for UserBehaviorData, in destination
// column order. TransformedRecord declares one field per entry in the same
// order.
var FieldMappings = []FieldMapping{
	{Source: ColUserID, Destination: "UserId"},
	{Source: ColDeviceModel, Destination: "DeviceModel"},
	{Source: ColOS, Destination: "OperatingSystem"},
	{Source: ColAppUsage, Destination: "AppUsageTimeMinPerDay"},
	{Source: ColScreenOnMinutes, Destination: "ScreenOnTimeMinPerDay", Derived: true},
	{Source: ColBatteryDrain, Destination: "BatteryDrainPerDay"},
	{Source: ColAppsInstalled, Destination: "AppsInstalledCount"},
	{Source: ColDataUsage, Destination: "DataUsagePerDay"},
	{Source: ColAge, Destination: "UserAge"},
	{Source: ColGender, Destination: "UserGender"},
	{Source: ColBehaviorClass, Destination: "BehaviorClass"},
	{Source: ColBehaviorLabel, Destination: "BehaviorLabel", Derived: true},
	{Source: ColBatteryEfficiency, Destination: "BatteryEfficiency", Derived: true},
}

// DestinationColumnNames returns the destination column names in load order.
func DestinationColumnNames() []string {
	names := make([]string, len(FieldMappings))
	for i, m := range FieldMappings {
		names[i] = m.Destination
	}
	return names
}

// behaviorLabels maps behavior class 1..5 to its label.
var behaviorLabels = [...]string{
	1: "Very Low",
	2: "Low",
	3: "Moderate",
	4: "High",
	5: "Very High",
}

// BehaviorLabelFor returns the label for a behavior class.
// ok is false for classes outside 1..5.
func BehaviorLabelFor(class int) (label string, ok bool) {
	if class < 1 || class >= len(behaviorLabels) {
		return "", false
	}
	return behaviorLabels[class], true
}
