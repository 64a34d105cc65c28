package tables

import (
	"github.com/JonMunkholm/behavioretl/internal/core"
)

// UserBehaviorKey is the registry key of the UserBehaviorData table.
const UserBehaviorKey = "user_behavior"

func registerUserBehavior() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   UserBehaviorKey,
			Table: "UserBehaviorData",
			Label: "User Behavior",
		},
		CopyColumns: core.DestinationColumnNames(),
		CopyRow:     userBehaviorRow,
		RecordID: func(rec core.TransformedRecord) string {
			return rec.UserID.String
		},
	})
}

// userBehaviorRow returns values in core.FieldMappings order.
func userBehaviorRow(rec core.TransformedRecord) []any {
	return []any{
		rec.UserID,
		rec.DeviceModel,
		rec.OperatingSystem,
		rec.AppUsageTimeMinPerDay,
		rec.ScreenOnTimeMinPerDay,
		rec.BatteryDrainPerDay,
		rec.AppsInstalledCount,
		rec.DataUsagePerDay,
		rec.UserAge,
		rec.UserGender,
		rec.BehaviorClass,
		rec.BehaviorLabel,
		rec.BatteryEfficiency,
	}
}
