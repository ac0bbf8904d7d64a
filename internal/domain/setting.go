package domain

import "time"

// Well-known system setting keys.
const (
	SettingDiplomaTotalCost       = "diploma_total_cost"
	SettingDistributionUFLP       = "distribution_uflp"
	SettingDistributionECOA       = "distribution_ecoa"
	SettingDistributionCommission = "distribution_commission"
)

// SystemSetting is an admin-tunable key/value pair.
type SystemSetting struct {
	Key         string    `db:"key" json:"key"`
	Value       string    `db:"value" json:"value"`
	Description *string   `db:"description" json:"description"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
