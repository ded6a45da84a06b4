// Package operator holds the back-office endpoints: crediting deposits,
// replaying commission, steering the next result and moderating users.
package operator

import (
	"colorbet/services"
)

type Handler struct {
	Users    *services.UserService
	Referral *services.ReferralEngine
	Settings *services.SettingsService
}
