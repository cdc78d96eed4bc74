package repositories

import "fmt"

// PromotionExistsError reports that a draft already has a promotion marker.
// The marker identifies the permanent trainer created by the earlier promotion.
type PromotionExistsError struct {
	Marker PromotionMarker
}

// Error implements the error interface.
func (e *PromotionExistsError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("trainer draft %s already promoted to %s", e.Marker.TempID, e.Marker.TrainerID)
}

// IsConflict satisfies RepositoryError consumers that only check categories.
func (e *PromotionExistsError) IsConflict() bool { return e != nil }
