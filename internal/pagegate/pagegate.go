// Package pagegate restricts which annotation types may be drawn on each
// page type.
package pagegate

import (
	"fmt"

	"github.com/dgallion1/planmark/internal/errreport"
	"github.com/dgallion1/planmark/internal/plan"
)

var table = map[plan.PageType][]plan.AnnotationType{
	plan.PageCover:      {plan.TypeNote},
	plan.PageFloorPlan:  {plan.TypeRoom, plan.TypeLocation},
	plan.PageElevation:  {plan.TypeCabinetRun, plan.TypeCabinet},
	plan.PageCountertop: {plan.TypeCabinetRun, plan.TypeCabinet, plan.TypeNote},
	plan.PageReference:  {plan.TypeNote},
	plan.PageOther:      {plan.TypeRoom, plan.TypeLocation, plan.TypeCabinetRun, plan.TypeCabinet, plan.TypeNote},
}

// AllowedTypes returns the annotation types legal on pt, in rank order.
// Unknown page types allow nothing.
func AllowedTypes(pt plan.PageType) []plan.AnnotationType {
	return append([]plan.AnnotationType(nil), table[pt]...)
}

// Allows reports whether t may be drawn on pt.
func Allows(pt plan.PageType, t plan.AnnotationType) bool {
	for _, a := range table[pt] {
		if a == t {
			return true
		}
	}
	return false
}

// Check returns a PolicyViolation when t is not allowed on page.
func Check(page plan.Page, t plan.AnnotationType) error {
	if Allows(page.PageType, t) {
		return nil
	}
	return errreport.Validation(
		errreport.CodePolicyViolation,
		fmt.Sprintf("%s annotations are not allowed on %s page %d", t, page.PageType, page.Ordinal),
		plan.ErrPolicyViolation,
	)
}
