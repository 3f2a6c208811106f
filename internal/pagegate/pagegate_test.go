package pagegate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/planmark/internal/errreport"
	"github.com/dgallion1/planmark/internal/plan"
)

func TestAllowedTypes(t *testing.T) {
	tests := []struct {
		page plan.PageType
		want []plan.AnnotationType
	}{
		{plan.PageCover, []plan.AnnotationType{plan.TypeNote}},
		{plan.PageFloorPlan, []plan.AnnotationType{plan.TypeRoom, plan.TypeLocation}},
		{plan.PageElevation, []plan.AnnotationType{plan.TypeCabinetRun, plan.TypeCabinet}},
		{plan.PageCountertop, []plan.AnnotationType{plan.TypeCabinetRun, plan.TypeCabinet, plan.TypeNote}},
		{plan.PageReference, []plan.AnnotationType{plan.TypeNote}},
		{plan.PageOther, plan.AnnotationTypes},
	}
	for _, tt := range tests {
		t.Run(string(tt.page), func(t *testing.T) {
			assert.Equal(t, tt.want, AllowedTypes(tt.page))
		})
	}
	assert.Empty(t, AllowedTypes("blueprint"))
}

func TestAllowedTypes_ReturnsCopy(t *testing.T) {
	got := AllowedTypes(plan.PageCover)
	got[0] = plan.TypeRoom
	assert.False(t, Allows(plan.PageCover, plan.TypeRoom))
}

func TestCheck_CabinetRunOnCover(t *testing.T) {
	page := plan.Page{ID: "p1", Ordinal: 1, PageType: plan.PageCover}
	err := Check(page, plan.TypeCabinetRun)
	require.Error(t, err)
	assert.True(t, errors.Is(err, plan.ErrPolicyViolation))
	assert.Equal(t, errreport.CodePolicyViolation, errreport.Code(err))

	cat, lvl := errreport.Classify(err)
	assert.Equal(t, errreport.CategoryValidation, cat)
	assert.Equal(t, errreport.LevelWarning, lvl)
	assert.False(t, errreport.IsRetryable(err))
}

func TestCheck_Allowed(t *testing.T) {
	assert.NoError(t, Check(plan.Page{PageType: plan.PageFloorPlan}, plan.TypeRoom))
	assert.NoError(t, Check(plan.Page{PageType: plan.PageCountertop}, plan.TypeNote))
}
