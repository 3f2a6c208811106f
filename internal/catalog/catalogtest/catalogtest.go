// Package catalogtest holds behaviour tests every catalog.Store backend must
// pass.
package catalogtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/planmark/internal/catalog"
	"github.com/dgallion1/planmark/internal/plan"
)

// Run exercises a fresh store returned by open for each subtest.
func Run(t *testing.T, open func(t *testing.T) catalog.Store) {
	t.Run("Pages", func(t *testing.T) { testPages(t, open(t)) })
	t.Run("CreateAnnotationCreatesEntity", func(t *testing.T) { testCreateAnnotation(t, open(t)) })
	t.Run("EntityUniqueness", func(t *testing.T) { testUniqueness(t, open(t)) })
	t.Run("HierarchyRank", func(t *testing.T) { testRank(t, open(t)) })
	t.Run("GeometryMetadataDelete", func(t *testing.T) { testMutations(t, open(t)) })
	t.Run("Notes", func(t *testing.T) { testNotes(t, open(t)) })
}

// Seed creates a document with a floor plan (ordinal 2) and an elevation
// (ordinal 3) and returns their ids.
func Seed(t *testing.T, s catalog.Store) (floorPlan, elevation plan.Page) {
	t.Helper()
	ctx := context.Background()
	var err error
	floorPlan, err = s.CreatePage(ctx, plan.Page{
		DocumentID: "doc-1", Ordinal: 2, NativeWidth: 612, NativeHeight: 792, Scale: 0.5, PageType: plan.PageFloorPlan,
	})
	require.NoError(t, err)
	elevation, err = s.CreatePage(ctx, plan.Page{
		DocumentID: "doc-1", Ordinal: 3, NativeWidth: 612, NativeHeight: 792, Scale: 0.5, PageType: plan.PageElevation,
	})
	require.NoError(t, err)
	return floorPlan, elevation
}

func testPages(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	defer s.Close()
	fp, el := Seed(t, s)

	pages, err := s.ListPages(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, fp.ID, pages[0].ID)
	assert.Equal(t, el.ID, pages[1].ID)

	require.NoError(t, s.SetPageType(ctx, el.ID, plan.PageCountertop))
	got, err := s.GetPage(ctx, el.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.PageCountertop, got.PageType)

	assert.Error(t, s.SetPageType(ctx, el.ID, "blueprint"))
	assert.ErrorIs(t, s.SetPageType(ctx, "nope", plan.PageCover), plan.ErrNotFound)
	_, err = s.GetPage(ctx, "nope")
	assert.ErrorIs(t, err, plan.ErrNotFound)
}

func testCreateAnnotation(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	defer s.Close()
	fp, el := Seed(t, s)

	room, err := s.CreateAnnotation(ctx, catalog.CreateAnnotationRequest{
		PageID: fp.ID, Type: plan.TypeRoom, Box: plan.Box{X: 100, Y: 100, W: 150, H: 120}, Label: "Kitchen 1",
		EntityAttrs: map[string]any{"finish": "oak"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
	require.NotEmpty(t, room.LinkedEntityID)
	assert.False(t, room.CreatedAt.IsZero())

	ent, err := s.GetEntity(ctx, room.LinkedEntityID)
	require.NoError(t, err)
	assert.Equal(t, plan.TypeRoom, ent.Type)
	assert.Equal(t, "Kitchen 1", ent.Label)
	assert.Equal(t, "oak", ent.Attrs["finish"])

	loc, err := s.CreateAnnotation(ctx, catalog.CreateAnnotationRequest{
		PageID: fp.ID, Type: plan.TypeLocation, Box: plan.Box{X: 120, Y: 110, W: 50, H: 40}, Label: "Sink Wall",
		ParentEntityRef: room.LinkedEntityID,
	})
	require.NoError(t, err)
	assert.Equal(t, room.LinkedEntityID, loc.ParentEntityRef)

	// Cross-page parent: the run lives on the elevation.
	run, err := s.CreateAnnotation(ctx, catalog.CreateAnnotationRequest{
		PageID: el.ID, Type: plan.TypeCabinetRun, Box: plan.Box{X: 10, Y: 10, W: 300, H: 80}, Label: "Base Run",
		ParentEntityRef: loc.LinkedEntityID,
	})
	require.NoError(t, err)
	assert.Equal(t, el.ID, run.PageID)

	list, err := s.ListAnnotations(ctx, fp.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, room.ID, list[0].ID)
	assert.Equal(t, plan.Box{X: 100, Y: 100, W: 150, H: 120}, list[0].Box)

	kids, err := s.ListEntities(ctx, plan.TypeLocation, room.LinkedEntityID)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, "Sink Wall", kids[0].Label)

	found, err := s.FindEntityByLabel(ctx, plan.TypeLocation, room.LinkedEntityID, " sink  WALL ")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, loc.LinkedEntityID, found.ID)

	missing, err := s.FindEntityByLabel(ctx, plan.TypeLocation, room.LinkedEntityID, "Range Wall")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.ListAnnotations(ctx, "nope")
	assert.ErrorIs(t, err, plan.ErrNotFound)
}

func testUniqueness(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	defer s.Close()
	fp, _ := Seed(t, s)

	room, err := s.CreateEntity(ctx, plan.Entity{Type: plan.TypeRoom, Label: "Kitchen 1"})
	require.NoError(t, err)
	_, err = s.CreateEntity(ctx, plan.Entity{Type: plan.TypeRoom, Label: "  KITCHEN   1"})
	assert.ErrorIs(t, err, plan.ErrDuplicate)

	_, err = s.CreateEntity(ctx, plan.Entity{Type: plan.TypeLocation, ParentID: room.ID, Label: "sink wall"})
	require.NoError(t, err)
	_, err = s.CreateAnnotation(ctx, catalog.CreateAnnotationRequest{
		PageID: fp.ID, Type: plan.TypeLocation, Box: plan.Box{W: 10, H: 10}, Label: "Sink Wall", ParentEntityRef: room.ID,
	})
	assert.ErrorIs(t, err, plan.ErrDuplicate)

	list, err := s.ListAnnotations(ctx, fp.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "failed create leaves nothing behind")

	other, err := s.CreateEntity(ctx, plan.Entity{Type: plan.TypeRoom, Label: "Pantry"})
	require.NoError(t, err)
	_, err = s.CreateEntity(ctx, plan.Entity{Type: plan.TypeLocation, ParentID: other.ID, Label: "Sink Wall"})
	assert.NoError(t, err, "same label under another parent is fine")
}

func testRank(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	defer s.Close()
	Seed(t, s)

	room, err := s.CreateEntity(ctx, plan.Entity{Type: plan.TypeRoom, Label: "Kitchen 1"})
	require.NoError(t, err)
	_, err = s.CreateEntity(ctx, plan.Entity{Type: plan.TypeCabinet, ParentID: room.ID, Label: "SB36"})
	assert.ErrorIs(t, err, plan.ErrInvalidHierarchy)
	_, err = s.CreateEntity(ctx, plan.Entity{Type: plan.TypeLocation, ParentID: "ghost", Label: "Sink Wall"})
	assert.ErrorIs(t, err, plan.ErrInvalidHierarchy)
	_, err = s.CreateEntity(ctx, plan.Entity{Type: plan.TypeNote, Label: "see detail"})
	assert.ErrorIs(t, err, plan.ErrInvalidHierarchy)
	_, err = s.CreateEntity(ctx, plan.Entity{Type: plan.TypeLocation, Label: "Loose Wall"})
	assert.NoError(t, err, "parent is optional")
}

func testMutations(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	defer s.Close()
	fp, _ := Seed(t, s)

	a, err := s.CreateAnnotation(ctx, catalog.CreateAnnotationRequest{
		PageID: fp.ID, Type: plan.TypeRoom, Box: plan.Box{X: 1, Y: 2, W: 30, H: 40}, Label: "Bath",
		Metadata: map[string]any{"floor": "tile"},
	})
	require.NoError(t, err)

	require.NoError(t, s.UpdateAnnotationGeometry(ctx, a.ID, plan.Box{X: 5, Y: 6, W: 30, H: 40}))
	require.NoError(t, s.UpdateAnnotationMetadata(ctx, a.ID, map[string]any{"floor": nil, "ceiling": "9ft"}))

	list, err := s.ListAnnotations(ctx, fp.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, plan.Box{X: 5, Y: 6, W: 30, H: 40}, list[0].Box)
	assert.Equal(t, map[string]any{"ceiling": "9ft"}, list[0].Metadata)

	require.NoError(t, s.DeleteAnnotation(ctx, a.ID))
	list, err = s.ListAnnotations(ctx, fp.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.GetEntity(ctx, a.LinkedEntityID)
	assert.NoError(t, err, "entity survives annotation delete")

	assert.ErrorIs(t, s.DeleteAnnotation(ctx, a.ID), plan.ErrNotFound)
	assert.ErrorIs(t, s.UpdateAnnotationGeometry(ctx, a.ID, plan.Box{}), plan.ErrNotFound)
	assert.ErrorIs(t, s.UpdateAnnotationMetadata(ctx, a.ID, nil), plan.ErrNotFound)
}

func testNotes(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	defer s.Close()
	fp, _ := Seed(t, s)

	room, err := s.CreateEntity(ctx, plan.Entity{Type: plan.TypeRoom, Label: "Kitchen 1"})
	require.NoError(t, err)
	note, err := s.CreateAnnotation(ctx, catalog.CreateAnnotationRequest{
		PageID: fp.ID, Type: plan.TypeNote, Box: plan.Box{W: 20, H: 20}, Label: "verify soffit", ParentEntityRef: room.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, note.LinkedEntityID)

	ents, err := s.ListEntities(ctx, plan.TypeRoom, "")
	require.NoError(t, err)
	assert.Len(t, ents, 1, "notes create no entity")

	linked, err := s.CreateAnnotation(ctx, catalog.CreateAnnotationRequest{
		PageID: fp.ID, Type: plan.TypeRoom, Box: plan.Box{W: 20, H: 20}, Label: "Kitchen 1", LinkedEntityID: room.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, room.ID, linked.LinkedEntityID)

	bath, err := s.CreateEntity(ctx, plan.Entity{Type: plan.TypeRoom, Label: "Bath 1"})
	require.NoError(t, err)
	vanity, err := s.CreateEntity(ctx, plan.Entity{Type: plan.TypeLocation, ParentID: bath.ID, Label: "Vanity Wall"})
	require.NoError(t, err)
	_, err = s.CreateAnnotation(ctx, catalog.CreateAnnotationRequest{
		PageID: fp.ID, Type: plan.TypeLocation, Box: plan.Box{W: 20, H: 20}, LinkedEntityID: vanity.ID, ParentEntityRef: room.ID,
	})
	assert.ErrorIs(t, err, plan.ErrInvalidHierarchy, "linked entity under another room")
	_, err = s.CreateAnnotation(ctx, catalog.CreateAnnotationRequest{
		PageID: fp.ID, Type: plan.TypeRoom, Box: plan.Box{W: 20, H: 20}, LinkedEntityID: vanity.ID,
	})
	assert.ErrorIs(t, err, plan.ErrInvalidHierarchy, "linked entity of another type")
}
