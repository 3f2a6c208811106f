package plan

// Selection is the single active path down the entity hierarchy. Empty ids
// mean nothing is selected at that level.
type Selection struct {
	RoomID       string `json:"roomId,omitempty"`
	LocationID   string `json:"locationId,omitempty"`
	CabinetRunID string `json:"cabinetRunId,omitempty"`
	CabinetID    string `json:"cabinetId,omitempty"`
}

// At returns the selected id at level t.
func (s Selection) At(t AnnotationType) string {
	switch t {
	case TypeRoom:
		return s.RoomID
	case TypeLocation:
		return s.LocationID
	case TypeCabinetRun:
		return s.CabinetRunID
	case TypeCabinet:
		return s.CabinetID
	}
	return ""
}

// With returns a copy of s with level t set to id. Other levels are untouched.
func (s Selection) With(t AnnotationType, id string) Selection {
	switch t {
	case TypeRoom:
		s.RoomID = id
	case TypeLocation:
		s.LocationID = id
	case TypeCabinetRun:
		s.CabinetRunID = id
	case TypeCabinet:
		s.CabinetID = id
	}
	return s
}

// ClearFrom returns a copy of s with level t and every level below it cleared.
func (s Selection) ClearFrom(t AnnotationType) Selection {
	r, ok := t.Rank()
	if !ok {
		return s
	}
	for ; r < len(hierarchy); r++ {
		s = s.With(hierarchy[r], "")
	}
	return s
}

// Deepest returns the lowest selected level and its id.
func (s Selection) Deepest() (AnnotationType, string) {
	for r := len(hierarchy) - 1; r >= 0; r-- {
		if id := s.At(hierarchy[r]); id != "" {
			return hierarchy[r], id
		}
	}
	return "", ""
}

// IsEmpty reports whether no level is selected.
func (s Selection) IsEmpty() bool {
	return s == Selection{}
}
