package curation

import (
	"sort"

	"github.com/lox/drillprep/internal/models"
)

// Selection is the set of raw row ids marked for deletion. It is shared by
// every metric chart, so a row selected on one chart is selected on all.
type Selection struct {
	ids map[int]struct{}
}

func NewSelection() *Selection {
	return &Selection{ids: make(map[int]struct{})}
}

// ToggleRow flips a single raw row.
func (s *Selection) ToggleRow(id int) {
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return
	}
	s.ids[id] = struct{}{}
}

// TogglePoint flips every row behind a decimated point: if all of them are
// already selected they are released, otherwise all become selected.
func (s *Selection) TogglePoint(p models.DecimatedPoint) {
	if len(p.RowIDs) == 0 {
		return
	}
	all := true
	for _, id := range p.RowIDs {
		if _, ok := s.ids[id]; !ok {
			all = false
			break
		}
	}
	for _, id := range p.RowIDs {
		if all {
			delete(s.ids, id)
		} else {
			s.ids[id] = struct{}{}
		}
	}
}

func (s *Selection) Contains(id int) bool {
	_, ok := s.ids[id]
	return ok
}

// PointSelected reports whether any row behind p is selected.
func (s *Selection) PointSelected(p models.DecimatedPoint) bool {
	for _, id := range p.RowIDs {
		if s.Contains(id) {
			return true
		}
	}
	return false
}

func (s *Selection) Len() int {
	return len(s.ids)
}

// IDs returns the selected row ids in ascending order.
func (s *Selection) IDs() []int {
	out := make([]int, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (s *Selection) Clear() {
	clear(s.ids)
}

// Delete drops every selected row from rows and every point that contains a
// selected row, then clears the selection. The caller re-decimates.
func (s *Selection) Delete(rows []models.DrillingRow, points []models.DecimatedPoint) ([]models.DrillingRow, []models.DecimatedPoint) {
	keptRows := make([]models.DrillingRow, 0, len(rows))
	for _, r := range rows {
		if !s.Contains(r.ID) {
			keptRows = append(keptRows, r)
		}
	}
	keptPoints := make([]models.DecimatedPoint, 0, len(points))
	for _, p := range points {
		if !s.PointSelected(p) {
			keptPoints = append(keptPoints, p)
		}
	}
	s.Clear()
	return keptRows, keptPoints
}
