package viewstate

import (
	"sort"

	"github.com/cellcomm/cellan/internal/model"
)

// Member is one cell of a duplicate group.
type Member struct {
	CellID int64
	Name   string
}

// DuplicateGroup is a set of cells plotted at the same coordinates.
type DuplicateGroup struct {
	// Members in the order they appear in the iteration's cell ids. Ids
	// missing from the iteration come last with an empty name.
	Members []Member
	// Name is the display name of the first member.
	Name string
}

// Contains reports whether cellID belongs to the group.
func (g *DuplicateGroup) Contains(cellID int64) bool {
	for _, m := range g.Members {
		if m.CellID == cellID {
			return true
		}
	}
	return false
}

// DuplicateIndex maps every cell id of a duplicate group to its group.
// It is built once per iteration and never modified.
type DuplicateIndex struct {
	groups map[int64]*DuplicateGroup
	count  int
}

// NewDuplicateIndex builds the index of an iteration. Groups with fewer
// than two members are ignored.
func NewDuplicateIndex(it *model.Iteration) DuplicateIndex {
	idx := DuplicateIndex{groups: make(map[int64]*DuplicateGroup)}
	if it == nil || len(it.DuplicateGroups) == 0 {
		return idx
	}

	pos := make(map[int64]int, len(it.CellIDs))
	for i, id := range it.CellIDs {
		if _, ok := pos[id]; !ok {
			pos[id] = i
		}
	}
	position := func(id int64) int {
		if p, ok := pos[id]; ok {
			return p
		}
		return len(it.CellIDs)
	}

	for _, ids := range it.DuplicateGroups {
		if len(ids) < 2 {
			continue
		}
		members := make([]Member, len(ids))
		for i, id := range ids {
			members[i] = Member{CellID: id}
			if p, ok := pos[id]; ok && p < len(it.Names) {
				members[i].Name = it.Names[p]
			}
		}
		sort.SliceStable(members, func(a, b int) bool {
			return position(members[a].CellID) < position(members[b].CellID)
		})

		group := &DuplicateGroup{Members: members, Name: members[0].Name}
		for _, m := range members {
			idx.groups[m.CellID] = group
		}
		idx.count++
	}
	return idx
}

// Lookup returns the group of cellID.
func (d DuplicateIndex) Lookup(cellID int64) (*DuplicateGroup, bool) {
	g, ok := d.groups[cellID]
	return g, ok
}

// Groups returns the number of indexed groups.
func (d DuplicateIndex) Groups() int {
	return d.count
}
