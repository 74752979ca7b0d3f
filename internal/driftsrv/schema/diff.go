package schema

import (
	"sort"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/pkg/types"
)

// FieldChange is one detected difference between two snapshots. Paths are
// dotted leaf paths ("address.city"). OldPath is set only for renames.
type FieldChange struct {
	Change  types.DriftChangeType `json:"change"`
	Path    string                `json:"path"`
	OldPath string                `json:"old_path,omitempty"`
	OldType FieldType             `json:"old_type,omitempty"`
	NewType FieldType             `json:"new_type,omitempty"`
}

// Diff is the structural comparison of two snapshots over their leaf
// field sets.
type Diff struct {
	Changes   []FieldChange `json:"changes"`
	Unchanged int           `json:"unchanged"`
	Total     int           `json:"total"`
}

type leafInfo struct {
	typ      FieldType
	nullable bool
}

// Compare diffs the leaf field sets of two snapshots. A removed field and
// an added field with identical type and nullability are folded into a
// single rename; pairing is greedy in path order.
func Compare(oldSnap, newSnap Snapshot) Diff {
	oldLeaves := map[string]leafInfo{}
	newLeaves := map[string]leafInfo{}
	flattenInto("", oldSnap.Fields, oldLeaves)
	flattenInto("", newSnap.Fields, newLeaves)

	var d Diff
	var removed, added []string
	for path, ol := range oldLeaves {
		nl, ok := newLeaves[path]
		if !ok {
			removed = append(removed, path)
			continue
		}
		if ol.typ != nl.typ {
			d.Changes = append(d.Changes, FieldChange{
				Change:  types.DriftChangeFieldRetyped,
				Path:    path,
				OldType: ol.typ,
				NewType: nl.typ,
			})
		} else {
			d.Unchanged++
		}
	}
	for path := range newLeaves {
		if _, ok := oldLeaves[path]; !ok {
			added = append(added, path)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)

	// Fold structurally identical remove/add pairs into renames.
	usedAdded := make([]bool, len(added))
	for _, rp := range removed {
		ol := oldLeaves[rp]
		matched := false
		for i, ap := range added {
			if usedAdded[i] {
				continue
			}
			nl := newLeaves[ap]
			if ol.typ == nl.typ && ol.nullable == nl.nullable {
				d.Changes = append(d.Changes, FieldChange{
					Change:  types.DriftChangeFieldRenamed,
					Path:    ap,
					OldPath: rp,
					OldType: ol.typ,
					NewType: nl.typ,
				})
				usedAdded[i] = true
				matched = true
				break
			}
		}
		if !matched {
			d.Changes = append(d.Changes, FieldChange{
				Change:  types.DriftChangeFieldRemoved,
				Path:    rp,
				OldType: ol.typ,
			})
		}
	}
	for i, ap := range added {
		if !usedAdded[i] {
			d.Changes = append(d.Changes, FieldChange{
				Change:  types.DriftChangeFieldAdded,
				Path:    ap,
				NewType: newLeaves[ap].typ,
			})
		}
	}

	// Total is the union of affected and unaffected leaf paths; a rename
	// counts once.
	d.Total = d.Unchanged + len(d.Changes)
	sort.Slice(d.Changes, func(i, j int) bool { return d.Changes[i].Path < d.Changes[j].Path })
	return d
}

func flattenInto(prefix string, fields []Field, out map[string]leafInfo) {
	for _, f := range fields {
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		if len(f.Fields) == 0 {
			out[path] = leafInfo{typ: f.Type, nullable: f.Nullable}
			continue
		}
		flattenInto(path, f.Fields, out)
	}
}

// IsEmpty reports whether the two snapshots were structurally identical.
func (d Diff) IsEmpty() bool {
	return len(d.Changes) == 0
}

// ChangeType collapses the per-field changes into one classification.
// A drift touching more than one kind of change is mixed.
func (d Diff) ChangeType() types.DriftChangeType {
	kinds := map[types.DriftChangeType]bool{}
	for _, c := range d.Changes {
		kinds[c.Change] = true
	}
	if len(kinds) == 1 {
		return d.Changes[0].Change
	}
	return types.DriftChangeMixed
}

// UnaffectedRatio is the proportion of leaf fields untouched by the drift,
// in [0.0, 1.0]. For mixed drifts each changed field contributes its own
// weight and the ratio is the per-field average, not a holistic score.
func (d Diff) UnaffectedRatio() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Unchanged) / float64(d.Total)
}

// Serialize converts the diff to a JSON byte array for persistence on the
// drift event.
func (d Diff) Serialize() ([]byte, apperrors.Error) {
	j, err := json.Marshal(d)
	if err != nil {
		return nil, ErrSerialization
	}
	return j, nil
}
