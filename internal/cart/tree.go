package cart

// BuildChildrenMap walks the merged line list once and groups component lines
// under their parent id. A line may expose its children through a
// back-reference, a nested component list, or both; the encodings are unioned,
// deduplicating a child reported through both.
func BuildChildrenMap(lines []ViewLine) map[string][]ViewLine {
	children := map[string][]ViewLine{}
	for _, line := range lines {
		if line.ParentLineID != "" {
			appendChild(children, line.ParentLineID, line)
		}
		collectComponents(children, line.ID, line.Components)
	}
	return children
}

func collectComponents(children map[string][]ViewLine, parentID string, components []Line) {
	for _, comp := range components {
		appendChild(children, parentID, ViewLine{Line: comp})
		collectComponents(children, comp.ID, comp.Components)
	}
}

func appendChild(children map[string][]ViewLine, parentID string, child ViewLine) {
	for _, existing := range children[parentID] {
		if existing.ID == child.ID {
			return
		}
	}
	children[parentID] = append(children[parentID], child)
}

// Roots returns the lines to render at the top level: lines without a parent
// reference, plus orphans whose parent id is absent from the list. Orphans are
// promoted rather than hidden so no paid-for quantity disappears from view.
func Roots(lines []ViewLine) []ViewLine {
	present := map[string]struct{}{}
	for _, line := range lines {
		present[line.ID] = struct{}{}
	}

	roots := make([]ViewLine, 0, len(lines))
	for _, line := range lines {
		if line.ParentLineID == "" {
			roots = append(roots, line)
			continue
		}
		if _, ok := present[line.ParentLineID]; !ok {
			roots = append(roots, line)
		}
	}
	return roots
}
