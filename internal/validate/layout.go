package validate

import (
	"math"

	"github.com/google/uuid"

	"github.com/mindwell/mapsync/internal/model"
)

// Layout constants: children of a node at depth L sit on a ring of radius
// baseRadius + radiusStep*L around their parent, evenly spaced by angle.
const (
	baseRadius = 150.0
	radiusStep = 50.0
)

// CalculatePositions computes a radial layout for the document's nodes.
//
// Existing positions are preserved; a node is laid out only when it has no
// position yet (the zero point, for anything but the root) or when its
// parent's position changed during this call. Placed children cascade, so
// moving a subtree root re-lays-out the whole subtree. The function is
// pure and idempotent for a document whose structure hasn't changed.
func CalculatePositions(doc *model.Document, nodes []*model.Node) map[uuid.UUID]model.Point {
	positions := make(map[uuid.UUID]model.Point, len(nodes))
	byID := make(map[uuid.UUID]*model.Node, len(nodes))
	for _, n := range nodes {
		positions[n.ID] = n.Position
		byID[n.ID] = n
	}

	if doc.RootNodeID == nil {
		return positions
	}
	root, ok := byID[*doc.RootNodeID]
	if !ok {
		return positions
	}

	type frame struct {
		id    uuid.UUID
		level int
		moved bool
	}

	moved := make(map[uuid.UUID]bool, len(nodes))
	stack := []frame{{id: root.ID, level: 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		parent, ok := byID[f.id]
		if !ok {
			continue
		}
		radius := baseRadius + radiusStep*float64(f.level)
		count := len(parent.ChildIDs)
		for i, childID := range parent.ChildIDs {
			child, ok := byID[childID]
			if !ok {
				continue
			}
			unplaced := child.Position == model.Point{} && childID != root.ID
			if f.moved || unplaced {
				angle := 2 * math.Pi * float64(i) / float64(count)
				positions[childID] = model.Point{
					X: positions[parent.ID].X + radius*math.Cos(angle),
					Y: positions[parent.ID].Y + radius*math.Sin(angle),
				}
				moved[childID] = true
			}
			stack = append(stack, frame{id: childID, level: f.level + 1, moved: moved[childID]})
		}
	}

	return positions
}
