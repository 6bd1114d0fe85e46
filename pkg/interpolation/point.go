package interpolation

import (
	"fmt"

	"img2physprop/internal/models"
	"img2physprop/pkg/field"
)

// NodeInterpolator samples the volume at every mesh node
type NodeInterpolator struct {
	*base
}

func (n *NodeInterpolator) Strategy() Strategy { return Node }

func (n *NodeInterpolator) Granularity() field.Granularity { return field.Node }

func (n *NodeInterpolator) IDs() []int {
	ids := make([]int, len(n.mesh.Nodes))
	for i, node := range n.mesh.Nodes {
		ids[i] = node.ID
	}
	return ids
}

func (n *NodeInterpolator) Interpolate(id int) (Outcome, error) {
	i, ok := n.mesh.NodeIndex(id)
	if !ok {
		return Outcome{}, models.NewEntityError(models.KindMeshInconsistency, "interpolation.Interpolate",
			models.EntityNode, id, fmt.Errorf("unknown node"))
	}
	return n.samplePoint(models.EntityNode, id, n.mesh.Nodes[i].Coord), nil
}

// CenterInterpolator samples the volume at every element centroid
type CenterInterpolator struct {
	*base
}

func (c *CenterInterpolator) Strategy() Strategy { return Center }

func (c *CenterInterpolator) Granularity() field.Granularity { return field.Element }

func (c *CenterInterpolator) IDs() []int { return c.elementIDs() }

func (c *CenterInterpolator) Interpolate(id int) (Outcome, error) {
	e, err := c.element(id)
	if err != nil {
		return Outcome{}, err
	}
	return c.centroidOutcome(e), nil
}
