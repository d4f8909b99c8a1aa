package classifier

import (
	"context"
	"errors"
	"fmt"
	"os"

	"crop-advisor/internal/domain"

	"github.com/goccy/go-json"
)

// Node is one decision-tree node; a node with a Label is a leaf
type Node struct {
	Feature   int               `json:"feature"`
	Threshold float64           `json:"threshold"`
	Left      int               `json:"left"`
	Right     int               `json:"right"`
	Label     *domain.CropLabel `json:"label,omitempty"`
}

// Tree is a flat array of nodes rooted at index 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is a majority-vote ensemble of decision trees.
// It is immutable after loading and safe for concurrent Predict calls.
type Forest struct {
	Name     string   `json:"name"`
	Version  int      `json:"version"`
	Features []string `json:"features"`
	Trees    []Tree   `json:"trees"`
}

// LoadForest reads and validates a forest artifact.
// Every failure is returned as *ModelLoadError.
func LoadForest(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}

	forest, err := ParseForest(data)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}

	return forest, nil
}

// ParseForest decodes and validates an in-memory artifact
func ParseForest(data []byte) (*Forest, error) {
	forest := &Forest{}
	if err := json.Unmarshal(data, forest); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := forest.Validate(); err != nil {
		return nil, err
	}
	return forest, nil
}

// Validate checks the structural invariants Predict relies on
func (f *Forest) Validate() error {
	if len(f.Features) != domain.FeatureCount {
		return fmt.Errorf("model expects %d features, want %d", len(f.Features), domain.FeatureCount)
	}
	if len(f.Trees) == 0 {
		return errors.New("model has no trees")
	}

	for t, tree := range f.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", t)
		}
		for i, node := range tree.Nodes {
			if node.Label != nil {
				if node.Label.Kind() == 0 {
					return fmt.Errorf("tree %d node %d has an empty label", t, i)
				}
				continue
			}
			if node.Feature < 0 || node.Feature >= domain.FeatureCount {
				return fmt.Errorf("tree %d node %d splits on feature %d", t, i, node.Feature)
			}
			// Children must point forward, which also rules out cycles
			for _, child := range []int{node.Left, node.Right} {
				if child <= i || child >= len(tree.Nodes) {
					return fmt.Errorf("tree %d node %d has invalid child %d", t, i, child)
				}
			}
		}
	}

	return nil
}

// Predict walks every tree and returns the most common leaf label.
// Ties go to the label reached first in tree order.
func (f *Forest) Predict(ctx context.Context, features []float64) (domain.CropLabel, error) {
	if len(features) != domain.FeatureCount {
		return domain.CropLabel{}, fmt.Errorf("expected %d features, got %d", domain.FeatureCount, len(features))
	}
	if err := ctx.Err(); err != nil {
		return domain.CropLabel{}, err
	}

	type tally struct {
		label domain.CropLabel
		votes int
		order int
	}
	votes := make(map[string]*tally)

	for _, tree := range f.Trees {
		label := tree.evaluate(features)
		key := fmt.Sprintf("%d:%s", label.Kind(), label.String())
		if v, ok := votes[key]; ok {
			v.votes++
			continue
		}
		votes[key] = &tally{label: label, votes: 1, order: len(votes)}
	}

	var best *tally
	for _, v := range votes {
		if best == nil || v.votes > best.votes || (v.votes == best.votes && v.order < best.order) {
			best = v
		}
	}

	return best.label, nil
}

func (t Tree) evaluate(features []float64) domain.CropLabel {
	i := 0
	for {
		node := t.Nodes[i]
		if node.Label != nil {
			return *node.Label
		}
		if features[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}
