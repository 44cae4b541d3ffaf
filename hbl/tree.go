package hbl

import (
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"gonum.org/v1/gonum/mat"
)

//TreeNode is a node of a finalized tree. The tree is stored in an array;
//LeftIndex and RightIndex are -1 on leaves, otherwise they hold array indices
//of the children. A leaf carries LeafIndex into the LeafNodes array.
//Threshold is the raw-value upper edge of ThresholdBin: rows with feature
//value <= Threshold (or missing values when MissingLeft) go left.
type TreeNode struct {
	TreeNodeId    int
	FeatureNumber int
	ThresholdBin  int
	Threshold     float64
	MissingLeft   bool

	LeftIndex, RightIndex int
	LeafIndex             int

	NumberOfObjects int
	Gain            float64
}

//NewTreeNode returns a node with all index sentinels set to -1.
func NewTreeNode() TreeNode {
	return TreeNode{FeatureNumber: -1, LeftIndex: -1, RightIndex: -1, LeafIndex: -1}
}

//IsLeaf reports whether this node refers to a LeafNode.
func (node TreeNode) IsLeaf() bool {
	return node.LeafIndex != -1
}

//GraphDescription renders a split node label for graphviz output.
func (node TreeNode) GraphDescription() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("#", node.NumberOfObjects))
	sb.WriteString(fmt.Sprintln("id: ", node.TreeNodeId))
	sb.WriteString(fmt.Sprintln("gain: ", node.Gain))
	dir := "right"
	if node.MissingLeft {
		dir = "left"
	}
	sb.WriteString(fmt.Sprintf("f_%d <= %6.5f (missing %s)", node.FeatureNumber, node.Threshold, dir))
	return sb.String()
}

//LeafNode stores the output value of one leaf.
type LeafNode struct {
	LeafNodeId      int
	Value           float64
	NumberOfObjects int
}

//GraphDescription renders a leaf label for graphviz output.
func (node LeafNode) GraphDescription() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("id: ", node.LeafNodeId))
	sb.WriteString(fmt.Sprintf("value: %6.4f\n", node.Value))
	sb.WriteString(fmt.Sprintln("#", node.NumberOfObjects))
	return sb.String()
}

//Tree is one finalized tree of the ensemble. Once returned by GrowTree it is
//never mutated by the engine.
type Tree struct {
	TreeNodes []TreeNode
	LeafNodes []LeafNode
}

//GetLeafDescription returns the rendered label of the leaf behind node ind.
func (tree Tree) GetLeafDescription(ind int) string {
	return tree.LeafNodes[tree.TreeNodes[ind].LeafIndex].GraphDescription()
}

//GetNodeDescription returns the rendered label of split node ind.
func (tree Tree) GetNodeDescription(ind int) string {
	return tree.TreeNodes[ind].GraphDescription()
}

//PredictRow routes one raw feature vector to its leaf value.
func (tree Tree) PredictRow(features []float64) float64 {
	ind := 0
	for tree.TreeNodes[ind].LeafIndex == -1 {
		node := tree.TreeNodes[ind]
		x := features[node.FeatureNumber]
		if goesLeftRaw(x, node) {
			ind = node.LeftIndex
		} else {
			ind = node.RightIndex
		}
	}
	return tree.LeafNodes[tree.TreeNodes[ind].LeafIndex].Value
}

func goesLeftRaw(x float64, node TreeNode) bool {
	if math.IsNaN(x) {
		return node.MissingLeft
	}
	return x <= node.Threshold
}

//PredictValue infers leaf values for every row of a raw feature matrix.
func (tree Tree) PredictValue(features *mat.Dense) (prediction *mat.Dense) {
	h, _ := features.Dims()
	prediction = mat.NewDense(h, 1, nil)
	for p := 0; p < h; p++ {
		prediction.Set(p, 0, tree.PredictRow(mat.Row(nil, p, features)))
	}
	return
}

//PredictBinned routes every row of a bin matrix through the tree using the
//precomputed bin thresholds, skipping the raw-value comparison. Used by the
//boosting driver on the training set.
func (tree Tree) PredictBinned(bm *BinMatrix) []float64 {
	out := make([]float64, bm.Rows())
	for row := 0; row < bm.Rows(); row++ {
		ind := 0
		for tree.TreeNodes[ind].LeafIndex == -1 {
			node := tree.TreeNodes[ind]
			bin := bm.At(row, node.FeatureNumber)
			if goesLeft(bin, SplitDecision{Threshold: node.ThresholdBin, MissingLeft: node.MissingLeft}) {
				ind = node.LeftIndex
			} else {
				ind = node.RightIndex
			}
		}
		out[row] = tree.LeafNodes[tree.TreeNodes[ind].LeafIndex].Value
	}
	return out
}

func recurrentDraw(g *cgraph.Graph, tree Tree, nodeNumber int, parentNode *cgraph.Node) {
	currentNode, err := g.CreateNode(fmt.Sprint(tree.TreeNodes[nodeNumber].TreeNodeId))
	HandleError(err)

	if parentNode != nil {
		g.CreateEdge("", parentNode, currentNode)
	}

	if tree.TreeNodes[nodeNumber].IsLeaf() {
		currentNode.Set("label", tree.GetLeafDescription(nodeNumber))
		currentNode.Set("shape", "box")
	} else {
		currentNode.Set("label", tree.GetNodeDescription(nodeNumber))
		recurrentDraw(g, tree, tree.TreeNodes[nodeNumber].LeftIndex, currentNode)
		recurrentDraw(g, tree, tree.TreeNodes[nodeNumber].RightIndex, currentNode)
	}
}

//DrawGraph builds a graphviz graph of the tree for rendering.
func (tree Tree) DrawGraph() (*graphviz.Graphviz, *cgraph.Graph) {
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	HandleError(err)

	recurrentDraw(graph, tree, 0, nil)

	return graphViz, graph
}
