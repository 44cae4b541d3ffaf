package hbl

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/goccy/go-graphviz"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

//defaultMaxBins is the bin budget used when the caller leaves it unset.
const defaultMaxBins = 255

//Model is a trained ensemble: the trees, the bin boundaries they were grown
//with and the learning-curve history. The ensemble accumulator lives here,
//outside the growth engine; GrowTree itself keeps no state between rounds.
type Model struct {
	Trees               []Tree
	Bounds              []BinBoundaries
	LearningRate        float64
	LearningCurveTitles []string
	LearningCurves      [][]float64
}

//EvalSet is a held-out dataset whose metric is tracked every round.
type EvalSet struct {
	Features    *mat.Dense
	Target      *mat.Dense
	Description string
}

//BoosterParams collects the arguments required to train a model.
type BoosterParams struct {
	Features     *mat.Dense
	Target       *mat.Dense
	NStages      int
	LearningRate float64
	LossKind     LossFunc
	Grow         GrowConfig
	EvalSets     []EvalSet
	//Bias is an optional initial raw score per row; nil means zero.
	Bias []float64
	//BinWorkers fans ApplyBins out over a worker pool when above 1.
	BinWorkers int
}

//NewBooster bins the dataset once, then trains NStages trees: each round the
//gradient and hessian vectors are recomputed from the running score, one tree
//is grown, its leaves are shrunk by the learning rate and folded into the
//running score.
func NewBooster(params BoosterParams) (*Model, error) {
	if params.Features == nil || params.Target == nil {
		return nil, invalidInputf("nil features or target")
	}
	h, w := params.Features.Dims()
	th, tw := params.Target.Dims()
	if th != h || tw != 1 {
		return nil, invalidInputf("target dims %dx%d for %d feature rows", th, tw, h)
	}
	if params.NStages < 1 {
		return nil, invalidInputf("NStages must be positive, got %d", params.NStages)
	}
	if params.LossKind == nil {
		return nil, invalidInputf("nil loss")
	}
	if params.Bias != nil && len(params.Bias) != h {
		return nil, invalidInputf("bias length %d for %d rows", len(params.Bias), h)
	}
	if params.Grow.MaxBins == 0 {
		params.Grow.MaxBins = defaultMaxBins
	}

	bounds := make([]BinBoundaries, w)
	column := make([]float64, h)
	for j := 0; j < w; j++ {
		mat.Col(column, j, params.Features)
		b, err := BuildBins(column, params.Grow.MaxBins)
		if err != nil {
			return nil, err
		}
		bounds[j] = b
	}
	bm, err := ApplyBins(params.Features, bounds, params.BinWorkers)
	if err != nil {
		return nil, err
	}

	model := &Model{
		Bounds:       bounds,
		LearningRate: params.LearningRate,
	}

	//eval sets keep their own running scores so curves report the ensemble,
	//not the last tree
	evalScores := make([][]float64, len(params.EvalSets))
	for k, ev := range params.EvalSets {
		model.LearningCurveTitles = append(model.LearningCurveTitles, ev.Description)
		evalScores[k] = make([]float64, Height(ev.Features))
	}

	score := make([]float64, h)
	if params.Bias != nil {
		copy(score, params.Bias)
	}
	grad := make([]float64, h)
	hess := make([]float64, h)

	for stage := 0; stage < params.NStages; stage++ {
		log.Infof("tree number %d", stage+1)
		if err := GradHess(params.LossKind, params.Target, score, grad, hess); err != nil {
			return nil, err
		}

		tree, err := GrowTree(bm, grad, hess, params.Grow)
		if err != nil {
			return nil, err
		}
		tree.ScaleLeaves(params.LearningRate)
		model.Trees = append(model.Trees, *tree)

		for i, delta := range tree.PredictBinned(bm) {
			score[i] += delta
		}

		curveRow := make([]float64, 0, len(params.EvalSets))
		for k, ev := range params.EvalSets {
			delta := tree.PredictValue(ev.Features)
			for i := range evalScores[k] {
				evalScores[k][i] += delta.At(i, 0)
			}
			value := params.LossKind.Metric(ev.Target, evalScores[k])
			log.Infof("%s for %s = %v", params.LossKind.Name(), ev.Description, value)
			curveRow = append(curveRow, value)
		}
		model.LearningCurves = append(model.LearningCurves, curveRow)
	}
	return model, nil
}

//ScaleLeaves multiplies every leaf value, applying the learning rate once the
//tree is owned by the driver.
func (tree *Tree) ScaleLeaves(factor float64) {
	for i := range tree.LeafNodes {
		tree.LeafNodes[i].Value *= factor
	}
}

//PredictValue sums tree outputs for every row. treesNumber limits the
//ensemble prefix; nil uses all trees.
func (model Model) PredictValue(features *mat.Dense, treesNumber *int) (prediction *mat.Dense) {
	n := len(model.Trees)
	if treesNumber != nil {
		n = *treesNumber
	}

	prediction = model.Trees[0].PredictValue(features)
	for treeInd := 1; treeInd < n; treeInd++ {
		prediction.Add(prediction, model.Trees[treeInd].PredictValue(features))
	}
	return
}

//Save writes the model as indented JSON.
func (model Model) Save(filename string) {
	dest, err := os.Create(filename)
	if err != nil {
		log.Errorf("can't open file %s to write", filename)
	}
	HandleError(err)
	defer func() { HandleError(dest.Close()) }()

	modelByteRepr, err := json.MarshalIndent(model, "", "  ")
	HandleError(err)

	_, err = dest.Write(modelByteRepr)
	HandleError(err)
}

//LoadModel reads a model saved by Save.
func LoadModel(filename string) (model Model) {
	source, err := os.Open(filename)
	HandleError(err)
	defer func() { HandleError(source.Close()) }()

	decoder := json.NewDecoder(source)
	HandleError(decoder.Decode(&model))
	return
}

//RenderTrees dumps every tree of the ensemble as a figure.
func (model Model) RenderTrees(dumpPrefix, figureType, picturesDirectory string) {
	graphvizType := map[string]graphviz.Format{
		"png": graphviz.PNG,
		"svg": graphviz.SVG,
		"jpg": graphviz.JPG,
	}[figureType]

	for graphInd, currentTree := range model.Trees {
		filename := fmt.Sprintf("%s_%05d.%s", dumpPrefix, graphInd, figureType)
		graphViz, graph := currentTree.DrawGraph()
		HandleError(graphViz.RenderFilename(graph, graphvizType, path.Join(picturesDirectory, filename)))
	}
}

//LearningCurvesDump is the serialized form of the tracked curves.
type LearningCurvesDump struct {
	Titles []string
	Values [][]float64
}

//DumpLearningCurves writes the per-round metric history as JSON.
func (model Model) DumpLearningCurves(filenameLearningCurves string) {
	destination, err := os.Create(filenameLearningCurves)
	HandleError(err)
	defer func() { HandleError(destination.Close()) }()

	dump := LearningCurvesDump{
		Titles: model.LearningCurveTitles,
		Values: model.LearningCurves,
	}

	bytesResult, err := json.MarshalIndent(dump, "", "  ")
	HandleError(err)
	_, err = destination.Write(bytesResult)
	HandleError(err)
}
