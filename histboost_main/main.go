package main

import (
	"encoding/json"
	"flag"
	"os"
	"runtime"
	"runtime/pprof"

	log "github.com/sirupsen/logrus"

	"histboost/hbl"
)

func decodeConfig(srcConfig string, out interface{}) {
	file, err := os.Open(srcConfig)
	hbl.HandleError(err)
	defer func() { hbl.HandleError(file.Close()) }()

	decoder := json.NewDecoder(file)
	hbl.HandleError(decoder.Decode(out))
}

func lossByName(name string) hbl.LossFunc {
	switch name {
	case "", "mse":
		return hbl.MseLoss{}
	case "logloss":
		return hbl.LogLoss{}
	}
	log.Fatalf("unknown loss %q", name)
	return nil
}

type TestConfig struct {
	Description        string `json:"description"`
	FileNameTestData   string `json:"filename_test_data"`
	FileNameTestTarget string `json:"filename_test_target"`
}

type TrainConfig struct {
	FileNameTrainData   string       `json:"filename_train_data"`
	FileNameTrainTarget string       `json:"filename_train_target"`
	Tests               []TestConfig `json:"tests"`
	FileNameModel       string       `json:"filename_model"`
	NStages             int          `json:"n_stages"`
	LearningRate        float64      `json:"learning_rate"`
	Loss                string       `json:"loss"`
	MaxDepth            int          `json:"max_depth"`
	MaxLeaves           int          `json:"max_leaves"`
	MinSamplesLeaf      int          `json:"min_samples_leaf"`
	MinGainToSplit      float64      `json:"min_gain_to_split"`
	RegLambda           float64      `json:"reg_lambda"`
	GrowthPolicy        string       `json:"growth_policy"`
	MaxBins             int          `json:"max_bins"`
	ThreadsNum          int          `json:"threads_num"`
	ChunkLen            int          `json:"chunk_len"`
}

func train(srcConfig string) {
	var trainConfig TrainConfig
	decodeConfig(srcConfig, &trainConfig)

	log.Infof("load train data <%s>", trainConfig.FileNameTrainData)
	features := hbl.ReadNpy(trainConfig.FileNameTrainData)
	target := hbl.ReadNpy(trainConfig.FileNameTrainTarget)

	var evalSets []hbl.EvalSet
	for _, testConfig := range trainConfig.Tests {
		log.Infof("load test data <%s>", testConfig.FileNameTestData)
		evalSets = append(evalSets, hbl.EvalSet{
			Features:    hbl.ReadNpy(testConfig.FileNameTestData),
			Target:      hbl.ReadNpy(testConfig.FileNameTestTarget),
			Description: testConfig.Description,
		})
	}

	grow := hbl.GrowConfig{
		MaxDepth:       trainConfig.MaxDepth,
		MaxLeaves:      trainConfig.MaxLeaves,
		MinSamplesLeaf: trainConfig.MinSamplesLeaf,
		MinGainToSplit: trainConfig.MinGainToSplit,
		L2Reg:          trainConfig.RegLambda,
		Policy:         hbl.GrowthPolicy(trainConfig.GrowthPolicy),
		MaxBins:        trainConfig.MaxBins,
	}
	if trainConfig.ThreadsNum > 1 {
		grow.Builder = hbl.NewChunkedHistBuilder(trainConfig.ThreadsNum, trainConfig.ChunkLen)
	}

	model, err := hbl.NewBooster(hbl.BoosterParams{
		Features:     features,
		Target:       target,
		NStages:      trainConfig.NStages,
		LearningRate: trainConfig.LearningRate,
		LossKind:     lossByName(trainConfig.Loss),
		Grow:         grow,
		EvalSets:     evalSets,
		BinWorkers:   trainConfig.ThreadsNum,
	})
	hbl.HandleError(err)

	model.Save(trainConfig.FileNameModel)
}

type PredictConfig struct {
	DataFileName       string `json:"filename_feature_data"`
	ModelFileName      string `json:"filename_model"`
	PredictionFileName string `json:"filename_target"`
	TreesNumber        int    `json:"trees_number"`
}

func predict(srcConfig string) {
	var predictConfig PredictConfig
	decodeConfig(srcConfig, &predictConfig)

	features := hbl.ReadNpy(predictConfig.DataFileName)
	model := hbl.LoadModel(predictConfig.ModelFileName)

	var optionalTreeNumber *int
	if predictConfig.TreesNumber != 0 {
		optionalTreeNumber = &predictConfig.TreesNumber
	}

	prediction := model.PredictValue(features, optionalTreeNumber)
	hbl.WriteNpy(predictConfig.PredictionFileName, prediction)
}

type GraphConfig struct {
	ModelFileName     string `json:"filename_model"`
	FigureType        string `json:"figure_type"`
	PicturesDirectory string `json:"pictures_directory"`
	DumpPrefix        string `json:"dump_prefix"`
}

func graph(srcConfig string) {
	var graphConfig GraphConfig
	decodeConfig(srcConfig, &graphConfig)

	model := hbl.LoadModel(graphConfig.ModelFileName)
	model.RenderTrees(graphConfig.DumpPrefix, graphConfig.FigureType, graphConfig.PicturesDirectory)
}

type LcurveConfig struct {
	ModelFileName         string `json:"filename_model"`
	LearningCurveFileName string `json:"filename_learning_curves"`
}

func lcurve(srcConfig string) {
	var lcurveConfig LcurveConfig
	decodeConfig(srcConfig, &lcurveConfig)

	model := hbl.LoadModel(lcurveConfig.ModelFileName)
	model.DumpLearningCurves(lcurveConfig.LearningCurveFileName)
}

func main() {
	runMode := flag.String("mode", "train", "you can select either 'train', 'graph', 'predict' or 'lcurve' modes")
	config := flag.String("config", "histboost_config.json", "a config file for the run of the program")
	memprofile := flag.String("memprofile", "", "write memory profile to `file`")

	flag.Parse()

	handler, ok := map[string]func(string){
		"train":   train,
		"predict": predict,
		"graph":   graph,
		"lcurve":  lcurve,
	}[*runMode]
	if !ok {
		log.Fatalf("unknown mode %q", *runMode)
	}
	handler(*config)

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		hbl.HandleError(err)
		defer func() { hbl.HandleError(f.Close()) }()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
	}
}
