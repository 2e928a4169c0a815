package evaluator

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/three-db/threedb/internal/tensor"
)

func init() {
	Register("classification", newClassification)
}

// Classification is a top-k classification evaluator, adapted from
// original_source/threedb/evaluators/classification.py:
// SimpleClassificationEvaluator. Ground truth comes from a JSON file
// mapping model UID to an ImageNet-style integer class label.
type Classification struct {
	topK        int
	targets     map[string]int
	classMapSrc string
}

func newClassification(rootFolder string, args map[string]interface{}) (Evaluator, error) {
	topk, ok := toInt(args["topk"])
	if !ok || topk < 1 {
		return nil, fmt.Errorf("evaluator: classification requires a positive integer topk")
	}
	classmapPath, ok := args["classmap_path"].(string)
	if !ok {
		return nil, fmt.Errorf("evaluator: classification requires classmap_path")
	}
	if !filepath.IsAbs(classmapPath) {
		classmapPath = filepath.Join(rootFolder, classmapPath)
	}
	raw, err := os.ReadFile(classmapPath)
	if err != nil {
		return nil, fmt.Errorf("evaluator: reading classmap: %w", err)
	}
	var targets map[string]int
	if err := json.Unmarshal(raw, &targets); err != nil {
		return nil, fmt.Errorf("evaluator: decoding classmap: %w", err)
	}
	return &Classification{topK: topk, targets: targets, classMapSrc: classmapPath}, nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func (c *Classification) Keys() []string       { return []string{"is_correct", "loss", "prediction"} }
func (c *Classification) OutputType() string   { return "classes" }

func (c *Classification) DeclareOutputs() map[string]tensor.Schema {
	return map[string]tensor.Schema{
		"is_correct": {Shape: nil, DType: tensor.Bool},
		"loss":       {Shape: nil, DType: tensor.Float32},
		"prediction": {Shape: tensor.Shape{c.topK}, DType: tensor.Int64},
	}
}

func (c *Classification) Target(modelUID string) (interface{}, error) {
	label, ok := c.targets[modelUID]
	if !ok {
		return nil, fmt.Errorf("evaluator: no ground-truth label for model %q", modelUID)
	}
	return label, nil
}

// Summarize computes top-k correctness and cross-entropy loss, mirroring
// summary_stats(): it takes the top-k logit indices and checks whether the
// true label is among them, plus -log(softmax(pred))[label] for the loss.
func (c *Classification) Summarize(pred tensor.Tensor, target interface{}) (Stats, error) {
	label, ok := target.(int)
	if !ok {
		return nil, fmt.Errorf("evaluator: classification target must be an int")
	}
	if pred.DType != tensor.Float32 || len(pred.Shape) != 1 {
		return nil, fmt.Errorf("evaluator: classification requires a 1D float32 prediction tensor")
	}
	n := pred.Shape[0]
	logits := make([]float32, n)
	for i := 0; i < n; i++ {
		logits[i] = math.Float32frombits(binary.LittleEndian.Uint32(pred.Data[i*4:]))
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	sort.Slice(indices, func(i, j int) bool { return logits[indices[i]] > logits[indices[j]] })

	k := c.topK
	if k > n {
		k = n
	}
	topk := indices[:k]
	isCorrect := false
	for _, idx := range topk {
		if idx == label {
			isCorrect = true
			break
		}
	}

	loss := crossEntropyLoss(logits, label)

	prediction := make([]int64, k)
	for i, idx := range topk {
		prediction[i] = int64(idx)
	}

	return Stats{
		"is_correct": isCorrect,
		"loss":       loss,
		"prediction": prediction,
	}, nil
}

func crossEntropyLoss(logits []float32, label int) float32 {
	var maxLogit float32 = logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v - maxLogit))
	}
	logSumExp := math.Log(sum) + float64(maxLogit)
	return float32(logSumExp - float64(logits[label]))
}
