package renderer

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/three-db/threedb/internal/tensor"
)

func init() {
	Register("fake", newFakeRenderer)
}

// Fake is a deterministic stand-in for a real ray-traced renderer: it
// enumerates `.model`/`.env` marker files under root and "renders" a flat
// gray RGBA image, so the rest of the pipeline (controls, buffer,
// inference, evaluation, logging) can be exercised without a real engine.
// It implements the same KEYS/declare_outputs contract client.py expects
// from a BaseRenderer subclass.
type Fake struct {
	root string
	size int
}

func newFakeRenderer(rootFolder string, args map[string]interface{}) (Renderer, error) {
	size := 64
	if v, ok := args["tile_size"].(int); ok && v > 0 {
		size = v
	}
	return &Fake{root: rootFolder, size: size}, nil
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) EnumerateModels(root string) ([]string, error) {
	return enumerateByExt(root, "models", ".model")
}

func (f *Fake) EnumerateEnvironments(root string) ([]string, error) {
	return enumerateByExt(root, "environments", ".env")
}

func enumerateByExt(root, subdir, ext string) ([]string, error) {
	dir := filepath.Join(root, subdir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ext {
			out = append(out, e.Name()[:len(e.Name())-len(ext)])
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *Fake) DeclareOutputs() map[string]tensor.Schema {
	return map[string]tensor.Schema{
		"rgb": {Shape: tensor.Shape{4, f.size, f.size}, DType: tensor.Float32},
	}
}

func (f *Fake) LoadModel(model string) (interface{}, error) { return model, nil }
func (f *Fake) GetModelUID(loadedModel interface{}) string   { return loadedModel.(string) }
func (f *Fake) LoadEnv(env string) (interface{}, error)      { return env, nil }
func (f *Fake) SetupRender(loadedModel, loadedEnv interface{}) error { return nil }

func (f *Fake) Render(modelUID string, loadedModel, loadedEnv interface{}) (tensor.Dict, error) {
	img := tensor.New(tensor.Schema{Shape: tensor.Shape{4, f.size, f.size}, DType: tensor.Float32})
	plane := f.size * f.size
	for p := 0; p < plane; p++ {
		writef(img.Data, p, 0.5)
		writef(img.Data, plane+p, 0.5)
		writef(img.Data, 2*plane+p, 0.5)
		writef(img.Data, 3*plane+p, 1.0)
	}
	return tensor.Dict{"rgb": img}, nil
}

func writef(data []byte, idx int, v float32) {
	binary.LittleEndian.PutUint32(data[idx*4:], math.Float32bits(v))
}
