package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadFile compiles the model at path. A directory is loaded as one CUE
// package, so a model may be split across files.
func LoadFile(path string) (*ModelSpec, error) {
	v, err := loadValue(path)
	if err != nil {
		return nil, err
	}
	return CompileModel(v)
}

func loadValue(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("model %s: %w", path, err)
	}

	ctx := cuecontext.New()
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return cue.Value{}, fmt.Errorf("model %s: %w", path, err)
		}
		v := ctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return cue.Value{}, formatCUEError(err)
		}
		return v, nil
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("model %s: no CUE instances loaded", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("model %s: loading CUE files: %w", path, inst.Err)
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}
