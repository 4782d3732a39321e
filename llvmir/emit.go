package llvmir

import (
	"fmt"
	"os"
	"sync"

	"github.com/sarchlab/dust/util"
	"tinygo.org/x/go-llvm"
)

// TargetOptions selects the machine an object file is built for. Empty
// fields mean the host triple, a generic CPU and no extra features.
type TargetOptions struct {
	Triple   string
	CPU      string
	Features string
}

var initTargets sync.Once

func initializeTargets() {
	initTargets.Do(func() {
		llvm.InitializeAllTargetInfos()
		llvm.InitializeAllTargets()
		llvm.InitializeAllTargetMCs()
		llvm.InitializeAllAsmParsers()
		llvm.InitializeAllAsmPrinters()
	})
}

// EmitObject lowers the module for the target and writes an object file
// to path.
func (m *Module) EmitObject(path string, opts TargetOptions) error {
	initializeTargets()

	triple := opts.Triple
	if triple == "" {
		triple = llvm.DefaultTargetTriple()
	}
	cpu := opts.CPU
	if cpu == "" {
		cpu = "generic"
	}

	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return fmt.Errorf("lookup target %q: %w", triple, err)
	}

	tm := target.CreateTargetMachine(triple, cpu, opts.Features,
		llvm.CodeGenLevelDefault, llvm.RelocDefault, llvm.CodeModelDefault)
	defer tm.Dispose()

	m.mod.SetTarget(triple)
	td := tm.CreateTargetData()
	m.mod.SetDataLayout(td.String())
	td.Dispose()

	buf, err := tm.EmitToMemoryBuffer(m.mod, llvm.ObjectFile)
	if err != nil {
		return fmt.Errorf("emit object for %q: %w", triple, err)
	}
	defer buf.Dispose()

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}

	util.Trace("EmitObject", "Path", path, "Triple", triple, "Bytes", len(buf.Bytes()))

	return nil
}
