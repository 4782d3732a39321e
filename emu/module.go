// Package emu is a reference machine for generated code. A Module records
// the IR a codegen.Builder client emits; a Machine runs it as an akita
// ticking component, one instruction per cycle.
package emu

import (
	"fmt"

	"github.com/sarchlab/dust/codegen"
)

type opcode int

const (
	opAlloc opcode = iota
	opLifetime
	opZeroFill
	opConst
	opLoadPtr
	opStorePtr
	opOffset
	opLoadByte
	opStoreByte
	opAdd
	opNonZero
	opCondBr
	opBr
	opCall
	opTrunc
	opWiden
	opRet
)

var opcodeNames = [...]string{
	opAlloc:     "alloca",
	opLifetime:  "lifetime",
	opZeroFill:  "memset",
	opConst:     "const",
	opLoadPtr:   "loadp",
	opStorePtr:  "storep",
	opOffset:    "gep",
	opLoadByte:  "loadb",
	opStoreByte: "storeb",
	opAdd:       "add",
	opNonZero:   "icmp.ne",
	opCondBr:    "condbr",
	opBr:        "br",
	opCall:      "call",
	opTrunc:     "trunc",
	opWiden:     "zext",
	opRet:       "ret",
}

func (o opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

func (o opcode) isTerminator() bool {
	return o == opCondBr || o == opBr || o == opRet
}

// reg is the Value handle: a virtual register number.
type reg int

// blockID is the BasicBlock handle.
type blockID int

// extern is the Function handle.
type extern struct {
	name   string
	params int
}

type inst struct {
	op      opcode
	dst     reg
	src     [2]reg
	imm     int64
	imm2    int64
	targets [2]blockID
	fn      *extern
	args    []reg
	buffer  bool
}

type basicBlock struct {
	name  string
	insts []inst
}

// Module records the code a codegen.Builder client emits so a Machine can
// run it. It holds a single function.
type Module struct {
	name    string
	fnName  string
	entry   blockID
	blocks  []*basicBlock
	cur     blockID
	numRegs int
	externs map[string]*extern
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{
		name:    name,
		entry:   -1,
		cur:     -1,
		externs: make(map[string]*extern),
	}
}

// NumBlocks returns the number of basic blocks in the function.
func (m *Module) NumBlocks() int {
	return len(m.blocks)
}

// NumInsts returns the number of recorded instructions.
func (m *Module) NumInsts() int {
	n := 0
	for _, bb := range m.blocks {
		n += len(bb.insts)
	}
	return n
}

// Validate checks that the function exists and that every block ends in
// exactly one terminator.
func (m *Module) Validate() error {
	if m.entry < 0 {
		return fmt.Errorf("module %s: no function defined", m.name)
	}

	for _, bb := range m.blocks {
		if len(bb.insts) == 0 {
			return fmt.Errorf("module %s: block %q is empty", m.name, bb.name)
		}

		for i, in := range bb.insts {
			last := i == len(bb.insts)-1
			if in.op.isTerminator() && !last {
				return fmt.Errorf("module %s: block %q has %s before its end",
					m.name, bb.name, in.op)
			}
			if !in.op.isTerminator() && last {
				return fmt.Errorf("module %s: block %q is not terminated",
					m.name, bb.name)
			}
		}
	}

	return nil
}

func (m *Module) newReg() reg {
	r := reg(m.numRegs)
	m.numRegs++
	return r
}

func (m *Module) append(in inst) {
	if m.cur < 0 {
		panic("emu: no insertion point")
	}
	bb := m.blocks[m.cur]
	bb.insts = append(bb.insts, in)
}

func (m *Module) appendValue(in inst) codegen.Value {
	in.dst = m.newReg()
	m.append(in)
	return in.dst
}

func asReg(v codegen.Value) reg {
	r, ok := v.(reg)
	if !ok {
		panic(fmt.Sprintf("emu: value %v (%T) was not created by this module", v, v))
	}
	return r
}

func asBlock(bb codegen.BasicBlock) blockID {
	id, ok := bb.(blockID)
	if !ok {
		panic(fmt.Sprintf("emu: block %v (%T) was not created by this module", bb, bb))
	}
	return id
}

// DeclareExternal declares a runtime primitive.
func (m *Module) DeclareExternal(name string, params int) codegen.Function {
	if fn, ok := m.externs[name]; ok {
		return fn
	}
	fn := &extern{name: name, params: params}
	m.externs[name] = fn
	return fn
}

// BeginFunction starts the module's only function.
func (m *Module) BeginFunction(name string) codegen.BasicBlock {
	if m.entry >= 0 {
		panic(fmt.Sprintf("emu: function %s already defined", m.fnName))
	}
	m.fnName = name
	m.entry = asBlock(m.NewBlock("entry"))
	m.cur = m.entry
	return m.entry
}

func (m *Module) NewBlock(name string) codegen.BasicBlock {
	m.blocks = append(m.blocks, &basicBlock{name: name})
	return blockID(len(m.blocks) - 1)
}

func (m *Module) SetInsertPoint(bb codegen.BasicBlock) {
	m.cur = asBlock(bb)
}

func (m *Module) AllocBuffer(_ string, size, align int) codegen.Value {
	return m.appendValue(inst{
		op:     opAlloc,
		imm:    int64(size),
		imm2:   int64(align),
		buffer: true,
	})
}

func (m *Module) AllocPointer(string) codegen.Value {
	return m.appendValue(inst{op: opAlloc, imm: 8, imm2: 8})
}

func (m *Module) LifetimeStart(buf codegen.Value, size int) {
	m.append(inst{op: opLifetime, src: [2]reg{asReg(buf)}, imm: int64(size)})
}

func (m *Module) LifetimeEnd(buf codegen.Value, size int) {
	m.append(inst{op: opLifetime, src: [2]reg{asReg(buf)}, imm: int64(size)})
}

func (m *Module) ZeroFill(buf codegen.Value, size, _ int) {
	m.append(inst{op: opZeroFill, src: [2]reg{asReg(buf)}, imm: int64(size)})
}

func (m *Module) ConstByte(v byte) codegen.Value {
	return m.appendValue(inst{op: opConst, imm: int64(v)})
}

func (m *Module) LoadPointer(slot codegen.Value) codegen.Value {
	return m.appendValue(inst{op: opLoadPtr, src: [2]reg{asReg(slot)}})
}

func (m *Module) StorePointer(ptr, slot codegen.Value) {
	m.append(inst{op: opStorePtr, src: [2]reg{asReg(ptr), asReg(slot)}})
}

func (m *Module) OffsetPointer(ptr codegen.Value, offset int) codegen.Value {
	return m.appendValue(inst{op: opOffset, src: [2]reg{asReg(ptr)}, imm: int64(offset)})
}

func (m *Module) LoadByte(addr codegen.Value) codegen.Value {
	return m.appendValue(inst{op: opLoadByte, src: [2]reg{asReg(addr)}})
}

func (m *Module) StoreByte(v, addr codegen.Value) {
	m.append(inst{op: opStoreByte, src: [2]reg{asReg(v), asReg(addr)}})
}

func (m *Module) AddByte(a, b codegen.Value) codegen.Value {
	return m.appendValue(inst{op: opAdd, src: [2]reg{asReg(a), asReg(b)}})
}

func (m *Module) NonZero(v codegen.Value) codegen.Value {
	return m.appendValue(inst{op: opNonZero, src: [2]reg{asReg(v)}})
}

func (m *Module) CondBr(cond codegen.Value, then, els codegen.BasicBlock) {
	m.append(inst{
		op:      opCondBr,
		src:     [2]reg{asReg(cond)},
		targets: [2]blockID{asBlock(then), asBlock(els)},
	})
}

func (m *Module) Br(bb codegen.BasicBlock) {
	m.append(inst{op: opBr, targets: [2]blockID{asBlock(bb)}})
}

func (m *Module) Call(fn codegen.Function, args []codegen.Value) codegen.Value {
	ext, ok := fn.(*extern)
	if !ok {
		panic(fmt.Sprintf("emu: function %v (%T) was not declared by this module", fn, fn))
	}
	if len(args) != ext.params {
		panic(fmt.Sprintf("emu: %s takes %d arguments, got %d",
			ext.name, ext.params, len(args)))
	}

	regs := make([]reg, len(args))
	for i, a := range args {
		regs[i] = asReg(a)
	}

	return m.appendValue(inst{op: opCall, fn: ext, args: regs})
}

func (m *Module) TruncByte(v codegen.Value) codegen.Value {
	return m.appendValue(inst{op: opTrunc, src: [2]reg{asReg(v)}})
}

func (m *Module) WidenByte(v codegen.Value) codegen.Value {
	return m.appendValue(inst{op: opWiden, src: [2]reg{asReg(v)}})
}

func (m *Module) Return(code int) {
	m.append(inst{op: opRet, imm: int64(code)})
}
