// Package llvmir implements codegen.Builder on top of LLVM and writes the
// result as textual IR or as a native object file.
package llvmir

import (
	"fmt"
	"io"

	"github.com/sarchlab/dust/codegen"
	"tinygo.org/x/go-llvm"
)

var _ codegen.Builder = (*Module)(nil)

type function struct {
	typ llvm.Type
	fn  llvm.Value
}

// Module owns an LLVM context, module and builder. Call Dispose when done.
type Module struct {
	ctx llvm.Context
	mod llvm.Module
	b   llvm.Builder
	fn  llvm.Value

	i1, i8, i32, i64, ptr, void llvm.Type

	lifetimeStart *function
	lifetimeEnd   *function
	memset        *function
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	ctx := llvm.NewContext()
	m := &Module{
		ctx:  ctx,
		mod:  ctx.NewModule(name),
		b:    ctx.NewBuilder(),
		i1:   ctx.Int1Type(),
		i8:   ctx.Int8Type(),
		i32:  ctx.Int32Type(),
		i64:  ctx.Int64Type(),
		void: ctx.VoidType(),
	}
	m.ptr = llvm.PointerType(m.i8, 0)

	return m
}

// Dispose releases the LLVM objects.
func (m *Module) Dispose() {
	m.b.Dispose()
	m.mod.Dispose()
	m.ctx.Dispose()
}

// Verify runs the LLVM module verifier.
func (m *Module) Verify() error {
	if err := llvm.VerifyModule(m.mod, llvm.ReturnStatusAction); err != nil {
		return fmt.Errorf("verify module: %w", err)
	}
	return nil
}

// WriteIR writes the module as textual LLVM IR.
func (m *Module) WriteIR(w io.Writer) error {
	_, err := io.WriteString(w, m.mod.String())
	return err
}

func asValue(v codegen.Value) llvm.Value {
	val, ok := v.(llvm.Value)
	if !ok {
		panic(fmt.Sprintf("llvmir: value %v (%T) was not created by this module", v, v))
	}
	return val
}

func asBlock(bb codegen.BasicBlock) llvm.BasicBlock {
	block, ok := bb.(llvm.BasicBlock)
	if !ok {
		panic(fmt.Sprintf("llvmir: block %v (%T) was not created by this module", bb, bb))
	}
	return block
}

func (m *Module) intrinsic(slot **function, name string, params ...llvm.Type) *function {
	if *slot == nil {
		typ := llvm.FunctionType(m.void, params, false)
		fn := m.mod.NamedFunction(name)
		if fn.IsNil() {
			fn = llvm.AddFunction(m.mod, name, typ)
		}
		*slot = &function{typ: typ, fn: fn}
	}
	return *slot
}

func (m *Module) DeclareExternal(name string, params int) codegen.Function {
	paramTypes := make([]llvm.Type, params)
	for i := range paramTypes {
		paramTypes[i] = m.i32
	}

	typ := llvm.FunctionType(m.i32, paramTypes, false)
	fn := m.mod.NamedFunction(name)
	if fn.IsNil() {
		fn = llvm.AddFunction(m.mod, name, typ)
		fn.SetLinkage(llvm.ExternalLinkage)
	}

	return &function{typ: typ, fn: fn}
}

func (m *Module) BeginFunction(name string) codegen.BasicBlock {
	typ := llvm.FunctionType(m.i32, nil, false)
	m.fn = llvm.AddFunction(m.mod, name, typ)
	m.fn.SetLinkage(llvm.ExternalLinkage)
	nounwind := llvm.AttributeKindID("nounwind")
	m.fn.AddFunctionAttr(m.ctx.CreateEnumAttribute(nounwind, 0))

	entry := m.ctx.AddBasicBlock(m.fn, "entry")
	m.b.SetInsertPointAtEnd(entry)

	return entry
}

func (m *Module) NewBlock(name string) codegen.BasicBlock {
	return m.ctx.AddBasicBlock(m.fn, name)
}

func (m *Module) SetInsertPoint(bb codegen.BasicBlock) {
	m.b.SetInsertPointAtEnd(asBlock(bb))
}

func (m *Module) AllocBuffer(name string, size, align int) codegen.Value {
	count := llvm.ConstInt(m.i64, uint64(size), false)
	buf := m.b.CreateArrayAlloca(m.i8, count, name)
	buf.SetAlignment(align)
	return buf
}

func (m *Module) AllocPointer(name string) codegen.Value {
	return m.b.CreateAlloca(m.ptr, name)
}

func (m *Module) LifetimeStart(buf codegen.Value, size int) {
	fn := m.intrinsic(&m.lifetimeStart, "llvm.lifetime.start.p0", m.i64, m.ptr)
	m.b.CreateCall(fn.typ, fn.fn, []llvm.Value{
		llvm.ConstInt(m.i64, uint64(size), false),
		asValue(buf),
	}, "")
}

func (m *Module) LifetimeEnd(buf codegen.Value, size int) {
	fn := m.intrinsic(&m.lifetimeEnd, "llvm.lifetime.end.p0", m.i64, m.ptr)
	m.b.CreateCall(fn.typ, fn.fn, []llvm.Value{
		llvm.ConstInt(m.i64, uint64(size), false),
		asValue(buf),
	}, "")
}

func (m *Module) ZeroFill(buf codegen.Value, size, align int) {
	fn := m.intrinsic(&m.memset, "llvm.memset.p0.i64", m.ptr, m.i8, m.i64, m.i1)
	call := m.b.CreateCall(fn.typ, fn.fn, []llvm.Value{
		asValue(buf),
		llvm.ConstInt(m.i8, 0, false),
		llvm.ConstInt(m.i64, uint64(size), false),
		llvm.ConstInt(m.i1, 0, false),
	}, "")

	alignKind := llvm.AttributeKindID("align")
	call.AddCallSiteAttribute(1, m.ctx.CreateEnumAttribute(alignKind, uint64(align)))
}

func (m *Module) ConstByte(v byte) codegen.Value {
	return llvm.ConstInt(m.i8, uint64(v), false)
}

func (m *Module) LoadPointer(slot codegen.Value) codegen.Value {
	return m.b.CreateLoad(m.ptr, asValue(slot), "")
}

func (m *Module) StorePointer(ptr, slot codegen.Value) {
	m.b.CreateStore(asValue(ptr), asValue(slot))
}

func (m *Module) OffsetPointer(ptr codegen.Value, offset int) codegen.Value {
	idx := llvm.ConstInt(m.i32, uint64(int64(offset)), true)
	return m.b.CreateInBoundsGEP(m.i8, asValue(ptr), []llvm.Value{idx}, "")
}

func (m *Module) LoadByte(addr codegen.Value) codegen.Value {
	return m.b.CreateLoad(m.i8, asValue(addr), "")
}

func (m *Module) StoreByte(v, addr codegen.Value) {
	m.b.CreateStore(asValue(v), asValue(addr))
}

func (m *Module) AddByte(a, b codegen.Value) codegen.Value {
	return m.b.CreateAdd(asValue(a), asValue(b), "")
}

func (m *Module) NonZero(v codegen.Value) codegen.Value {
	zero := llvm.ConstInt(m.i8, 0, false)
	return m.b.CreateICmp(llvm.IntNE, asValue(v), zero, "")
}

func (m *Module) CondBr(cond codegen.Value, then, els codegen.BasicBlock) {
	m.b.CreateCondBr(asValue(cond), asBlock(then), asBlock(els))
}

func (m *Module) Br(bb codegen.BasicBlock) {
	m.b.CreateBr(asBlock(bb))
}

func (m *Module) Call(fn codegen.Function, args []codegen.Value) codegen.Value {
	f, ok := fn.(*function)
	if !ok {
		panic(fmt.Sprintf("llvmir: function %v (%T) was not declared by this module", fn, fn))
	}

	vals := make([]llvm.Value, len(args))
	for i, a := range args {
		vals[i] = asValue(a)
	}

	return m.b.CreateCall(f.typ, f.fn, vals, "")
}

func (m *Module) TruncByte(v codegen.Value) codegen.Value {
	return m.b.CreateTrunc(asValue(v), m.i8, "")
}

func (m *Module) WidenByte(v codegen.Value) codegen.Value {
	return m.b.CreateZExt(asValue(v), m.i32, "")
}

func (m *Module) Return(code int) {
	m.b.CreateRet(llvm.ConstInt(m.i32, uint64(code), false))
}
