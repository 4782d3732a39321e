package codegen

// Value is an IR value owned by a Builder. The driver only passes values
// back to the Builder that produced them.
type Value interface{}

// BasicBlock is a basic block owned by a Builder.
type BasicBlock interface{}

// Function is a function declared through a Builder.
type Function interface{}

//go:generate mockgen -write_package_comment=false -package=$GOPACKAGE -destination=mock_builder_test.go github.com/sarchlab/dust/codegen Builder

// Builder is the IR-building backend the driver lowers a program into.
// All integer values at the call boundary are 32 bits wide; cells are 8
// bits wide.
type Builder interface {
	// DeclareExternal declares a function defined outside the module that
	// takes params int32 arguments and returns an int32.
	DeclareExternal(name string, params int) Function

	// BeginFunction defines an int32 function with no parameters, creates
	// its entry block and moves the insertion point there.
	BeginFunction(name string) BasicBlock

	NewBlock(name string) BasicBlock
	SetInsertPoint(bb BasicBlock)

	// AllocBuffer reserves size bytes on the stack with the given
	// alignment and returns a pointer to the first one.
	AllocBuffer(name string, size, align int) Value

	// AllocPointer reserves a stack slot that holds a pointer.
	AllocPointer(name string) Value

	LifetimeStart(buf Value, size int)
	LifetimeEnd(buf Value, size int)
	ZeroFill(buf Value, size, align int)

	ConstByte(v byte) Value
	LoadPointer(slot Value) Value
	StorePointer(ptr, slot Value)

	// OffsetPointer advances ptr by a signed number of bytes.
	OffsetPointer(ptr Value, offset int) Value

	LoadByte(addr Value) Value
	StoreByte(v, addr Value)

	// AddByte adds two bytes, wrapping at 8 bits.
	AddByte(a, b Value) Value

	// NonZero yields the condition "v != 0" for a byte.
	NonZero(v Value) Value

	CondBr(cond Value, then, els BasicBlock)
	Br(bb BasicBlock)

	Call(fn Function, args []Value) Value

	// TruncByte narrows an int32 to a byte.
	TruncByte(v Value) Value

	// WidenByte zero-extends a byte to an int32.
	WidenByte(v Value) Value

	Return(code int)
}
