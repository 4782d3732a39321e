package codegen_test

import (
	"fmt"

	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dust/codegen"
	"github.com/sarchlab/dust/instr"
	"github.com/sarchlab/dust/lexer"
	"github.com/sarchlab/dust/optimize"
	"github.com/sarchlab/dust/program"
)

func compile(src string) *program.Program {
	toks := lexer.LexBytes([]byte(src), lexer.WithFlushTrailing())
	return program.Parse(optimize.Optimize(toks))
}

// callCounts tallies calls that fell through to allowRest.
type callCounts struct {
	condBr      int
	loadPointer int
}

// allowRest lets every call through that no earlier expectation claimed.
func allowRest(b *codegen.MockBuilder) *callCounts {
	counts := &callCounts{}

	b.EXPECT().DeclareExternal(gomock.Any(), gomock.Any()).
		DoAndReturn(func(name string, _ int) codegen.Function { return name }).
		AnyTimes()
	b.EXPECT().BeginFunction(gomock.Any()).Return("entry").AnyTimes()
	b.EXPECT().NewBlock(gomock.Any()).
		DoAndReturn(func(name string) codegen.BasicBlock { return name }).
		AnyTimes()
	b.EXPECT().SetInsertPoint(gomock.Any()).AnyTimes()
	b.EXPECT().AllocBuffer(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("tape").AnyTimes()
	b.EXPECT().AllocPointer(gomock.Any()).Return("ptr").AnyTimes()
	b.EXPECT().LifetimeStart(gomock.Any(), gomock.Any()).AnyTimes()
	b.EXPECT().LifetimeEnd(gomock.Any(), gomock.Any()).AnyTimes()
	b.EXPECT().ZeroFill(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	b.EXPECT().ConstByte(gomock.Any()).Return("const").AnyTimes()
	b.EXPECT().LoadPointer(gomock.Any()).
		DoAndReturn(func(codegen.Value) codegen.Value {
			counts.loadPointer++
			return "cur"
		}).
		AnyTimes()
	b.EXPECT().StorePointer(gomock.Any(), gomock.Any()).AnyTimes()
	b.EXPECT().OffsetPointer(gomock.Any(), gomock.Any()).Return("gep").AnyTimes()
	b.EXPECT().LoadByte(gomock.Any()).Return("cell").AnyTimes()
	b.EXPECT().StoreByte(gomock.Any(), gomock.Any()).AnyTimes()
	b.EXPECT().AddByte(gomock.Any(), gomock.Any()).Return("sum").AnyTimes()
	b.EXPECT().NonZero(gomock.Any()).Return("nz").AnyTimes()
	b.EXPECT().CondBr(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(codegen.Value, codegen.BasicBlock, codegen.BasicBlock) {
			counts.condBr++
		}).
		AnyTimes()
	b.EXPECT().Br(gomock.Any()).AnyTimes()
	b.EXPECT().Call(gomock.Any(), gomock.Any()).Return("ret").AnyTimes()
	b.EXPECT().TruncByte(gomock.Any()).Return("trunc").AnyTimes()
	b.EXPECT().WidenByte(gomock.Any()).Return("wide").AnyTimes()
	b.EXPECT().Return(gomock.Any()).AnyTimes()

	return counts
}

var _ = Describe("Generate", func() {
	var (
		mockCtrl    *gomock.Controller
		mockBuilder *codegen.MockBuilder
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		mockBuilder = codegen.NewMockBuilder(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should emit the prologue and epilogue in order", func() {
		gomock.InOrder(
			mockBuilder.EXPECT().DeclareExternal("putchar", 1).Return("putchar"),
			mockBuilder.EXPECT().DeclareExternal("getchar", 0).Return("getchar"),
			mockBuilder.EXPECT().BeginFunction("main").Return("entry"),
			mockBuilder.EXPECT().AllocBuffer("tape", 30000, 16).Return("tape"),
			mockBuilder.EXPECT().AllocPointer("ptr").Return("ptr"),
			mockBuilder.EXPECT().LifetimeStart("tape", 30000),
			mockBuilder.EXPECT().ZeroFill("tape", 30000, 16),
			mockBuilder.EXPECT().OffsetPointer("tape", 0).Return("tape0"),
			mockBuilder.EXPECT().StorePointer("tape0", "ptr"),
			mockBuilder.EXPECT().NewBlock("end").Return("end"),
			mockBuilder.EXPECT().Br("end"),
			mockBuilder.EXPECT().SetInsertPoint("end"),
			mockBuilder.EXPECT().LifetimeEnd("tape", 30000),
			mockBuilder.EXPECT().Return(0),
		)

		codegen.Generate(&program.Program{}, mockBuilder)
	})

	It("should honor a custom tape size", func() {
		mockBuilder.EXPECT().AllocBuffer("tape", 64, 8).Return("tape")
		mockBuilder.EXPECT().ZeroFill("tape", 64, 8)
		allowRest(mockBuilder)

		codegen.Generate(&program.Program{}, mockBuilder,
			codegen.WithTapeSize(64), codegen.WithTapeAlign(8))
	})

	It("should lower a move as a pointer offset", func() {
		mockBuilder.EXPECT().LoadPointer("ptr").Return("cur")
		mockBuilder.EXPECT().OffsetPointer("cur", -3).Return("moved")
		mockBuilder.EXPECT().StorePointer("moved", "ptr")
		allowRest(mockBuilder)

		codegen.Generate(compile("<<<"), mockBuilder)
	})

	It("should add the amount modulo 256", func() {
		mockBuilder.EXPECT().ConstByte(byte(0xfe)).Return("minus2")
		mockBuilder.EXPECT().AddByte("cell", "minus2").Return("sum")
		mockBuilder.EXPECT().StoreByte("sum", "cur")
		allowRest(mockBuilder)

		codegen.Generate(compile("--"), mockBuilder)
	})

	It("should store zero for a cleared cell instead of looping", func() {
		mockBuilder.EXPECT().ConstByte(byte(0)).Return("zero")
		mockBuilder.EXPECT().StoreByte("zero", "cur").Times(1)
		counts := allowRest(mockBuilder)

		codegen.Generate(compile("+[-]"), mockBuilder)

		Expect(counts.condBr).To(Equal(0))
	})

	It("should still emit the loop for a body that never runs", func() {
		mockBuilder.EXPECT().NewBlock("loop0.check").Return("check")
		mockBuilder.EXPECT().NewBlock("loop0.body").Return("body")
		mockBuilder.EXPECT().NewBlock("loop0.merge").Return("merge")
		mockBuilder.EXPECT().CondBr("nz", "body", "merge").Times(1)
		mockBuilder.EXPECT().Br("check").Times(2)
		counts := allowRest(mockBuilder)

		codegen.Generate(compile("[.]"), mockBuilder)

		Expect(counts.condBr).To(Equal(0))
	})

	It("should call the input and output primitives", func() {
		mockBuilder.EXPECT().Call("getchar", gomock.Nil()).Return("read")
		mockBuilder.EXPECT().TruncByte("read").Return("byte")
		mockBuilder.EXPECT().StoreByte("byte", "cur")
		mockBuilder.EXPECT().WidenByte("cell").Return("wide")
		mockBuilder.EXPECT().Call("putchar", []codegen.Value{"wide"}).Return("ret")
		allowRest(mockBuilder)

		codegen.Generate(compile(",."), mockBuilder)
	})

	It("should skip the end-of-stream sentinel", func() {
		counts := allowRest(mockBuilder)

		p := &program.Program{Root: program.Block{Children: []program.Node{
			program.Run{Tokens: []instr.Token{instr.NoneToken}},
		}}}
		codegen.Generate(p, mockBuilder)

		Expect(counts.loadPointer).To(Equal(0))
	})

	It("should panic on an unknown opcode", func() {
		allowRest(mockBuilder)

		p := &program.Program{Root: program.Block{Children: []program.Node{
			program.Run{Tokens: []instr.Token{{Op: instr.LoopStart, Amount: 1}}},
		}}}
		Expect(func() { codegen.Generate(p, mockBuilder) }).To(Panic())
	})
})

// blockChecker is a Builder that only tracks control flow. It records
// every structural violation: code after a terminator, a second
// terminator, or a block that is never terminated.
type blockChecker struct {
	current    string
	terminated map[string]bool
	created    []string
	violations []string
	trace      []string
}

func newBlockChecker() *blockChecker {
	return &blockChecker{terminated: map[string]bool{}}
}

func (c *blockChecker) emit(what string) {
	if c.terminated[c.current] {
		c.violations = append(c.violations,
			fmt.Sprintf("%s after terminator in %s", what, c.current))
	}
}

func (c *blockChecker) terminate(what string) {
	c.emit(what)
	c.terminated[c.current] = true
	c.trace = append(c.trace, c.current+": "+what)
}

func (c *blockChecker) DeclareExternal(name string, _ int) codegen.Function {
	return name
}

func (c *blockChecker) BeginFunction(string) codegen.BasicBlock {
	c.created = append(c.created, "entry")
	c.current = "entry"
	return "entry"
}

func (c *blockChecker) NewBlock(name string) codegen.BasicBlock {
	c.created = append(c.created, name)
	return name
}

func (c *blockChecker) SetInsertPoint(bb codegen.BasicBlock) {
	c.current = bb.(string)
}

func (c *blockChecker) AllocBuffer(string, int, int) codegen.Value { c.emit("alloca"); return "tape" }
func (c *blockChecker) AllocPointer(string) codegen.Value         { c.emit("alloca"); return "ptr" }
func (c *blockChecker) LifetimeStart(codegen.Value, int)          { c.emit("lifetime") }
func (c *blockChecker) LifetimeEnd(codegen.Value, int)            { c.emit("lifetime") }
func (c *blockChecker) ZeroFill(codegen.Value, int, int)          { c.emit("memset") }
func (c *blockChecker) ConstByte(byte) codegen.Value              { return "const" }
func (c *blockChecker) LoadPointer(codegen.Value) codegen.Value   { c.emit("load"); return "cur" }
func (c *blockChecker) StorePointer(codegen.Value, codegen.Value) { c.emit("store") }
func (c *blockChecker) OffsetPointer(codegen.Value, int) codegen.Value {
	c.emit("gep")
	return "gep"
}
func (c *blockChecker) LoadByte(codegen.Value) codegen.Value         { c.emit("load"); return "cell" }
func (c *blockChecker) StoreByte(codegen.Value, codegen.Value)       { c.emit("store") }
func (c *blockChecker) AddByte(codegen.Value, codegen.Value) codegen.Value { c.emit("add"); return "sum" }
func (c *blockChecker) NonZero(codegen.Value) codegen.Value          { c.emit("icmp"); return "nz" }
func (c *blockChecker) Call(codegen.Function, []codegen.Value) codegen.Value {
	c.emit("call")
	return "ret"
}
func (c *blockChecker) TruncByte(codegen.Value) codegen.Value { c.emit("trunc"); return "t" }
func (c *blockChecker) WidenByte(codegen.Value) codegen.Value { c.emit("zext"); return "w" }

func (c *blockChecker) CondBr(_ codegen.Value, then, els codegen.BasicBlock) {
	c.terminate(fmt.Sprintf("condbr %s %s", then, els))
}

func (c *blockChecker) Br(bb codegen.BasicBlock) {
	c.terminate(fmt.Sprintf("br %s", bb))
}

func (c *blockChecker) Return(code int) {
	c.terminate(fmt.Sprintf("ret %d", code))
}

func (c *blockChecker) unterminated() []string {
	var open []string
	for _, name := range c.created {
		if !c.terminated[name] {
			open = append(open, name)
		}
	}
	return open
}

var _ = Describe("Generate control flow", func() {
	It("should nest loops inside their parent body", func() {
		checker := newBlockChecker()

		codegen.Generate(compile("+[>+[-<]>.]"), checker)

		Expect(checker.violations).To(BeEmpty())
		Expect(checker.unterminated()).To(BeEmpty())
		Expect(checker.trace).To(Equal([]string{
			"entry: br loop0.check",
			"loop0.check: condbr loop0.body loop0.merge",
			"loop0.body: br loop1.check",
			"loop1.check: condbr loop1.body loop1.merge",
			"loop1.body: br loop1.check",
			"loop1.merge: br loop0.check",
			"loop0.merge: br end",
			"end: ret 0",
		}))
	})

	It("should produce well-formed blocks for deep nesting", func() {
		src := ""
		for i := 0; i < 200; i++ {
			src += "+["
		}
		for i := 0; i < 200; i++ {
			src += ">]"
		}
		checker := newBlockChecker()

		codegen.Generate(compile(src), checker)

		Expect(checker.violations).To(BeEmpty())
		Expect(checker.unterminated()).To(BeEmpty())
		Expect(checker.created).To(HaveLen(2 + 3*200))
	})

	It("should emit an empty body as a plain back edge", func() {
		checker := newBlockChecker()

		codegen.Generate(compile("+[]"), checker)

		Expect(checker.trace).To(ContainElement("loop0.body: br loop0.check"))
		Expect(checker.unterminated()).To(BeEmpty())
	})
})
