// Package vm is a reference stack machine for assembled WebAssembly text
// modules. It runs the numeric subset the compiler emits: f64, i32 and i64
// values, structured branches, calls, locals and globals.
package vm

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

var (
	ErrStepLimit      = errors.New("step limit exceeded")
	ErrCallDepth      = errors.New("call stack exhausted")
	ErrUnknownExport  = errors.New("unknown export")
	ErrUnreachable    = errors.New("unreachable executed")
	ErrStackUnderflow = errors.New("operand stack underflow")
)

const (
	DefaultMaxSteps     = 100_000_000
	DefaultMaxCallDepth = 10_000
)

type frame struct {
	fn        *Function
	pc        int
	localBase int
	stackBase int
}

// Machine executes one Image. Globals persist across invocations; every
// other piece of state is empty between them.
type Machine struct {
	img     *Image
	Globals []uint64

	stack  []uint64
	locals []uint64
	frames []frame

	Steps  int
	Halted bool

	maxSteps int
	maxDepth int
	log      zerolog.Logger
	trace    bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithMaxSteps bounds the instructions one Run may execute; 0 disables it.
func WithMaxSteps(n int) Option { return func(m *Machine) { m.maxSteps = n } }

// WithMaxCallDepth bounds nested calls; 0 disables it.
func WithMaxCallDepth(n int) Option { return func(m *Machine) { m.maxDepth = n } }

// WithLogger traces every executed instruction when log is at trace level.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Machine) {
		m.log = log
		m.trace = log.GetLevel() <= zerolog.TraceLevel
	}
}

func NewMachine(img *Image, opts ...Option) *Machine {
	m := &Machine{
		img:      img,
		Globals:  make([]uint64, len(img.Globals)),
		Halted:   true,
		maxSteps: DefaultMaxSteps,
		maxDepth: DefaultMaxCallDepth,
		log:      zerolog.Nop(),
	}
	for i, g := range img.Globals {
		m.Globals[i] = g.Init
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Global reads a global by export name or identifier as a float64.
func (m *Machine) Global(name string) (float64, bool) {
	idx, ok := m.img.GlobalIndex(name)
	if !ok {
		return 0, false
	}
	return toFloat(m.img.Globals[idx].Type, m.Globals[idx]), true
}

// Invoke calls the named function with f64 arguments and runs it to
// completion. Results are converted to float64.
func (m *Machine) Invoke(name string, args ...float64) ([]float64, error) {
	idx, ok := m.img.FuncIndex(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExport, name)
	}
	fn := m.img.Funcs[idx]
	if len(args) != fn.Params {
		return nil, fmt.Errorf("$%s takes %d argument(s), got %d", fn.Name, fn.Params, len(args))
	}
	for i, a := range args {
		m.push(fromFloat(fn.Locals[i], a))
	}
	m.Steps = 0
	m.Halted = false
	if err := m.call(idx); err != nil {
		m.unwind()
		return nil, err
	}
	if err := m.Run(); err != nil {
		return nil, err
	}

	results := make([]float64, len(fn.Results))
	for i := len(fn.Results) - 1; i >= 0; i-- {
		v, err := m.pop()
		if err != nil {
			return nil, err
		}
		results[i] = toFloat(fn.Results[i], v)
	}
	return results, nil
}

// Run steps until the outermost call returns.
func (m *Machine) Run() error {
	for !m.Halted {
		if err := m.Step(); err != nil {
			m.unwind()
			return err
		}
	}
	return nil
}

func (m *Machine) unwind() {
	m.stack = m.stack[:0]
	m.locals = m.locals[:0]
	m.frames = m.frames[:0]
	m.Halted = true
}

func (m *Machine) push(v uint64) { m.stack = append(m.stack, v) }

func (m *Machine) pop() (uint64, error) {
	base := 0
	if n := len(m.frames); n > 0 {
		base = m.frames[n-1].stackBase
	}
	if len(m.stack) <= base {
		return 0, ErrStackUnderflow
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *Machine) pop2() (uint64, uint64, error) {
	b, err := m.pop()
	if err != nil {
		return 0, 0, err
	}
	a, err := m.pop()
	return a, b, err
}

func (m *Machine) call(idx int) error {
	if idx < 0 || idx >= len(m.img.Funcs) {
		return fmt.Errorf("call to function index %d out of range", idx)
	}
	fn := m.img.Funcs[idx]
	if m.maxDepth > 0 && len(m.frames) >= m.maxDepth {
		return fmt.Errorf("%w: %d frames deep calling $%s", ErrCallDepth, len(m.frames), fn.Name)
	}
	if len(m.stack) < fn.Params {
		return ErrStackUnderflow
	}
	base := len(m.locals)
	for range fn.Locals {
		m.locals = append(m.locals, 0)
	}
	copy(m.locals[base:], m.stack[len(m.stack)-fn.Params:])
	m.stack = m.stack[:len(m.stack)-fn.Params]
	m.frames = append(m.frames, frame{fn: fn, localBase: base, stackBase: len(m.stack)})
	return nil
}

func (m *Machine) ret() error {
	top := len(m.frames) - 1
	f := m.frames[top]
	n := len(f.fn.Results)
	if len(m.stack)-f.stackBase < n {
		return ErrStackUnderflow
	}
	results := make([]uint64, n)
	copy(results, m.stack[len(m.stack)-n:])
	m.stack = append(m.stack[:f.stackBase], results...)
	m.locals = m.locals[:f.localBase]
	m.frames = m.frames[:top]
	if len(m.frames) == 0 {
		m.Halted = true
	}
	return nil
}

// Step executes one instruction of the innermost frame.
func (m *Machine) Step() error {
	if m.Halted || len(m.frames) == 0 {
		m.Halted = true
		return nil
	}
	f := &m.frames[len(m.frames)-1]
	if f.pc >= len(f.fn.Code) {
		return m.ret()
	}
	if m.maxSteps > 0 && m.Steps >= m.maxSteps {
		return m.fault(f, f.pc, ErrStepLimit)
	}
	m.Steps++

	pc := f.pc
	in := f.fn.Code[pc]
	f.pc++
	if m.trace {
		m.log.Trace().
			Str("func", f.fn.Name).
			Int("pc", pc).
			Stringer("instr", in).
			Int("stack", len(m.stack)-f.stackBase).
			Msg("step")
	}
	if err := m.exec(f, in); err != nil {
		return m.fault(f, pc, err)
	}
	return nil
}

func (m *Machine) fault(f *frame, pc int, err error) error {
	line := 0
	if pc < len(f.fn.Lines) {
		line = f.fn.Lines[pc]
	}
	return fmt.Errorf("$%s (line %d): %w", f.fn.Name, line, err)
}

func (m *Machine) exec(f *frame, in Instr) error {
	switch in.Op {
	case OpNop, OpBlock, OpLoop, OpEnd:

	case OpUnreachable:
		return ErrUnreachable

	case OpIf:
		c, err := m.pop()
		if err != nil {
			return err
		}
		if uint32(c) == 0 {
			f.pc = in.Arg
		}

	case OpElse, OpBr:
		f.pc = in.Arg

	case OpBrIf:
		c, err := m.pop()
		if err != nil {
			return err
		}
		if uint32(c) != 0 {
			f.pc = in.Arg
		}

	case OpReturn:
		return m.ret()

	case OpCall:
		return m.call(in.Arg)

	case OpDrop:
		_, err := m.pop()
		return err

	case OpSelect:
		c, err := m.pop()
		if err != nil {
			return err
		}
		a, b, err := m.pop2()
		if err != nil {
			return err
		}
		if uint32(c) != 0 {
			m.push(a)
		} else {
			m.push(b)
		}

	case OpLocalGet:
		m.push(m.locals[f.localBase+in.Arg])
	case OpLocalSet:
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.locals[f.localBase+in.Arg] = v
	case OpLocalTee:
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.locals[f.localBase+in.Arg] = v
		m.push(v)
	case OpGlobalGet:
		m.push(m.Globals[in.Arg])
	case OpGlobalSet:
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.Globals[in.Arg] = v

	case OpF64Const, OpI32Const, OpI64Const:
		m.push(in.Bits)

	default:
		return m.numeric(in.Op)
	}
	return nil
}

func f64(v uint64) float64 { return math.Float64frombits(v) }
func bits(x float64) uint64 { return math.Float64bits(x) }

func boolBits(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (m *Machine) numeric(op Opcode) error {
	switch op {
	// unary
	case OpF64Neg, OpF64Abs, OpF64Sqrt, OpF64Ceil, OpF64Floor, OpF64Trunc, OpF64Nearest,
		OpI32Eqz, OpI64Eqz,
		OpF64ConvertI32S, OpF64ConvertI32U, OpF64ConvertI64S, OpF64ConvertI64U,
		OpI32TruncSatF64S, OpI64TruncSatF64S, OpI32WrapI64, OpI64ExtendI32S, OpI64ExtendI32U:
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.push(unary(op, v))
		return nil
	}

	a, b, err := m.pop2()
	if err != nil {
		return err
	}
	switch op {
	case OpF64Add:
		m.push(bits(f64(a) + f64(b)))
	case OpF64Sub:
		m.push(bits(f64(a) - f64(b)))
	case OpF64Mul:
		m.push(bits(f64(a) * f64(b)))
	case OpF64Div:
		m.push(bits(f64(a) / f64(b)))
	case OpF64Min:
		m.push(bits(math.Min(f64(a), f64(b))))
	case OpF64Max:
		m.push(bits(math.Max(f64(a), f64(b))))
	case OpF64Copysign:
		m.push(bits(math.Copysign(f64(a), f64(b))))

	case OpF64Eq:
		m.push(boolBits(f64(a) == f64(b)))
	case OpF64Ne:
		m.push(boolBits(f64(a) != f64(b)))
	case OpF64Lt:
		m.push(boolBits(f64(a) < f64(b)))
	case OpF64Gt:
		m.push(boolBits(f64(a) > f64(b)))
	case OpF64Le:
		m.push(boolBits(f64(a) <= f64(b)))
	case OpF64Ge:
		m.push(boolBits(f64(a) >= f64(b)))

	case OpI32Eq:
		m.push(boolBits(uint32(a) == uint32(b)))
	case OpI32Ne:
		m.push(boolBits(uint32(a) != uint32(b)))
	case OpI32And:
		m.push(uint64(uint32(a) & uint32(b)))
	case OpI32Or:
		m.push(uint64(uint32(a) | uint32(b)))
	case OpI32Xor:
		m.push(uint64(uint32(a) ^ uint32(b)))
	case OpI32Add:
		m.push(uint64(uint32(a) + uint32(b)))
	case OpI32Sub:
		m.push(uint64(uint32(a) - uint32(b)))

	case OpI64And:
		m.push(a & b)
	case OpI64Or:
		m.push(a | b)
	case OpI64Xor:
		m.push(a ^ b)
	case OpI64Shl:
		m.push(a << (b & 63))
	case OpI64ShrS:
		m.push(uint64(int64(a) >> (b & 63)))
	case OpI64ShrU:
		m.push(a >> (b & 63))
	case OpI64Add:
		m.push(a + b)
	case OpI64Sub:
		m.push(a - b)
	case OpI64Mul:
		m.push(a * b)

	default:
		return fmt.Errorf("opcode %s is not executable", op)
	}
	return nil
}

func unary(op Opcode, v uint64) uint64 {
	switch op {
	case OpF64Neg:
		return v ^ (1 << 63)
	case OpF64Abs:
		return v &^ (1 << 63)
	case OpF64Sqrt:
		return bits(math.Sqrt(f64(v)))
	case OpF64Ceil:
		return bits(math.Ceil(f64(v)))
	case OpF64Floor:
		return bits(math.Floor(f64(v)))
	case OpF64Trunc:
		return bits(math.Trunc(f64(v)))
	case OpF64Nearest:
		return bits(math.RoundToEven(f64(v)))
	case OpI32Eqz:
		return boolBits(uint32(v) == 0)
	case OpI64Eqz:
		return boolBits(v == 0)
	case OpF64ConvertI32S:
		return bits(float64(int32(uint32(v))))
	case OpF64ConvertI32U:
		return bits(float64(uint32(v)))
	case OpF64ConvertI64S:
		return bits(float64(int64(v)))
	case OpF64ConvertI64U:
		return bits(float64(v))
	case OpI32TruncSatF64S:
		return uint64(uint32(TruncSatI32(f64(v))))
	case OpI64TruncSatF64S:
		return uint64(TruncSatI64(f64(v)))
	case OpI32WrapI64:
		return uint64(uint32(v))
	case OpI64ExtendI32S:
		return uint64(int64(int32(uint32(v))))
	case OpI64ExtendI32U:
		return uint64(uint32(v))
	}
	return v
}

// TruncSatI64 truncates toward zero, clamping to the int64 range and
// mapping NaN to 0.
func TruncSatI64(x float64) int64 {
	switch {
	case x != x:
		return 0
	case x >= 9223372036854775808.0:
		return math.MaxInt64
	case x <= -9223372036854775808.0:
		return math.MinInt64
	}
	return int64(x)
}

// TruncSatI32 is TruncSatI64 for the int32 range.
func TruncSatI32(x float64) int32 {
	switch {
	case x != x:
		return 0
	case x >= 2147483647.0:
		return math.MaxInt32
	case x <= -2147483648.0:
		return math.MinInt32
	}
	return int32(x)
}

func toFloat(t ValType, v uint64) float64 {
	switch t {
	case I32:
		return float64(int32(uint32(v)))
	case I64:
		return float64(int64(v))
	}
	return f64(v)
}

func fromFloat(t ValType, x float64) uint64 {
	switch t {
	case I32:
		return uint64(uint32(TruncSatI32(x)))
	case I64:
		return uint64(TruncSatI64(x))
	}
	return bits(x)
}

// RunEntry instantiates img, invokes the exported entry function and
// returns the value left in "out".
func RunEntry(img *Image, entry string, opts ...Option) (float64, error) {
	m := NewMachine(img, opts...)
	if _, err := m.Invoke(entry); err != nil {
		return 0, err
	}
	out, ok := m.Global("out")
	if !ok {
		return 0, fmt.Errorf("%w: module has no global \"out\"", ErrUnknownExport)
	}
	return out, nil
}
