package graph

// OpType enumerates the operations a graph node can hold.
type OpType int

const (
	OpInvalid OpType = iota

	// OpParameter is a graph input. The first parameter may be marked as the receiver
	// ("self") of an object-bound graph.
	OpParameter

	// OpConstant holds a literal value, extracted at compile time into the constant table.
	OpConstant

	// Binary element-wise ops: operands must have equal shapes, or one of them must be a scalar.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMaximum

	// Unary element-wise ops.
	OpNeg
	OpAbs
	OpExp
	OpRelu
	OpSigmoid
	OpTanh

	// OpReluInPlace is the in-place variant of OpRelu: its output is permitted (not required)
	// to share storage with its input.
	OpReluInPlace

	// OpMatMul multiplies two rank-2 operands.
	OpMatMul

	// OpReshape produces a view: its output shares the input's storage.
	OpReshape

	// OpClone produces an explicit copy of its input.
	OpClone

	// OpTypeLast is a sentinel, keep it last.
	OpTypeLast
)

var opTypeNames = [OpTypeLast]string{
	OpInvalid:     "Invalid",
	OpParameter:   "Parameter",
	OpConstant:    "Constant",
	OpAdd:         "Add",
	OpSub:         "Sub",
	OpMul:         "Mul",
	OpDiv:         "Div",
	OpMaximum:     "Maximum",
	OpNeg:         "Neg",
	OpAbs:         "Abs",
	OpExp:         "Exp",
	OpRelu:        "Relu",
	OpSigmoid:     "Sigmoid",
	OpTanh:        "Tanh",
	OpReluInPlace: "ReluInPlace",
	OpMatMul:      "MatMul",
	OpReshape:     "Reshape",
	OpClone:       "Clone",
}

// String implements fmt.Stringer.
func (op OpType) String() string {
	if op < 0 || op >= OpTypeLast {
		return "OpType(?)"
	}
	return opTypeNames[op]
}

// opAttributes are the operation-level annotations consumed by the plan compiler: they declare
// storage legality, they never trigger any behavior by themselves.
type opAttributes struct {
	// inPlace: the op's output may legally share storage with input 0.
	inPlace bool

	// view: the op's output is a view, it DOES share storage with input 0.
	view bool
}

var opTypeAttributes = [OpTypeLast]opAttributes{
	OpReluInPlace: {inPlace: true},
	OpReshape:     {view: true},
}

// IsInPlace returns whether the op's output may legally share storage with its first input.
func (op OpType) IsInPlace() bool { return opTypeAttributes[op].inPlace }

// IsView returns whether the op's output is a view sharing its first input's storage.
func (op OpType) IsView() bool { return opTypeAttributes[op].view }
