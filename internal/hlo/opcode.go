package hlo

// Opcode names a backend instruction, spelled as in HLO text.
type Opcode string

const (
	OpParameter       Opcode = "parameter"
	OpConstant        Opcode = "constant"
	OpNegate          Opcode = "negate"
	OpExp             Opcode = "exponential"
	OpLog             Opcode = "log"
	OpTanh            Opcode = "tanh"
	OpAbs             Opcode = "abs"
	OpSqrt            Opcode = "sqrt"
	OpAdd             Opcode = "add"
	OpSubtract        Opcode = "subtract"
	OpMultiply        Opcode = "multiply"
	OpDivide          Opcode = "divide"
	OpMaximum         Opcode = "maximum"
	OpMinimum         Opcode = "minimum"
	OpReshape         Opcode = "reshape"
	OpBroadcast       Opcode = "broadcast"
	OpReduce          Opcode = "reduce"
	OpSlice           Opcode = "slice"
	OpTuple           Opcode = "tuple"
	OpGetTupleElement Opcode = "get-tuple-element"
)

// IsUnary reports whether the opcode is an elementwise unary operation.
func (o Opcode) IsUnary() bool {
	switch o {
	case OpNegate, OpExp, OpLog, OpTanh, OpAbs, OpSqrt:
		return true
	}
	return false
}

// IsBinary reports whether the opcode is an elementwise binary operation.
func (o Opcode) IsBinary() bool {
	switch o {
	case OpAdd, OpSubtract, OpMultiply, OpDivide, OpMaximum, OpMinimum:
		return true
	}
	return false
}

// IsReducer reports whether the opcode can be used as a reduction combiner.
func (o Opcode) IsReducer() bool {
	switch o {
	case OpAdd, OpMultiply, OpMaximum, OpMinimum:
		return true
	}
	return false
}
