package wasmgen

import "github.com/tetratelabs/wazero/api"

const (
	opUnreachable byte = 0x00
	opBlock       byte = 0x02
	opLoop        byte = 0x03
	opIf          byte = 0x04
	opElse        byte = 0x05
	opEnd         byte = 0x0B
	opBr          byte = 0x0C
	opBrIf        byte = 0x0D
	opReturn      byte = 0x0F
	opCall        byte = 0x10
	opDrop        byte = 0x1A
	opLocalGet    byte = 0x20
	opLocalSet    byte = 0x21
	opLocalTee    byte = 0x22
	opI32Load     byte = 0x28
	opI64Load     byte = 0x29
	opI32Store    byte = 0x36
	opI64Store    byte = 0x37
	opI32Const    byte = 0x41
	opI64Const    byte = 0x42
	opI32Eqz      byte = 0x45
	opI32Eq       byte = 0x46
	opI32Ne       byte = 0x47
	opI32LtU      byte = 0x49
	opI32GtU      byte = 0x4B
	opI64GtU      byte = 0x56
	opI32Add      byte = 0x6A
	opI32Sub      byte = 0x6B
	opI32Mul      byte = 0x6C
	opI64Add      byte = 0x7C
	opI64Mul      byte = 0x7E
	opI64ShrU     byte = 0x88
	opI32WrapI64  byte = 0xA7
	opI64ExtendU  byte = 0xAD

	blockEmpty byte = 0x40
)

// Func is a function body under construction. Instruction methods append
// to the body and return f for chaining; the final end is added on encode.
type Func struct {
	code    Buffer
	locals  []api.ValueType
	Index   uint32
	typeIdx uint32
	nparams uint32
}

// Local declares an additional local and returns its index.
func (f *Func) Local(t api.ValueType) uint32 {
	f.locals = append(f.locals, t)
	return f.nparams + uint32(len(f.locals)) - 1
}

func (f *Func) body() *Buffer {
	b := &Buffer{}
	b.WriteU32(uint32(len(f.locals)))
	for _, t := range f.locals {
		b.WriteU32(1)
		b.AppendByte(t)
	}
	b.WriteBytes(f.code.Bytes)
	b.AppendByte(opEnd)
	return b
}

func (f *Func) op(code byte) *Func {
	f.code.AppendByte(code)
	return f
}

func (f *Func) opIdx(code byte, idx uint32) *Func {
	f.code.AppendByte(code)
	f.code.WriteU32(idx)
	return f
}

// mem writes a load or store with its alignment hint and static offset.
func (f *Func) mem(code byte, alignLog2, offset uint32) *Func {
	f.code.AppendByte(code)
	f.code.WriteU32(alignLog2)
	f.code.WriteU32(offset)
	return f
}

func (f *Func) block(code byte, results []api.ValueType) *Func {
	f.code.AppendByte(code)
	if len(results) == 0 {
		f.code.AppendByte(blockEmpty)
	} else {
		f.code.AppendByte(results[0])
	}
	return f
}

func (f *Func) Unreachable() *Func { return f.op(opUnreachable) }
func (f *Func) Return() *Func { return f.op(opReturn) }
func (f *Func) Drop() *Func { return f.op(opDrop) }
func (f *Func) End() *Func { return f.op(opEnd) }
func (f *Func) Else() *Func { return f.op(opElse) }

// Block opens a block with at most one result.
func (f *Func) Block(results ...api.ValueType) *Func { return f.block(opBlock, results) }

// Loop opens a loop with at most one result.
func (f *Func) Loop(results ...api.ValueType) *Func { return f.block(opLoop, results) }

// If opens an if with at most one result.
func (f *Func) If(results ...api.ValueType) *Func { return f.block(opIf, results) }

func (f *Func) Br(depth uint32) *Func { return f.opIdx(opBr, depth) }
func (f *Func) BrIf(depth uint32) *Func { return f.opIdx(opBrIf, depth) }
func (f *Func) Call(idx uint32) *Func { return f.opIdx(opCall, idx) }

func (f *Func) LocalGet(i uint32) *Func { return f.opIdx(opLocalGet, i) }
func (f *Func) LocalSet(i uint32) *Func { return f.opIdx(opLocalSet, i) }
func (f *Func) LocalTee(i uint32) *Func { return f.opIdx(opLocalTee, i) }

func (f *Func) I32Load(offset uint32) *Func { return f.mem(opI32Load, 2, offset) }
func (f *Func) I64Load(offset uint32) *Func { return f.mem(opI64Load, 3, offset) }
func (f *Func) I32Store(offset uint32) *Func { return f.mem(opI32Store, 2, offset) }
func (f *Func) I64Store(offset uint32) *Func { return f.mem(opI64Store, 3, offset) }

func (f *Func) I32Const(v int32) *Func {
	f.code.AppendByte(opI32Const)
	f.code.WriteI32(v)
	return f
}

func (f *Func) I64Const(v int64) *Func {
	f.code.AppendByte(opI64Const)
	f.code.WriteI64(v)
	return f
}

func (f *Func) I32Eqz() *Func { return f.op(opI32Eqz) }
func (f *Func) I32Eq() *Func { return f.op(opI32Eq) }
func (f *Func) I32Ne() *Func { return f.op(opI32Ne) }
func (f *Func) I32LtU() *Func { return f.op(opI32LtU) }
func (f *Func) I32GtU() *Func { return f.op(opI32GtU) }
func (f *Func) I64GtU() *Func { return f.op(opI64GtU) }
func (f *Func) I32Add() *Func { return f.op(opI32Add) }
func (f *Func) I32Sub() *Func { return f.op(opI32Sub) }
func (f *Func) I32Mul() *Func { return f.op(opI32Mul) }
func (f *Func) I64Add() *Func { return f.op(opI64Add) }
func (f *Func) I64Mul() *Func { return f.op(opI64Mul) }
func (f *Func) I64ShrU() *Func { return f.op(opI64ShrU) }
func (f *Func) I32WrapI64() *Func { return f.op(opI32WrapI64) }
func (f *Func) I64ExtendI32U() *Func { return f.op(opI64ExtendU) }
