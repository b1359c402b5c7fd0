package wasmgen

import (
	"slices"

	"github.com/tetratelabs/wazero/api"
)

const (
	sectionType   byte = 1
	sectionImport byte = 2
	sectionFunc   byte = 3
	sectionMemory byte = 5
	sectionExport byte = 7
	sectionCode   byte = 10
	sectionData   byte = 11

	kindFunc   byte = 0x00
	kindMemory byte = 0x02

	funcTypeMarker byte = 0x60
)

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

type funcType struct {
	params  []api.ValueType
	results []api.ValueType
}

type funcImport struct {
	module  string
	name    string
	typeIdx uint32
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type dataSegment struct {
	bytes  []byte
	offset uint32
}

type memory struct {
	max *uint32
	min uint32
}

// Module is a WebAssembly module under construction.
type Module struct {
	memory  *memory
	types   []funcType
	imports []funcImport
	funcs   []*Func
	exports []export
	data    []dataSegment
}

// New creates an empty module.
func New() *Module {
	return &Module{}
}

func (m *Module) typeIndex(params, results []api.ValueType) uint32 {
	for i, t := range m.types {
		if slices.Equal(t.params, params) && slices.Equal(t.results, results) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: slices.Clone(params), results: slices.Clone(results)})
	return uint32(len(m.types) - 1)
}

// Import declares an imported function and returns its function index.
// It panics if called after Func.
func (m *Module) Import(module, name string, params, results []api.ValueType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmgen: imports must be declared before functions")
	}
	m.imports = append(m.imports, funcImport{module: module, name: name, typeIdx: m.typeIndex(params, results)})
	return uint32(len(m.imports) - 1)
}

// Func declares a function. A non-empty name exports it.
func (m *Module) Func(name string, params, results []api.ValueType) *Func {
	f := &Func{
		Index:   uint32(len(m.imports) + len(m.funcs)),
		typeIdx: m.typeIndex(params, results),
		nparams: uint32(len(params)),
	}
	m.funcs = append(m.funcs, f)
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: kindFunc, idx: f.Index})
	}
	return f
}

// Memory declares the module's linear memory, in 64KiB pages. A non-empty
// name exports it.
func (m *Module) Memory(name string, minPages uint32, maxPages ...uint32) {
	mem := &memory{min: minPages}
	if len(maxPages) > 0 {
		mem.max = &maxPages[0]
	}
	m.memory = mem
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: kindMemory, idx: 0})
	}
}

// Data places b at offset in memory 0 at instantiation.
func (m *Module) Data(offset uint32, b []byte) {
	m.data = append(m.data, dataSegment{offset: offset, bytes: slices.Clone(b)})
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	buf := &Buffer{}
	buf.WriteBytes(header)

	if len(m.types) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.types)))
		for _, t := range m.types {
			sec.AppendByte(funcTypeMarker)
			writeValueTypes(sec, t.params)
			writeValueTypes(sec, t.results)
		}
		writeSection(buf, sectionType, sec)
	}

	if len(m.imports) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.imports)))
		for _, imp := range m.imports {
			sec.WriteString(imp.module)
			sec.WriteString(imp.name)
			sec.AppendByte(kindFunc)
			sec.WriteU32(imp.typeIdx)
		}
		writeSection(buf, sectionImport, sec)
	}

	if len(m.funcs) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			sec.WriteU32(f.typeIdx)
		}
		writeSection(buf, sectionFunc, sec)
	}

	if m.memory != nil {
		sec := &Buffer{}
		sec.WriteU32(1)
		sec.writeLimits(m.memory.min, m.memory.max)
		writeSection(buf, sectionMemory, sec)
	}

	if len(m.exports) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.exports)))
		for _, e := range m.exports {
			sec.WriteString(e.name)
			sec.AppendByte(e.kind)
			sec.WriteU32(e.idx)
		}
		writeSection(buf, sectionExport, sec)
	}

	if len(m.funcs) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			body := f.body()
			sec.WriteU32(uint32(len(body.Bytes)))
			sec.WriteBytes(body.Bytes)
		}
		writeSection(buf, sectionCode, sec)
	}

	if len(m.data) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.data)))
		for _, d := range m.data {
			sec.WriteU32(0) // active, memory 0
			sec.AppendByte(opI32Const)
			sec.WriteI32(int32(d.offset))
			sec.AppendByte(opEnd)
			sec.WriteU32(uint32(len(d.bytes)))
			sec.WriteBytes(d.bytes)
		}
		writeSection(buf, sectionData, sec)
	}

	return buf.Bytes
}

func writeSection(buf *Buffer, id byte, content *Buffer) {
	buf.AppendByte(id)
	buf.WriteU32(uint32(len(content.Bytes)))
	buf.WriteBytes(content.Bytes)
}

func writeValueTypes(buf *Buffer, ts []api.ValueType) {
	buf.WriteU32(uint32(len(ts)))
	for _, t := range ts {
		buf.AppendByte(t)
	}
}
