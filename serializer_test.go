package hemlock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serializerRoundTripSource = `
let x: i64 = 42
const name = "hemlock"
let pi = 3.14
let flag = true
let arr = [1, 2, 3]
let obj = { a: 1, b: 2 }
let typed = Point { x: 1, y: 2 }

define object Point {
  x: i64,
  y: i64,
  fn sum() {
    return self.x + self.y
  }
}

define enum Color {
  Red = 1,
  Green,
}

fn add(a: i64, b: i64): i64 {
  return a + b
}

async fn fetchIt() {
  return 1
}

if x > 0 {
  print("pos")
} else if x < 0 {
  print("neg")
} else {
  print("zero")
}

while x > 0 {
  x = x - 1
  if x == 5 {
    continue
  }
  if x == 1 {
    break
  }
}

for n in arr {
  print(n)
}

switch x {
  case 1, 2:
    print("small")
  default:
    print("other")
}

try {
  throw "boom"
} catch (e) {
  print(e)
} finally {
  print("done")
}

fn withDefer() {
  defer print("cleanup")
  return 1
}

import { a, b as c } from "./mod.hml"
import * as ns from "./mod.hml"
export let exported = 1
export { exported as also }

extern fn sqrt(v: f64): f64 from "libm.so"

let chained = -arr[0].length ?? 0
let awaited = await fetchIt()
x += 1
`

func TestSerializerRoundTripIsByteStable(t *testing.T) {
	mod, perrs := ParseSource([]byte(serializerRoundTripSource), "roundtrip.hml")
	require.Empty(t, perrs)

	encoded1, err := EncodeModule(mod, false)
	require.NoError(t, err)

	decoded, err := DecodeModule(encoded1)
	require.NoError(t, err)
	require.Len(t, decoded.Stmts, len(mod.Stmts))

	encoded2, err := EncodeModule(decoded, false)
	require.NoError(t, err)

	assert.Equal(t, encoded1, encoded2, "re-encoding a decoded module must reproduce identical bytes")
}

func TestSerializerRoundTripPreservesDeclarationNames(t *testing.T) {
	mod, perrs := ParseSource([]byte(`
let count: i64 = 7
fn double(n: i64): i64 {
  return n * 2
}
define object Box {
  value: i64,
}
`), "names.hml")
	require.Empty(t, perrs)

	encoded, err := EncodeModule(mod, false)
	require.NoError(t, err)
	decoded, err := DecodeModule(encoded)
	require.NoError(t, err)

	require.Len(t, decoded.Stmts, 3)
	let := decoded.Stmts[0].(*LetStmt)
	assert.Equal(t, "count", let.Name)
	assert.Equal(t, TagI64, let.Type)

	fn := decoded.Stmts[1].(*FnStmt)
	assert.Equal(t, "double", fn.Name)
	require.Len(t, fn.Params, 1)
	assert.Equal(t, TagI64, fn.RetType)

	obj := decoded.Stmts[2].(*DefineObjectStmt)
	assert.Equal(t, "Box", obj.Name)
	require.Len(t, obj.Fields, 1)
	assert.Equal(t, "value", obj.Fields[0].Name)
}

func TestDecodeModuleRejectsTruncatedHeader(t *testing.T) {
	_, err := DecodeModule([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDecodeModuleRejectsBadMagicByte(t *testing.T) {
	data := make([]byte, 24)
	_, err := DecodeModule(data)
	require.Error(t, err)
}

func TestDecodeModuleRejectsBadVersion(t *testing.T) {
	mod, perrs := ParseSource([]byte(`let x = 1`), "v.hml")
	require.Empty(t, perrs)
	encoded, err := EncodeModule(mod, false)
	require.NoError(t, err)

	corrupted := append([]byte(nil), encoded...)
	corrupted[4] = 0xFF
	corrupted[5] = 0xFF

	_, err = DecodeModule(corrupted)
	require.Error(t, err)
}

func TestDecodeModuleRejectsCorruptedCRC(t *testing.T) {
	mod, perrs := ParseSource([]byte(`let x = 1`), "crc.hml")
	require.Empty(t, perrs)
	encoded, err := EncodeModule(mod, false)
	require.NoError(t, err)

	corrupted := append([]byte(nil), encoded...)
	corrupted[16] ^= 0xFF

	_, err = DecodeModule(corrupted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRC")
}

func TestDecodeModuleRejectsTruncatedBody(t *testing.T) {
	mod, perrs := ParseSource([]byte(`let x = 1
let y = 2
let z = 3`), "trunc.hml")
	require.Empty(t, perrs)
	encoded, err := EncodeModule(mod, false)
	require.NoError(t, err)

	truncated := encoded[:len(encoded)-3]
	_, err = DecodeModule(truncated)
	require.Error(t, err)
}

func TestEncodeBundleUncompressedRoundTrip(t *testing.T) {
	mod, perrs := ParseSource([]byte(`let x = 1
print(x)`), "bundle.hml")
	require.Empty(t, perrs)

	encoded, err := EncodeBundle(mod, false, false)
	require.NoError(t, err)

	decoded, err := DecodeBundle(encoded)
	require.NoError(t, err)
	require.Len(t, decoded.Stmts, 2)
}

func TestEncodeBundleCompressedRoundTrip(t *testing.T) {
	mod, perrs := ParseSource([]byte(serializerRoundTripSource), "bundle_compressed.hml")
	require.Empty(t, perrs)

	encoded, err := EncodeBundle(mod, true, false)
	require.NoError(t, err)

	decoded, err := DecodeBundle(encoded)
	require.NoError(t, err)
	require.Len(t, decoded.Stmts, len(mod.Stmts))
}

func TestDecodeBundleRejectsUnrecognizedMagic(t *testing.T) {
	_, err := DecodeBundle([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, 0, 0, 0})
	require.Error(t, err)
}

func TestStringTableInternDeduplicatesRepeatedStrings(t *testing.T) {
	strs := newStringTable()
	a := strs.intern("hello")
	b := strs.intern("world")
	c := strs.intern("hello")
	assert.Equal(t, a, c)
	assert.NotEqual(t, a, b)
	assert.Len(t, strs.order, 2)
}

func TestSerializerRoundTripStableAcrossRepeatedEncodes(t *testing.T) {
	mod, perrs := ParseSource([]byte(serializerRoundTripSource), "stable.hml")
	require.Empty(t, perrs)

	first, err := EncodeModule(mod, false)
	require.NoError(t, err)
	second, err := EncodeModule(mod, false)
	require.NoError(t, err)
	assert.Equal(t, first, second, "encoding the same module twice must be byte-identical")
}
