// Package frame assembles request frames and validates device responses.
//
// A request frame is the concatenation of address, function code and data fields
// followed by a checksum computed with a [checksum.Config]:
//
//	f := frame.Build(checksum.Modbus, []byte{0x01, 0x2B}, []byte{0x0E, 0x04, 0x01})
//	f.String() // "01 2B 0E 04 01 B2 E7"
//
// Responses are validated positionally against a [Pattern]: a sequence of fixed
// byte anchors interleaved with capture windows, optionally closed by a CRC check.
// Patterns can be written in a compact textual form:
//
//	p := frame.MustParsePattern("01 04 04 {input:2} {ambient:2} CRC")
//	if m, ok := p.Match(received); ok {
//	    v, _ := frame.Int16(m.MustNamed("input"))
//	}
//
// A failed match is a normal protocol outcome (no reply, garbage on the line, or a
// partial frame) and is reported with a boolean, not an error.
package frame
