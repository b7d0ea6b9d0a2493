package testbed

// guestModule assembles a core wasm module that imports retain and release
// from host and re-exports them as hold and drop:
//
//	(module
//	  (type (func (param i64) (result i32)))
//	  (import "<host>" "retain"  (func (type 0)))
//	  (import "<host>" "release" (func (type 0)))
//	  (func (export "hold") (type 0) local.get 0 call 0)
//	  (func (export "drop") (type 0) local.get 0 call 1))
//
// Every section stays below 128 bytes for host names up to 40 bytes, so
// sizes fit in a single LEB128 byte.
func guestModule(host string) []byte {
	const (
		sectionType     = 1
		sectionImport   = 2
		sectionFunction = 3
		sectionExport   = 7
		sectionCode     = 10

		opLocalGet = 0x20
		opCall     = 0x10
		opEnd      = 0x0b
	)

	name := func(s string) []byte {
		return append([]byte{byte(len(s))}, s...)
	}
	section := func(id byte, content ...[]byte) []byte {
		var body []byte
		for _, c := range content {
			body = append(body, c...)
		}
		return append([]byte{id, byte(len(body))}, body...)
	}
	body := func(callee byte) []byte {
		code := []byte{0x00, opLocalGet, 0x00, opCall, callee, opEnd}
		return append([]byte{byte(len(code))}, code...)
	}

	var out []byte
	out = append(out, 0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00)
	// (i64) -> i32
	out = append(out, section(sectionType, []byte{0x01, 0x60, 0x01, 0x7e, 0x01, 0x7f})...)
	out = append(out, section(sectionImport,
		[]byte{0x02},
		name(host), name("retain"), []byte{0x00, 0x00},
		name(host), name("release"), []byte{0x00, 0x00},
	)...)
	out = append(out, section(sectionFunction, []byte{0x02, 0x00, 0x00})...)
	out = append(out, section(sectionExport,
		[]byte{0x02},
		name("hold"), []byte{0x00, 0x02},
		name("drop"), []byte{0x00, 0x03},
	)...)
	out = append(out, section(sectionCode, []byte{0x02}, body(0), body(1))...)
	return out
}
