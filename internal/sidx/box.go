package sidx

import "fmt"

// BoxHeaderSize is the size of a compact box header: 32-bit size followed by the FourCC.
const BoxHeaderSize = 8

// FourCC is a four-character box type.
type FourCC [4]byte

// String returns the four characters.
func (f FourCC) String() string {
	return string(f[:])
}

var (
	TypeFTYP = FourCC{'f', 't', 'y', 'p'}
	TypeSIDX = FourCC{'s', 'i', 'd', 'x'}
)

// BoxHeader is the 8-byte prefix of an ISO-BMFF box.
type BoxHeader struct {
	// Size is the declared 32-bit size. 1 means a 64-bit size follows the type, 0 means
	// the box runs to the end of the file.
	Size uint32
	Type FourCC
}

// ReadBoxHeader decodes the compact box header at the start of buf.
func ReadBoxHeader(buf []byte) (BoxHeader, error) {
	r := NewReader(buf)
	size, err := r.ReadU32()
	if err != nil {
		return BoxHeader{}, fmt.Errorf("reading box size: %w", err)
	}
	typ, err := r.ReadU32()
	if err != nil {
		return BoxHeader{}, fmt.Errorf("reading box type: %w", err)
	}

	h := BoxHeader{Size: size}
	h.Type[0] = byte(typ >> 24)
	h.Type[1] = byte(typ >> 16)
	h.Type[2] = byte(typ >> 8)
	h.Type[3] = byte(typ)
	return h, nil
}
