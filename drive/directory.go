package drive

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Directory listing layout.
const (
	basicStart  = 0x0401
	diskBlocks  = 664
	diskName    = "SOFTIEC"
	diskID      = "00 2A"
	nameColumns = 18
)

// directory renders the file table as the BASIC program loaded by
// LOAD "$",8.
func (d *Drive) directory() []byte {
	out := binary.LittleEndian.AppendUint16(nil, basicStart)
	line := func(number int, text string) {
		// The link is rebuilt by the computer after loading; any
		// non-zero value works.
		out = binary.LittleEndian.AppendUint16(out, 0x0101)
		out = binary.LittleEndian.AppendUint16(out, uint16(number))
		out = append(out, text...)
		out = append(out, 0)
	}

	line(0, fmt.Sprintf("\x12\"%-16s\" %s", diskName, diskID))
	used := 0
	for _, f := range d.Files() {
		blocks := f.Blocks()
		used += blocks
		quoted := `"` + f.Name + `"`
		pad := strings.Repeat(" ", max(0, 3-digits(blocks)))
		line(blocks, fmt.Sprintf("%s%-*s %s", pad, nameColumns, quoted, f.Type))
	}
	line(max(0, diskBlocks-used), "BLOCKS FREE.")
	return binary.LittleEndian.AppendUint16(out, 0)
}

func digits(n int) int {
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}
