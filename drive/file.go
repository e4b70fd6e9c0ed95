package drive

import "strings"

// FileType is the CBM DOS file type.
type FileType uint8

// File types.
const (
	TypePRG FileType = iota
	TypeSEQ
	TypeUSR
)

// String returns the three-letter type shown in directory listings.
func (t FileType) String() string {
	switch t {
	case TypeSEQ:
		return "SEQ"
	case TypeUSR:
		return "USR"
	}
	return "PRG"
}

// File is one entry of the drive's file table.
type File struct {
	Name string
	Type FileType
	Data []byte
}

// Blocks returns the size in 254-byte disk blocks.
func (f File) Blocks() int {
	return max(1, (len(f.Data)+blockData-1)/blockData)
}

// bytes of payload per directory block
const blockData = 254

// match reports whether name matches a DOS pattern, where '?' matches any
// one character and '*' matches the rest of the name.
func match(pattern, name string) bool {
	for i := 0; i < len(pattern); i++ {
		switch {
		case pattern[i] == '*':
			return true
		case i >= len(name):
			return false
		case pattern[i] != '?' && pattern[i] != name[i]:
			return false
		}
	}
	return len(pattern) == len(name)
}

// fileSpec is a parsed OPEN name such as "@0:NAME,S,W".
type fileSpec struct {
	name    string
	typ     FileType
	write   bool
	replace bool
}

func parseSpec(raw string) fileSpec {
	var s fileSpec
	raw = strings.TrimRight(raw, "\r")
	if strings.HasPrefix(raw, "@") {
		s.replace = true
		raw = raw[1:]
	}
	if i := strings.IndexByte(raw, ':'); i >= 0 && i <= 1 {
		raw = raw[i+1:]
	}
	fields := strings.Split(raw, ",")
	s.name = fields[0]
	for _, f := range fields[1:] {
		if f == "" {
			continue
		}
		switch f[0] {
		case 'P':
			s.typ = TypePRG
		case 'S':
			s.typ = TypeSEQ
		case 'U':
			s.typ = TypeUSR
		case 'W':
			s.write = true
		case 'R':
			s.write = false
		}
	}
	return s
}
