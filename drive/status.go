package drive

import "fmt"

// Status is a CBM DOS error channel code.
type Status uint8

// DOS status codes reported on the command channel.
const (
	StatusOK            Status = 0
	StatusScratched     Status = 1
	StatusSyntax        Status = 30
	StatusUnknown       Status = 31
	StatusNameMissing   Status = 34
	StatusWriteProtect  Status = 26
	StatusNotFound      Status = 62
	StatusExists        Status = 63
	StatusNoChannel     Status = 70
	StatusDOSVersion    Status = 73
	StatusNotReady      Status = 74
	StatusIllegalSector Status = 66
)

// DOSVersion is reported after power-on and reset.
const DOSVersion = "SOFTIEC DOS V2.6 1541"

// String returns the status text as printed by the drive.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusScratched:
		return "FILES SCRATCHED"
	case StatusSyntax, StatusUnknown, StatusNameMissing:
		return "SYNTAX ERROR"
	case StatusWriteProtect:
		return "WRITE PROTECT ON"
	case StatusNotFound:
		return "FILE NOT FOUND"
	case StatusExists:
		return "FILE EXISTS"
	case StatusNoChannel:
		return "NO CHANNEL"
	case StatusDOSVersion:
		return DOSVersion
	case StatusNotReady:
		return "DRIVE NOT READY"
	case StatusIllegalSector:
		return "ILLEGAL TRACK OR SECTOR"
	}
	return "UNKNOWN"
}

// message is the command channel reply: code, text, track, sector.
type message struct {
	code          Status
	track, sector uint8
}

func (m message) bytes() []byte {
	return fmt.Appendf(nil, "%02d,%s,%02d,%02d\r", m.code, m.code, m.track, m.sector)
}
