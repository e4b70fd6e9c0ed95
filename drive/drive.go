package drive

import (
	"slices"
	"strings"
	"sync"

	"github.com/ardnew/softiec/iec"
	"github.com/ardnew/softiec/pkg"
)

// Channel numbers with fixed meaning.
const (
	channelLoad    = 0
	channelSave    = 1
	channelCommand = 15
	numChannels    = 16
)

// Secondary address commands.
const (
	secondaryData  = 0x60
	secondaryClose = 0xE0
	secondaryOpen  = 0xF0
)

// listenMode is what bytes received in the current LISTEN are for.
type listenMode uint8

const (
	listenNone listenMode = iota
	listenOpen
	listenData
)

type channel struct {
	open  bool
	write bool
	spec  fileSpec
	data  []byte
	pos   int
}

// Drive emulates a disk drive: a file table served on data channels, a
// command channel with DOS status messages and a raw sector store for the
// fast-load sector operations.
type Drive struct {
	dev     *iec.Device
	storage Storage

	mutex sync.RWMutex
	files []File

	channels [numChannels]channel
	listen   int
	talk     int
	mode     listenMode
	input    []byte // OPEN name or command being received
	status   message

	// An "M-E" command arms the Epyx header upload for the next UNLISTEN
	epyxPending bool
}

// New creates a drive answering to number. A nil storage selects a blank
// in-memory disk.
func New(number uint8, storage Storage) *Drive {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	d := &Drive{
		storage: storage,
		listen:  -1,
		talk:    -1,
		status:  message{code: StatusDOSVersion},
	}
	d.dev = iec.NewDevice(number, d)
	return d
}

// Device returns the bus device served by the drive.
func (d *Drive) Device() *iec.Device { return d.dev }

// Storage returns the sector store.
func (d *Drive) Storage() Storage { return d.storage }

// AddFile stores a file, replacing any file with the same name.
func (d *Drive) AddFile(name string, typ FileType, data []byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.putLocked(File{Name: name, Type: typ, Data: slices.Clone(data)})
}

func (d *Drive) putLocked(f File) {
	for i := range d.files {
		if d.files[i].Name == f.Name {
			d.files[i] = f
			return
		}
	}
	d.files = append(d.files, f)
}

// File returns the first file matching pattern.
func (d *Drive) File(pattern string) (File, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	for _, f := range d.files {
		if match(pattern, f.Name) {
			return f, true
		}
	}
	return File{}, false
}

// Files returns the file table in directory order.
func (d *Drive) Files() []File {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return slices.Clone(d.files)
}

// Remove deletes every file matching pattern and returns the count.
func (d *Drive) Remove(pattern string) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	n := len(d.files)
	d.files = slices.DeleteFunc(d.files, func(f File) bool { return match(pattern, f.Name) })
	return n - len(d.files)
}

// Status returns the current command channel message.
func (d *Drive) Status() string { return string(d.status.bytes()) }

func (d *Drive) setStatus(code Status, track, sector uint8) {
	d.status = message{code: code, track: track, sector: sector}
}

// Begin implements iec.Driver.
func (d *Drive) Begin() {
	d.setStatus(StatusDOSVersion, 0, 0)
}

// Task implements iec.Driver.
func (d *Drive) Task() {}

// Reset implements iec.Driver.
func (d *Drive) Reset() {
	for i := range d.channels {
		d.channels[i] = channel{}
	}
	d.listen, d.talk = -1, -1
	d.mode = listenNone
	d.input = d.input[:0]
	d.epyxPending = false
	d.setStatus(StatusDOSVersion, 0, 0)
}

// Listen implements iec.Driver.
func (d *Drive) Listen(secondary byte) {
	ch := int(secondary & 0x0F)
	d.listen = ch
	d.input = d.input[:0]
	switch secondary & 0xF0 {
	case secondaryOpen:
		d.mode = listenOpen
	case secondaryClose:
		d.mode = listenNone
		d.closeChannel(ch)
	default:
		d.mode = listenData
	}
}

// Unlisten implements iec.Driver.
func (d *Drive) Unlisten() {
	if d.listen >= 0 {
		switch {
		case d.mode == listenOpen:
			d.openChannel(d.listen, string(d.input))
		case d.mode == listenData && d.listen == channelCommand && len(d.input) > 0:
			d.execute(string(d.input))
		}
	}
	d.listen = -1
	d.mode = listenNone
	d.input = d.input[:0]
	if d.epyxPending {
		d.epyxPending = false
		if !d.dev.RequestEpyxLoad() {
			d.setStatus(StatusUnknown, 0, 0)
		}
	}
}

// Talk implements iec.Driver.
func (d *Drive) Talk(secondary byte) {
	ch := int(secondary & 0x0F)
	// A JiffyDOS block load reads the LOAD channel through TALK 0x61.
	if ch == channelSave && d.dev.Detected() == iec.ProtocolJiffyDOS {
		ch = channelLoad
	}
	d.talk = ch
	if ch == channelCommand {
		c := &d.channels[ch]
		*c = channel{open: true, data: d.status.bytes()}
		d.setStatus(StatusOK, 0, 0)
	}
}

// Untalk implements iec.Driver.
func (d *Drive) Untalk() { d.talk = -1 }

// CanWrite implements iec.Driver.
func (d *Drive) CanWrite() int {
	switch {
	case d.listen < 0 || d.mode == listenNone:
		return iec.NoData
	case d.mode == listenOpen || d.listen == channelCommand:
		return 1
	}
	if c := &d.channels[d.listen]; c.open && c.write {
		return 1
	}
	return iec.NoData
}

// Write implements iec.Driver.
func (d *Drive) Write(b byte, eoi bool) {
	if d.listen < 0 {
		return
	}
	switch {
	case d.mode == listenOpen:
		d.input = append(d.input, b)
	case d.mode != listenData:
	case d.listen == channelCommand:
		d.input = append(d.input, b)
		if eoi {
			d.execute(string(d.input))
			d.input = d.input[:0]
		}
	default:
		if c := &d.channels[d.listen]; c.open && c.write {
			c.data = append(c.data, b)
		}
	}
}

// WriteBlock implements iec.BlockWriter.
func (d *Drive) WriteBlock(buf []byte, eoi bool) int {
	if d.listen < 0 || d.mode != listenData || d.listen == channelCommand {
		return 0
	}
	c := &d.channels[d.listen]
	if !c.open || !c.write {
		return 0
	}
	c.data = append(c.data, buf...)
	return len(buf)
}

// reading returns the channel addressed as talker if it has data to send.
func (d *Drive) reading() *channel {
	if d.talk < 0 {
		return nil
	}
	c := &d.channels[d.talk]
	if !c.open || c.write {
		return nil
	}
	return c
}

// CanRead implements iec.Driver.
func (d *Drive) CanRead() int {
	c := d.reading()
	if c == nil {
		return iec.NoData
	}
	return len(c.data) - c.pos
}

// Peek implements iec.Peeker.
func (d *Drive) Peek() byte {
	c := d.reading()
	if c == nil || c.pos >= len(c.data) {
		return 0
	}
	return c.data[c.pos]
}

// Read implements iec.Driver.
func (d *Drive) Read() byte {
	b := d.Peek()
	if c := d.reading(); c != nil && c.pos < len(c.data) {
		c.pos++
	}
	return b
}

// ReadBlock implements iec.BlockReader.
func (d *Drive) ReadBlock(buf []byte) int {
	c := d.reading()
	if c == nil {
		return 0
	}
	n := copy(buf, c.data[c.pos:])
	c.pos += n
	return n
}

// ReadSector implements iec.SectorReader.
func (d *Drive) ReadSector(track, sector byte, buf []byte) bool {
	if err := d.storage.ReadSector(int(track), int(sector), buf); err != nil {
		pkg.LogDebug(pkg.ComponentDrive, "sector read failed",
			"track", track, "sector", sector, "error", err)
		d.setStatus(StatusIllegalSector, track, sector)
		return false
	}
	return true
}

// WriteSector implements iec.SectorWriter.
func (d *Drive) WriteSector(track, sector byte, buf []byte) bool {
	if err := d.storage.WriteSector(int(track), int(sector), buf); err != nil {
		pkg.LogDebug(pkg.ComponentDrive, "sector write failed",
			"track", track, "sector", sector, "error", err)
		code := StatusIllegalSector
		if d.storage.IsReadOnly() {
			code = StatusWriteProtect
		}
		d.setStatus(code, track, sector)
		return false
	}
	return true
}

// openChannel opens ch on the file named by raw.
func (d *Drive) openChannel(ch int, raw string) {
	if ch == channelCommand {
		if raw != "" {
			d.execute(raw)
		}
		return
	}
	spec := parseSpec(raw)
	switch ch {
	case channelLoad:
		spec.write = false
	case channelSave:
		spec.write = true
	}
	c := &d.channels[ch]
	*c = channel{spec: spec}

	switch {
	case spec.name == "":
		d.setStatus(StatusNameMissing, 0, 0)
		return
	case !spec.write && spec.name == "$":
		c.data = d.directory()
	case !spec.write:
		f, ok := d.File(spec.name)
		if !ok {
			d.setStatus(StatusNotFound, 0, 0)
			pkg.LogDebug(pkg.ComponentDrive, "file not found", "channel", ch, "name", spec.name)
			return
		}
		c.data = f.Data
	case d.storage.IsReadOnly():
		d.setStatus(StatusWriteProtect, 0, 0)
		return
	case !spec.replace:
		if _, exists := d.File(spec.name); exists {
			d.setStatus(StatusExists, 0, 0)
			return
		}
	}
	c.open = true
	c.write = spec.write
	d.setStatus(StatusOK, 0, 0)
	pkg.LogDebug(pkg.ComponentDrive, "channel opened",
		"channel", ch, "name", spec.name, "write", spec.write)
}

// closeChannel closes ch, committing written data to the file table.
func (d *Drive) closeChannel(ch int) {
	c := &d.channels[ch]
	if c.open && c.write {
		d.mutex.Lock()
		d.putLocked(File{Name: c.spec.name, Type: c.spec.typ, Data: c.data})
		d.mutex.Unlock()
		pkg.LogDebug(pkg.ComponentDrive, "file saved", "name", c.spec.name, "size", len(c.data))
	}
	*c = channel{}
}

// execute runs a DOS command received on the command channel.
func (d *Drive) execute(cmd string) {
	cmd = strings.TrimRight(cmd, "\r")
	pkg.LogInfo(pkg.ComponentDrive, "command", "device", d.dev.Number(), "command", cmd)
	switch {
	case cmd == "":
	case cmd == "I" || strings.HasPrefix(cmd, "I0"):
		for i := range channelCommand {
			d.channels[i] = channel{}
		}
		d.setStatus(StatusOK, 0, 0)
	case strings.HasPrefix(cmd, "S"):
		d.scratch(cmd)
	case strings.HasPrefix(cmd, "R"):
		d.rename(cmd)
	case cmd == "XQ":
		d.grant(d.dev.RequestDolphinBurstTransmit())
	case cmd == "XZ":
		d.grant(d.dev.RequestDolphinBurstReceive())
	case strings.HasPrefix(cmd, "M-E"):
		d.epyxPending = true
		d.setStatus(StatusOK, 0, 0)
	case strings.HasPrefix(cmd, "M-"):
		// Memory reads and writes have no drive RAM to act on.
		d.setStatus(StatusOK, 0, 0)
	case cmd == "UJ" || cmd == "U:" || cmd == "UI":
		d.Reset()
	default:
		d.setStatus(StatusUnknown, 0, 0)
	}
}

func (d *Drive) grant(ok bool) {
	if ok {
		d.setStatus(StatusOK, 0, 0)
	} else {
		d.setStatus(StatusUnknown, 0, 0)
	}
}

// scratch handles "S:pattern[,pattern...]".
func (d *Drive) scratch(cmd string) {
	i := strings.IndexByte(cmd, ':')
	if i < 0 {
		d.setStatus(StatusSyntax, 0, 0)
		return
	}
	if d.storage.IsReadOnly() {
		d.setStatus(StatusWriteProtect, 0, 0)
		return
	}
	n := 0
	for _, p := range strings.Split(cmd[i+1:], ",") {
		if p != "" {
			n += d.Remove(p)
		}
	}
	d.setStatus(StatusScratched, uint8(min(n, 255)), 0)
}

// rename handles "R:new=old".
func (d *Drive) rename(cmd string) {
	i := strings.IndexByte(cmd, ':')
	if i < 0 {
		d.setStatus(StatusSyntax, 0, 0)
		return
	}
	to, from, ok := strings.Cut(cmd[i+1:], "=")
	if !ok || to == "" || from == "" {
		d.setStatus(StatusSyntax, 0, 0)
		return
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	src := -1
	for j, f := range d.files {
		switch f.Name {
		case to:
			d.status = message{code: StatusExists}
			return
		case from:
			src = j
		}
	}
	if src < 0 {
		d.status = message{code: StatusNotFound}
		return
	}
	d.files[src].Name = to
	d.status = message{code: StatusOK}
}
