// Package drive implements a disk drive for the serial bus.
//
// A [Drive] is an [iec.Driver] with a file table, sixteen channels and a
// command channel, modelled on a 1541:
//
//   - channel 0 reads (LOAD), channel 1 writes (SAVE)
//   - channels 2-14 open files by name with ",S,W"-style modifiers
//   - channel 15 takes DOS commands and reports status messages
//
// Opening "$" on channel 0 returns the directory as a BASIC listing.
//
// # Commands
//
//	I          initialize (close data channels)
//	S:pattern  scratch matching files
//	R:new=old  rename a file
//	XQ, XZ     request a DolphinDOS burst load or save
//	M-E        start an Epyx FastLoad upload after UNLISTEN
//	UJ         reset the drive
//
// # Storage
//
// Raw sectors live in a [Storage] backend, either a [MemoryStorage] or a
// D64 image through [FileStorage]. They serve the Epyx sector operations;
// the file table is kept separately in memory.
//
// # Usage Example
//
//	d := drive.New(8, nil)
//	d.AddFile("HELLO", drive.TypePRG, program)
//	d.Device().SetJiffyDOS(true)
//
//	h := iec.NewHandler(bus, iec.ProtocolAll)
//	if err := h.Attach(d.Device()); err != nil {
//	    return err
//	}
package drive
