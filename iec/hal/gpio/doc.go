// Package gpio drives the serial bus from Linux GPIO lines through the
// character-device interface (/dev/gpiochipN, uAPI v2).
//
// Each bus line is requested separately so its direction can change on the
// fly: a released line is an input with the pull-up enabled, an asserted
// line is an output driven low. The bus must be buffered to 5 V externally;
// interfaces with inverting buffers pair with iec.Handler.SetInverted.
//
// Edge events arrive on the line request file descriptors. [Bus.Run] waits
// on them with epoll and delivers them to handlers registered with
// [Bus.AttachInterrupt]. [Bus.DisableInterrupts] latches events until they
// are restored, the same as a masked CPU interrupt.
//
// # Wiring
//
// A [Config] maps bus lines to chip offsets. ATN, CLK and DATA are
// required; RESET and CTRL are optional. A DolphinDOS cable adds eight data
// lines and two handshake lines in [ParallelConfig].
//
//	bus, err := gpio.Open(gpio.Config{
//	    Chip: "/dev/gpiochip0",
//	    ATN:  17, CLK: 27, DATA: 22, RESET: 23, CTRL: -1,
//	})
//	if err != nil {
//	    return err
//	}
//	defer bus.Close()
//
//	h := iec.NewHandler(bus, iec.ProtocolJiffyDOS)
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(func() error { return bus.Run(ctx) })
package gpio
