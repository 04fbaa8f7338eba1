// Package simulator implements an MSG camera server for tests and demos.
//
// A Device models the camera state machine: "run expose" starts an exposure
// that turns Exposed after the exposure time, "run readout" renders a 16-bit
// FITS frame that becomes available after the readout delay. Frames are
// served through both transfer variants, "fits 0 <max>" answered with a blk
// reply and "run fits 0 <max>" answered with ack followed by a blk line.
//
// Server accepts TCP connections and gives each its own Device:
//
//	srv, _ := simulator.NewServer(simulator.WithTimeScale(0.01))
//	_ = srv.Listen(ctx, "127.0.0.1:6868")
//	go srv.Serve(ctx)
package simulator
