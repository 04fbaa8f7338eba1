// Package camera drives a scientific CCD camera behind an MSG camera server.
//
// The device owns the camera state; Camera only observes it by polling
// "get state" and never assumes a transition succeeded. A typical exposure:
//
//	cfg, _ := camera.NewConfig("wfscam", camera.DefaultPort)
//	cam, err := camera.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer cam.Close()
//
//	img, err := cam.Capture(ctx, camera.ExposureRequest{Type: camera.Light, Duration: 5})
//
// Capture always tries to leave the camera Idle, whatever the outcome.
package camera
