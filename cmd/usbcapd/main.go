// Command usbcapd is the long-running capture daemon (spec.md §1): it
// attaches to one UVC/UAC device, negotiates the best video format for a
// target resolution, and drives the Audio/Video Streamers behind the
// Native Facade until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gousb"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/usbcapd/usbcapd/internal/audiostreamer"
	"github.com/usbcapd/usbcapd/internal/config"
	"github.com/usbcapd/usbcapd/internal/devicestate"
	"github.com/usbcapd/usbcapd/internal/eventloop"
	"github.com/usbcapd/usbcapd/internal/facade"
	"github.com/usbcapd/usbcapd/internal/logging"
	"github.com/usbcapd/usbcapd/internal/usbio"
	"github.com/usbcapd/usbcapd/pkg/audioconn"
	"github.com/usbcapd/usbcapd/pkg/formatselect"
	"github.com/usbcapd/usbcapd/pkg/videoconn"
)

var log = logging.For("usbcapd")

func main() {
	var (
		devicePath string
		vendorID   uint16
		productID  uint16
		configPath string
	)

	root := &cobra.Command{
		Use:   "usbcapd",
		Short: "Capture daemon for a single UVC/UAC device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, devicePath, vendorID, productID, configPath)
		},
	}
	flags := root.Flags()
	flags.StringVar(&devicePath, "device", "", "usbfs device node (e.g. /dev/bus/usb/001/004); overrides --vendor-id/--product-id discovery")
	flags.Uint16Var(&vendorID, "vendor-id", 0, "USB vendor ID to locate, if --device is not given")
	flags.Uint16Var(&productID, "product-id", 0, "USB product ID to locate, if --device is not given")
	flags.StringVar(&configPath, "config", "", "path to config.yaml (default ~/.config/usbcapd/config.yaml)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, devicePath string, vendorID, productID uint16, configPath string) error {
	cfg, err := config.Load(cmd.Flags(), configPath)
	if err != nil {
		return fmt.Errorf("usbcapd: %w", err)
	}
	logging.SetLevel(parseLevel(cfg.LogLevel))

	if devicePath == "" {
		if vendorID == 0 {
			vendorID, productID = cfg.VendorID, cfg.ProductID
		}
		path, err := locateDevicePath(vendorID, productID)
		if err != nil {
			return fmt.Errorf("usbcapd: %w", err)
		}
		devicePath = path
	}

	file, err := os.OpenFile(devicePath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("usbcapd: open %s: %w", devicePath, err)
	}
	defer file.Close()
	fd := file.Fd()

	videoTarget, audioParams, err := plan(fd, cfg)
	if err != nil {
		return fmt.Errorf("usbcapd: %w", err)
	}

	loop := eventloop.New()
	defer loop.Close()
	state := devicestate.New()
	f := facade.New(loop, state)

	videoSink := newEbitenVideoSink()
	audioCtx := audio.NewContext(int(audioParams.SampleRate))
	audioSink := newEbitenAudioSink(audioCtx)

	ok, message := f.Connect(fd, audioSink, videoSink, audioParams, videoTarget, videoTarget.FormatIndex, videoTarget.FrameIndex)
	if !ok {
		return fmt.Errorf("usbcapd: connect: %s", message)
	}
	if ok, message := f.Start(); !ok {
		return fmt.Errorf("usbcapd: start: %s", message)
	}
	log.Info().Str("device", devicePath).Int("width", videoTarget.Width).Int("height", videoTarget.Height).Int("fps", videoTarget.FPS).Msg("streaming")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("shutting down")
		if ok, message := f.Stop(); !ok {
			log.Warn().Str("message", message).Msg("stop reported failure")
		}
		if err := f.Disconnect(); err != nil {
			log.Warn().Err(err).Msg("disconnect error")
		}
		os.Exit(0)
	}()

	ebiten.SetWindowSize(videoTarget.Width, videoTarget.Height)
	ebiten.SetWindowTitle("usbcapd")
	return ebiten.RunGame(newCaptureWindow(videoSink))
}

// plan opens the device once to read its configuration descriptor and
// pick the best video format and the audio connection's native PCM
// parameters, then closes that probe handle — Connect reopens fd itself.
func plan(fd uintptr, cfg *config.Config) (videoconn.VideoFormat, audiostreamer.Params, error) {
	dev, err := usbio.Open(fd)
	if err != nil {
		return videoconn.VideoFormat{}, audiostreamer.Params{}, err
	}
	defer dev.Close()

	blob, err := dev.ConfigDescriptorBytes()
	if err != nil {
		return videoconn.VideoFormat{}, audiostreamer.Params{}, err
	}

	if !facade.IsUVC(blob) {
		return videoconn.VideoFormat{}, audiostreamer.Params{}, fmt.Errorf("device is not a UVC function")
	}

	vconn := videoconn.Parse(blob)
	target := formatselect.Target{Width: cfg.TargetWidth, Height: cfg.TargetHeight}
	best, ok := formatselect.Select(vconn.Formats, target)
	if !ok {
		return videoconn.VideoFormat{}, audiostreamer.Params{}, fmt.Errorf("no usable video format advertised")
	}

	aconn := audioconn.Parse(blob)
	audioParams := audiostreamer.Params{
		FramesPerBurst: cfg.FramesPerBurst,
		BufferInFrames: cfg.BufferInFrames,
	}
	if aconn.SupportsAudioStreaming() {
		audioParams.SampleRate = aconn.SampleRate()
		audioParams.Channels = aconn.Channels()
		audioParams.SubFrameSize = aconn.SubFrameSize()
	}
	if audioParams.SampleRate == 0 {
		audioParams.SampleRate = 48000
		audioParams.Channels = 2
		audioParams.SubFrameSize = 2
	}
	return best, audioParams, nil
}

// locateDevicePath enumerates attached USB devices via gousb looking for a
// vendor/product match, mirroring stegmannb-usbtree's detector pattern,
// and returns the usbfs node libusb itself would have opened.
func locateDevicePath(vendorID, productID uint16) (string, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var bus, address int
	found := false
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if found {
			return false
		}
		if uint16(desc.Vendor) == vendorID && uint16(desc.Product) == productID {
			bus, address = desc.Bus, desc.Address
			found = true
		}
		return false
	})
	for _, d := range devices {
		d.Close()
	}
	if err != nil {
		return "", fmt.Errorf("enumerate usb devices: %w", err)
	}
	if !found {
		return "", fmt.Errorf("no device matching vendor=%#04x product=%#04x", vendorID, productID)
	}
	return fmt.Sprintf("/dev/bus/usb/%03d/%03d", bus, address), nil
}

func parseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}
