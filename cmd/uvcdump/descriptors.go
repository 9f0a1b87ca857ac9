package main

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/spf13/cobra"

	"github.com/usbcapd/usbcapd/internal/usbio"
	"github.com/usbcapd/usbcapd/pkg/audioconn"
	"github.com/usbcapd/usbcapd/pkg/videoconn"
)

func newDescriptorsCmd() *cobra.Command {
	var devicePath string
	cmd := &cobra.Command{
		Use:   "descriptors",
		Short: "Browse a device's video formats and frame intervals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescriptors(devicePath)
		},
	}
	cmd.Flags().StringVar(&devicePath, "device", "", "usbfs device node")
	cmd.MarkFlagRequired("device")
	return cmd
}

func runDescriptors(devicePath string) error {
	blob, err := fetchBlob(devicePath)
	if err != nil {
		return err
	}

	vconn := videoconn.Parse(blob)
	aconn := audioconn.Parse(blob)

	app := tview.NewApplication()

	formats := tview.NewList().ShowSecondaryText(true)
	formats.SetBorder(true).SetTitle(fmt.Sprintf("Video Formats (interface %d, alt %d)", vconn.InterfaceNumber, vconn.AlternateSetting))
	for _, f := range vconn.Formats {
		title := fmt.Sprintf("%s %dx%d", string(f.FourCC[:]), f.Width, f.Height)
		subtitle := fmt.Sprintf("%d fps, format=%d frame=%d", f.FPS, f.FormatIndex, f.FrameIndex)
		formats.AddItem(title, subtitle, 0, nil)
	}
	if len(vconn.Formats) == 0 {
		formats.AddItem("(no video streaming interface found)", "", 0, nil)
	}

	audioInfo := tview.NewTextView().SetDynamicColors(true)
	audioInfo.SetBorder(true).SetTitle("Audio Streaming")
	if aconn.SupportsAudioStreaming() {
		fmt.Fprintf(audioInfo, "interface %d alt %d\nformat: %v\nchannels: %d\nsample size: %d bytes\nsample rate: %d Hz\nendpoint: %#02x max packet %d\n",
			aconn.InterfaceNumber, aconn.AlternateSetting, aconn.SupportedAudioFormat(), aconn.Channels(), aconn.SubFrameSize(), aconn.SampleRate(), aconn.EndpointAddress, aconn.MaxPacketSize)
	} else {
		fmt.Fprintf(audioInfo, "%s\n", aconn.FailureReason())
	}

	flex := tview.NewFlex().
		AddItem(formats, 0, 2, true).
		AddItem(audioInfo, 0, 1, false)

	return app.SetRoot(flex, true).Run()
}

func fetchBlob(devicePath string) ([]byte, error) {
	file, err := openDevice(devicePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dev, err := usbio.Open(file.Fd())
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	return dev.ConfigDescriptorBytes()
}
