// Command uvcdump is a diagnostic tool for a single UVC/UAC device: a
// "descriptors" subcommand browses its video formats/frames in a tview
// list (grounded on the teacher's cmd/inspect.go), and a "waveform"
// subcommand renders a live level meter and frequency spectrum of its
// audio stream in a tcell/tview terminal UI (grounded on the teacher's
// cmd/uac_inspect).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "uvcdump",
		Short: "Inspect a UVC/UAC device's descriptors and audio stream",
	}
	root.AddCommand(newDescriptorsCmd())
	root.AddCommand(newWaveformCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
