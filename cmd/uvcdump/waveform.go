package main

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"

	"github.com/usbcapd/usbcapd/internal/audiostreamer"
	"github.com/usbcapd/usbcapd/internal/sink"
	"github.com/usbcapd/usbcapd/pkg/audioconn"
)

func newWaveformCmd() *cobra.Command {
	var devicePath string
	cmd := &cobra.Command{
		Use:   "waveform",
		Short: "Render a live level meter and spectrum of a device's audio stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWaveform(devicePath)
		},
	}
	cmd.Flags().StringVar(&devicePath, "device", "", "usbfs device node")
	cmd.MarkFlagRequired("device")
	return cmd
}

// waveformDisplay accumulates a rolling window of samples and renders a
// level bar plus a frequency spectrum, grounded on the teacher's
// WaveformDisplay (cmd/uac_inspect), trimmed to the subset uvcdump needs.
type waveformDisplay struct {
	mu      sync.Mutex
	samples []float32
	write   int
	peak    float32
	rms     float32

	fftSize int
	bins    []float64
}

func newWaveformDisplay(sampleRate int) *waveformDisplay {
	return &waveformDisplay{
		samples: make([]float32, sampleRate*2),
		fftSize: 2048,
		bins:    make([]float64, 1024),
	}
}

func (w *waveformDisplay) addSamples(samples []int16, channels int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var rmsSum float64
	var peakMax float32
	n := len(samples) / channels
	for i := 0; i < n; i++ {
		s := float32(samples[i*channels]) / 32768.0
		if abs := float32(math.Abs(float64(s))); abs > peakMax {
			peakMax = abs
		}
		rmsSum += float64(s) * float64(s)
		w.samples[w.write] = s
		w.write = (w.write + 1) % len(w.samples)
	}
	if n > 0 {
		w.peak = w.peak*0.95 + peakMax*0.05
		w.rms = w.rms*0.95 + float32(math.Sqrt(rmsSum/float64(n)))*0.05
	}
}

func (w *waveformDisplay) spectrum() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := w.write - w.fftSize
	if start < 0 {
		start = 0
	}
	input := make([]complex128, w.fftSize)
	for i := 0; i < w.fftSize && start+i < len(w.samples); i++ {
		window := 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(w.fftSize-1))
		input[i] = complex(float64(w.samples[start+i])*window, 0)
	}
	out := fft.FFT(input)
	for i := range w.bins {
		if mag := cmplx.Abs(out[i]); mag > 0 {
			w.bins[i] = 20 * math.Log10(mag)
		} else {
			w.bins[i] = -120
		}
	}
	return w.bins
}

func (w *waveformDisplay) levels() (peakDB, rmsDB float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	peakDB, rmsDB = -120, -120
	if w.peak > 0 {
		peakDB = 20 * math.Log10(float64(w.peak))
	}
	if w.rms > 0 {
		rmsDB = 20 * math.Log10(float64(w.rms))
	}
	return
}

// probeSink is a sink.Audio that pulls from the Audio Streamer on a timer
// instead of driving real hardware, feeding every pulled buffer into a
// waveformDisplay.
type probeSink struct {
	display *waveformDisplay
	cb      sink.AudioCallback
	channels int
	stop    chan struct{}
}

func (p *probeSink) Configure(cb sink.AudioCallback, sampleRate, channels, subFrameSize int) error {
	p.cb = cb
	p.channels = channels
	return nil
}

func (p *probeSink) Start() error {
	p.stop = make(chan struct{})
	go func() {
		buf := make([]int16, 4096*p.channels)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				filled, err := p.cb(buf, 4096)
				if err != nil || filled == 0 {
					continue
				}
				p.display.addSamples(buf[:filled*p.channels], p.channels)
			}
		}
	}()
	return nil
}

func (p *probeSink) Stop() error {
	if p.stop != nil {
		close(p.stop)
	}
	return nil
}

func (p *probeSink) Close() error { return nil }

func runWaveform(devicePath string) error {
	blob, err := fetchBlob(devicePath)
	if err != nil {
		return err
	}
	aconn := audioconn.Parse(blob)
	if !aconn.SupportsAudioStreaming() {
		return fmt.Errorf("uvcdump: %s", aconn.FailureReason())
	}

	file, err := openDevice(devicePath)
	if err != nil {
		return err
	}
	defer file.Close()

	display := newWaveformDisplay(int(aconn.SampleRate()))
	probe := &probeSink{display: display}

	streamer, err := audiostreamer.New(file.Fd(), probe, audiostreamer.Params{
		SampleRate:     aconn.SampleRate(),
		Channels:       aconn.Channels(),
		SubFrameSize:   aconn.SubFrameSize(),
		FramesPerBurst: 8,
		BufferInFrames: 4096,
		Conn:           aconn,
	})
	if err != nil {
		return fmt.Errorf("uvcdump: %w", err)
	}
	if ok, message := streamer.Start(); !ok {
		return fmt.Errorf("uvcdump: start: %s", message)
	}
	defer streamer.Destroy()

	app := tview.NewApplication()
	levels := tview.NewTextView().SetDynamicColors(true)
	levels.SetBorder(true).SetTitle("Levels")
	spectrum := tview.NewTextView().SetDynamicColors(true)
	spectrum.SetBorder(true).SetTitle("Spectrum")

	stopRefresh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopRefresh:
				return
			case <-ticker.C:
				peakDB, rmsDB := display.levels()
				bins := display.spectrum()
				app.QueueUpdateDraw(func() {
					levels.Clear()
					fmt.Fprintf(levels, "peak %.1f dB\nrms  %.1f dB\n", peakDB, rmsDB)
					spectrum.Clear()
					renderSpectrum(spectrum, bins)
				})
			}
		}
	}()
	defer close(stopRefresh)

	flex := tview.NewFlex().
		AddItem(levels, 0, 1, false).
		AddItem(spectrum, 0, 3, false)

	return app.SetRoot(flex, true).Run()
}

func renderSpectrum(w *tview.TextView, bins []float64) {
	const width = 64
	step := len(bins) / 4 / width
	if step == 0 {
		step = 1
	}
	for x := 0; x*step < len(bins)/4; x++ {
		avg := 0.0
		for i := 0; i < step && x*step+i < len(bins); i++ {
			avg += bins[x*step+i]
		}
		avg /= float64(step)
		bars := int((avg + 60) / 60 * 20)
		if bars < 0 {
			bars = 0
		}
		if bars > 20 {
			bars = 20
		}
		for i := 0; i < bars; i++ {
			fmt.Fprint(w, "#")
		}
		fmt.Fprint(w, "\n")
	}
}
