package ringbuffer_test

import (
	"testing"

	"github.com/usbcapd/usbcapd/pkg/ringbuffer"
)

// TestOverrunDropsOldest exercises a single write larger than capacity:
// writing 16 samples into a 12-sample buffer must drop the
// oldest 4, so the first Read(8) yields samples 4..11 and a second
// Read(8) yields the remaining 12..15.
func TestOverrunDropsOldest(t *testing.T) {
	rb := ringbuffer.New(12)

	data := make([]int16, 16)
	for i := range data {
		data[i] = int16(i)
	}
	if n := rb.Write(data); n != 16 {
		t.Fatalf("expected Write to report 16, got %d", n)
	}

	first := make([]int16, 8)
	if n := rb.Read(first); n != 8 {
		t.Fatalf("expected first Read to return 8, got %d", n)
	}
	for i, want := range []int16{4, 5, 6, 7, 8, 9, 10, 11} {
		if first[i] != want {
			t.Fatalf("first[%d] = %d, want %d", i, first[i], want)
		}
	}

	second := make([]int16, 8)
	if n := rb.Read(second); n != 4 {
		t.Fatalf("expected second Read to return 4, got %d", n)
	}
	for i, want := range []int16{12, 13, 14, 15} {
		if second[i] != want {
			t.Fatalf("second[%d] = %d, want %d", i, second[i], want)
		}
	}
}

// TestOverrunDropsOldestSpecNumbers replays spec.md §8 scenario 5 verbatim:
// capacity 8, write 12 samples [0..11], first Read(8) yields [4..11]; write
// 4 more [12..15], second Read(4) yields [12..15].
func TestOverrunDropsOldestSpecNumbers(t *testing.T) {
	rb := ringbuffer.New(8)

	first12 := make([]int16, 12)
	for i := range first12 {
		first12[i] = int16(i)
	}
	if n := rb.Write(first12); n != 12 {
		t.Fatalf("expected Write to report 12, got %d", n)
	}

	first := make([]int16, 8)
	if n := rb.Read(first); n != 8 {
		t.Fatalf("expected first Read to return 8, got %d", n)
	}
	for i, want := range []int16{4, 5, 6, 7, 8, 9, 10, 11} {
		if first[i] != want {
			t.Fatalf("first[%d] = %d, want %d", i, first[i], want)
		}
	}

	next4 := []int16{12, 13, 14, 15}
	if n := rb.Write(next4); n != 4 {
		t.Fatalf("expected Write to report 4, got %d", n)
	}

	second := make([]int16, 4)
	if n := rb.Read(second); n != 4 {
		t.Fatalf("expected second Read to return 4, got %d", n)
	}
	for i, want := range next4 {
		if second[i] != want {
			t.Fatalf("second[%d] = %d, want %d", i, second[i], want)
		}
	}
}

func TestReadEmptyReturnsZero(t *testing.T) {
	rb := ringbuffer.New(4)
	dst := make([]int16, 4)
	if n := rb.Read(dst); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestCapacityFormula(t *testing.T) {
	// framesPerBurst=8, subFrame=2, channels=2, maxPacketSize=192,
	// bufferCapacityInFrames=4096.
	got := ringbuffer.Capacity(8, 2, 2, 192, 4096)
	// numPackets = max(2, ceil(8*2*2/192)) = max(2, 1) = 2
	// numTransfers = max(2, ceil(4096/8)) = 512
	// capacity = 2*192*512/2 = 98304
	want := 2 * 192 * 512 / 2
	if got != want {
		t.Fatalf("Capacity() = %d, want %d", got, want)
	}
}
