// Package usbio is the raw-USB-I/O collaborator named in spec.md §1/§6: a
// thin wrapper around github.com/google/gousb providing exactly the calls
// components F, G and J need (open-by-fd, fetch the raw configuration
// descriptor blob, claim an interface, issue control transfers, open
// isochronous streams). It does not interpret any of the bytes it moves —
// that's components A/B/C/D's job.
//
// Grounded on the teacher's alt_uvc.go, which already demonstrates opening
// a device by file descriptor and driving UVC probe/commit over
// gousb.Device.Control.
package usbio

import (
	"fmt"

	"github.com/google/gousb"
)

const (
	stdRequestTypeDeviceToHostIn = 0x80
	stdRequestGetDescriptor      = 0x06
	descriptorTypeConfig         = 0x02
)

// Device wraps a gousb.Device opened against an existing file descriptor
// (the host has already done the permission dance; we just inherit its fd).
type Device struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	cfg    *gousb.Config
	claims []*gousb.Interface
}

// Open creates a gousb context with its default options (device discovery
// is not disabled) and wraps fd.
func Open(fd uintptr) (*Device, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithFileDescriptor(fd)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usbio: open device fd %d: %w", fd, err)
	}
	return &Device{ctx: ctx, dev: dev}, nil
}

// ConfigDescriptorBytes fetches the raw active configuration descriptor
// blob (construction step 3 of the Audio Streamer) via a standard
// GET_DESCRIPTOR control transfer, independent of gousb's own parsed
// ConfigDesc — this is the byte blob component A's parser tokenizes.
func (d *Device) ConfigDescriptorBytes() ([]byte, error) {
	head := make([]byte, 9)
	if _, err := d.dev.Control(stdRequestTypeDeviceToHostIn, stdRequestGetDescriptor, descriptorTypeConfig<<8, 0, head); err != nil {
		return nil, fmt.Errorf("usbio: get configuration descriptor header: %w", err)
	}
	total := int(head[2]) | int(head[3])<<8
	if total <= 9 {
		return head[:total], nil
	}
	full := make([]byte, total)
	if _, err := d.dev.Control(stdRequestTypeDeviceToHostIn, stdRequestGetDescriptor, descriptorTypeConfig<<8, 0, full); err != nil {
		return nil, fmt.Errorf("usbio: get configuration descriptor: %w", err)
	}
	return full, nil
}

// ClaimInterface detaches any bound kernel driver (remembering to
// reattach on Close), selects the active configuration, claims ifNum and
// selects altSetting.
func (d *Device) ClaimInterface(ifNum, altSetting int) (*gousb.Interface, error) {
	if err := d.dev.SetAutoDetach(true); err != nil {
		return nil, fmt.Errorf("usbio: set auto detach: %w", err)
	}
	if d.cfg == nil {
		cfgNum, err := d.dev.ActiveConfigNum()
		if err != nil {
			return nil, fmt.Errorf("usbio: active config: %w", err)
		}
		cfg, err := d.dev.Config(cfgNum)
		if err != nil {
			return nil, fmt.Errorf("usbio: claim config %d: %w", cfgNum, err)
		}
		d.cfg = cfg
	}
	iface, err := d.cfg.Interface(ifNum, altSetting)
	if err != nil {
		return nil, fmt.Errorf("usbio: claim interface %d alt %d: %w", ifNum, altSetting, err)
	}
	d.claims = append(d.claims, iface)
	return iface, nil
}

// Control issues a control transfer directly against the wrapped device,
// used for UVC probe/commit (via the internal uvcproto shim).
func (d *Device) Control(requestType, request uint8, value, index uint16, data []byte) (int, error) {
	n, err := d.dev.Control(requestType, request, value, index, data)
	if err != nil {
		return n, fmt.Errorf("usbio: control transfer: %w", err)
	}
	return n, nil
}

// Speed reports the negotiated USB operating speed, for
// getUsbDeviceSpeed() in spec.md §6.
func (d *Device) Speed() gousb.Speed {
	return d.dev.Desc.Speed
}

// Close releases claimed interfaces, the config, the device handle and the
// context, in that order — the reverse of acquisition, matching the
// Audio Streamer's Destroy sequence (spec.md §4.F).
func (d *Device) Close() error {
	for _, c := range d.claims {
		c.Close()
	}
	d.claims = nil
	if d.cfg != nil {
		d.cfg.Close()
		d.cfg = nil
	}
	if err := d.dev.Close(); err != nil {
		return fmt.Errorf("usbio: close device: %w", err)
	}
	d.ctx.Close()
	return nil
}
