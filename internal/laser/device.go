package laser

import "sync"

// Device is the raw laser driver boundary: a numeric power instruction in,
// an authoritative power reading out. Reads may be slow or rate limited,
// which is why the gateway keeps a cache.
type Device interface {
	WritePower(power float64) error
	ReadPower() (float64, error)
	Name() string
}

// IlluminationSink receives applied power levels, closing the loop in
// simulation (the camera's frame intensity responds to it).
type IlluminationSink interface {
	SetIllumination(level float64)
}

// SimulatedDevice is an in-memory laser driver. Writes are forwarded to an
// optional illumination sink.
type SimulatedDevice struct {
	mu    sync.Mutex
	power float64
	sink  IlluminationSink
}

func NewSimulatedDevice(sink IlluminationSink) *SimulatedDevice {
	return &SimulatedDevice{sink: sink}
}

func (d *SimulatedDevice) WritePower(power float64) error {
	d.mu.Lock()
	d.power = power
	sink := d.sink
	d.mu.Unlock()

	if sink != nil {
		sink.SetIllumination(power)
	}

	return nil
}

func (d *SimulatedDevice) ReadPower() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.power, nil
}

func (*SimulatedDevice) Name() string {
	return "simulated"
}
