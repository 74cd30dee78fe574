package media

// Packet is one compressed unit emitted by the encoder. The payload may live
// in codec-owned memory; it is valid until Release.
type Packet struct {
	PTS int64
	DTS int64
	Key bool

	// Handle is the codec's own packet when the payload lives in codec
	// memory, nil for packets built in Go.
	Handle any

	data    []byte
	release func()
}

// NewPacket wraps data. release, if non-nil, runs once on the first Release.
func NewPacket(data []byte, pts, dts int64, key bool, release func()) *Packet {
	return &Packet{PTS: pts, DTS: dts, Key: key, data: data, release: release}
}

// Bytes returns the payload. Do not retain it past Release.
func (p *Packet) Bytes() []byte {
	return p.data
}

// Size returns the payload length in bytes.
func (p *Packet) Size() int {
	return len(p.data)
}

// Forget drops the payload view without releasing it, for callers that
// handed the underlying buffer to another owner.
func (p *Packet) Forget() {
	p.data = nil
}

// Released reports whether Release has been called.
func (p *Packet) Released() bool {
	return p.data == nil && p.release == nil
}

// Release returns the payload to its owner. Safe to call more than once.
func (p *Packet) Release() {
	p.data = nil
	if p.release != nil {
		fn := p.release
		p.release = nil
		fn()
	}
}
