package avtk

// Packet is one encoded access unit together with its timing. Video
// packets carry a full Annex B access unit, audio packets one raw
// codec frame. PTS and DTS count ticks of TimeBase.
type Packet struct {
	Data        []byte
	PTS         int64
	DTS         int64
	Duration    int64
	TimeBase    Rational
	StreamIndex int
	Key         bool
}

// RescaleTo converts PTS, DTS and Duration from the packet's current
// time base into tb and records tb as the new time base.
func (p *Packet) RescaleTo(tb Rational) {
	if p.TimeBase == tb || !p.TimeBase.IsValid() {
		p.TimeBase = tb
		return
	}
	p.PTS = RescaleQ(p.PTS, p.TimeBase, tb)
	p.DTS = RescaleQ(p.DTS, p.TimeBase, tb)
	if p.Duration != 0 {
		p.Duration = RescaleQ(p.Duration, p.TimeBase, tb)
	}
	p.TimeBase = tb
}

// Clone returns a deep copy of the packet.
func (p *Packet) Clone() *Packet {
	c := *p
	c.Data = make([]byte, len(p.Data))
	copy(c.Data, p.Data)
	return &c
}
