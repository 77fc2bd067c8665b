package command

// Bandwidth holds the policer values derived from a requested rate.
type Bandwidth struct {
	Mbps  int64
	Rate  int64 // bits per second
	Burst int64 // bytes
}

// BandwidthFor derives policer parameters: the rate in bits per second
// and a burst sized for 5 ms of traffic at that rate.
func BandwidthFor(mbps int64) Bandwidth {
	return Bandwidth{
		Mbps:  mbps,
		Rate:  mbps * 1000000,
		Burst: mbps * 5000 / 8,
	}
}
