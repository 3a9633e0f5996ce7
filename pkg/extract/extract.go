// Package extract pulls a fixed subset of hardware channels out of an
// interleaved scan buffer and re-interleaves them in the declared order.
package extract

// Channels copies the selected channels of every scan in src into a new
// buffer. src holds scans of hwChannels interleaved uint16 samples each;
// the output holds the same scans reduced to len(selection) samples in
// selection order.
func Channels(src []uint16, hwChannels int, selection []int) []uint16 {
	dst := make([]uint16, 0, (len(src)/hwChannels)*len(selection))
	return AppendChannels(dst, src, hwChannels, selection)
}

// AppendChannels is the allocation-free form of Channels. It appends the
// extracted samples to dst and returns the extended slice, so a hot loop
// can reuse one scratch buffer across half-buffers.
func AppendChannels(dst, src []uint16, hwChannels int, selection []int) []uint16 {
	scans := len(src) / hwChannels
	for i := 0; i < scans; i++ {
		base := i * hwChannels
		for _, ch := range selection {
			dst = append(dst, src[base+ch])
		}
	}
	return dst
}
