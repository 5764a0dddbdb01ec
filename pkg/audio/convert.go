package audio

// Convert transforms little-endian int16 PCM from one [Format] to another.
// If the formats already match, pcm is returned unchanged (zero allocation).
// Conversion order: resample first, then channel convert, which avoids
// resampling stereo data when the target is mono.
//
// Only 16-bit formats are supported; BitDepth differences are ignored.
func Convert(pcm []byte, from, to Format) []byte {
	if len(pcm)%2 != 0 {
		// Odd byte count means corrupt int16 data; drop the trailing byte.
		pcm = pcm[:len(pcm)-1]
	}
	if from.SampleRate == to.SampleRate && from.Channels == to.Channels {
		return pcm
	}

	if from.SampleRate != to.SampleRate {
		if from.Channels == 1 {
			pcm = resampleMono16(pcm, from.SampleRate, to.SampleRate)
		} else {
			pcm = resampleStereo16(pcm, from.SampleRate, to.SampleRate)
		}
	}

	if from.Channels != to.Channels {
		switch {
		case from.Channels == 1 && to.Channels == 2:
			pcm = MonoToStereo(pcm)
		case from.Channels == 2 && to.Channels == 1:
			pcm = StereoToMono(pcm)
		}
	}
	return pcm
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
// Input must be little-endian int16 PCM (2 bytes per sample).
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// resampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// resampleStereo16 resamples 16-bit interleaved stereo PCM from srcRate to
// dstRate, interpolating each channel independently.
func resampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 4 {
		return pcm
	}
	srcFrames := len(pcm) / 4
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*4)
	ratio := float64(srcRate) / float64(dstRate)

	sample := func(frame, ch int) int16 {
		off := frame*4 + ch*2
		return int16(pcm[off]) | int16(pcm[off+1])<<8
	}

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		for ch := range 2 {
			s0 := sample(srcIdx, ch)
			s1 := s0
			if srcIdx+1 < srcFrames {
				s1 = sample(srcIdx+1, ch)
			}
			v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
			off := i*4 + ch*2
			out[off] = byte(v)
			out[off+1] = byte(v >> 8)
		}
	}
	return out
}
