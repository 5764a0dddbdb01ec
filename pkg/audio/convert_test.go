package audio

import (
	"bytes"
	"testing"
)

func TestConvert_SameFormatReturnsInput(t *testing.T) {
	t.Parallel()
	f := Format{SampleRate: 48000, Channels: 2, BitDepth: 16}
	pcm := Int16sToBytes([]int16{1, 2, 3, 4})

	got := Convert(pcm, f, f)
	if !bytes.Equal(got, pcm) {
		t.Errorf("Convert same format changed data: got %v, want %v", got, pcm)
	}
}

func TestConvert_DropsTrailingOddByte(t *testing.T) {
	t.Parallel()
	f := Format{SampleRate: 48000, Channels: 1, BitDepth: 16}
	pcm := []byte{0x01, 0x02, 0x03}

	got := Convert(pcm, f, f)
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestMonoToStereo(t *testing.T) {
	t.Parallel()
	mono := Int16sToBytes([]int16{100, -200, 32767})

	got := BytesToInt16s(MonoToStereo(mono))
	want := []int16{100, 100, -200, -200, 32767, 32767}
	if len(got) != len(want) {
		t.Fatalf("sample count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		stereo []int16
		want   []int16
	}{
		{
			name:   "averages channels",
			stereo: []int16{100, 200, -100, -300},
			want:   []int16{150, -200},
		},
		{
			name:   "extremes do not overflow",
			stereo: []int16{32767, 32767, -32768, -32768},
			want:   []int16{32767, -32768},
		},
		{
			name:   "opposite channels cancel",
			stereo: []int16{1000, -1000},
			want:   []int16{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := BytesToInt16s(StereoToMono(Int16sToBytes(tt.stereo)))
			if len(got) != len(tt.want) {
				t.Fatalf("sample count = %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("sample[%d] = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestConvert_Downsample48kTo16kMono(t *testing.T) {
	t.Parallel()
	from := Format{SampleRate: 48000, Channels: 1, BitDepth: 16}
	to := Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

	// 480 samples = 10 ms at 48 kHz; expect 160 samples at 16 kHz.
	src := make([]int16, 480)
	for i := range src {
		src[i] = int16(i)
	}

	got := Convert(Int16sToBytes(src), from, to)
	if samples := len(got) / 2; samples != 160 {
		t.Errorf("output samples = %d, want 160", samples)
	}
}

func TestConvert_StereoDownsampleAndDownmix(t *testing.T) {
	t.Parallel()
	from := Format{SampleRate: 48000, Channels: 2, BitDepth: 16}
	to := Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

	// 960 stereo frames = 20 ms at 48 kHz; expect 320 mono samples.
	src := make([]int16, 960*2)
	for i := range src {
		src[i] = 1000
	}

	got := Convert(Int16sToBytes(src), from, to)
	if samples := len(got) / 2; samples != 320 {
		t.Fatalf("output samples = %d, want 320", samples)
	}

	// Constant input should stay constant through interpolation and downmix.
	for i, s := range BytesToInt16s(got) {
		if s != 1000 {
			t.Fatalf("sample[%d] = %d, want 1000", i, s)
		}
	}
}

func TestConvert_Upsample(t *testing.T) {
	t.Parallel()
	from := Format{SampleRate: 16000, Channels: 1, BitDepth: 16}
	to := Format{SampleRate: 48000, Channels: 1, BitDepth: 16}

	src := make([]int16, 160)
	got := Convert(Int16sToBytes(src), from, to)
	if samples := len(got) / 2; samples != 480 {
		t.Errorf("output samples = %d, want 480", samples)
	}
}

func TestFormat_BytesPerSecond(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		f    Format
		want int
	}{
		{"discord capture", Format{48000, 2, 16}, 192000},
		{"whisper input", Format{16000, 1, 16}, 32000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.f.BytesPerSecond(); got != tt.want {
				t.Errorf("BytesPerSecond() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormat_Duration(t *testing.T) {
	t.Parallel()
	f := Format{SampleRate: 48000, Channels: 2, BitDepth: 16}

	if got := f.Duration(192000); got.Seconds() != 1 {
		t.Errorf("Duration(192000) = %v, want 1s", got)
	}
	if got := (Format{}).Duration(1000); got != 0 {
		t.Errorf("zero format Duration = %v, want 0", got)
	}
}
