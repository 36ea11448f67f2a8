package hw

import "testing"

func TestChannelBalanceGainCenterIsUnity(t *testing.T) {
	if g := ChannelBalanceGain(2, 0, 0); g != 1.0 {
		t.Errorf("expected centered left gain 1.0, got %f", g)
	}
	if g := ChannelBalanceGain(2, 1, 0); g != 1.0 {
		t.Errorf("expected centered right gain 1.0, got %f", g)
	}
}

func TestChannelBalanceGainHardLeft(t *testing.T) {
	if g := ChannelBalanceGain(2, 0, -1); g != 1.0 {
		t.Errorf("expected hard-left left-channel gain 1.0, got %f", g)
	}
	if g := ChannelBalanceGain(2, 1, -1); g != 0.0 {
		t.Errorf("expected hard-left right-channel gain 0.0, got %f", g)
	}
}

func TestChannelBalanceGainNonStereoIsUnity(t *testing.T) {
	if g := ChannelBalanceGain(1, 0, 1); g != 1.0 {
		t.Errorf("expected mono to ignore balance, got %f", g)
	}
	if g := ChannelBalanceGain(4, 2, 1); g != 1.0 {
		t.Errorf("expected non-stereo channel count to ignore balance, got %f", g)
	}
}

func TestOutputMeterDBSilenceFloor(t *testing.T) {
	db := OutputMeterDB([]float64{0}, 1.0)
	if db[0] != -90.0 {
		t.Errorf("expected silence to floor at -90dB, got %f", db[0])
	}
}

func TestOutputMeterDBFullScale(t *testing.T) {
	db := OutputMeterDB([]float64{1.0}, 1.0)
	if db[0] != 0.0 {
		t.Errorf("expected full-scale peak to read 0dB, got %f", db[0])
	}
}

func TestPlaybackPrefillFramesSyncMode(t *testing.T) {
	if got := PlaybackPrefillFrames(128, 2, true); got != 256 {
		t.Errorf("expected 2 periods * 128 = 256, got %d", got)
	}
}

func TestPlaybackPrefillFramesNonSyncAddsPeriod(t *testing.T) {
	if got := PlaybackPrefillFrames(128, 2, false); got != 384 {
		t.Errorf("expected sync-mode-off to add one extra period, got %d", got)
	}
}

func TestPlaybackPrefillFramesMinimumOnePeriod(t *testing.T) {
	if got := PlaybackPrefillFrames(128, 0, true); got != 128 {
		t.Errorf("expected nperiods<1 to clamp to 1 period, got %d", got)
	}
}

func TestLatencyRangesSyncMode(t *testing.T) {
	in, out := LatencyRanges(128, 1, true, 0, 0)
	if in.Min != 64 {
		t.Errorf("expected input latency 64, got %d", in.Min)
	}
	if out.Min != 64+128 {
		t.Errorf("expected output latency 192, got %d", out.Min)
	}
}

func TestLatencyRangesNonSyncAddsPeriod(t *testing.T) {
	_, out := LatencyRanges(128, 1, false, 0, 0)
	if out.Min != 64+128+128 {
		t.Errorf("expected non-sync output latency to add one extra period, got %d", out.Min)
	}
}
