package detect

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentinelfs/sentinelfs/internal/classify"
	"github.com/sentinelfs/sentinelfs/internal/stats"
)

func newDetector(t *testing.T, threshold float64) (*Detector, *stats.Counters) {
	t.Helper()
	c, err := classify.Open()
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	var counters stats.Counters
	return New(c, threshold, &counters), &counters
}

func TestDecide_PlainTextAlwaysAllowed(t *testing.T) {
	d, counters := newDetector(t, 7.5)
	dec := d.Decide([]byte("the quick brown fox jumps over the lazy dog"))
	require.Equal(t, Allow, dec.Verdict)
	require.EqualValues(t, 1, counters.Snapshot().TotalWrites)
	require.EqualValues(t, 0, counters.Snapshot().BlockedWrites)
}

func TestDecide_HighEntropyBlobBlocked(t *testing.T) {
	d, counters := newDetector(t, 7.5)
	buf := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(buf)
	dec := d.Decide(buf)
	require.Equal(t, Block, dec.Verdict)
	require.EqualValues(t, 1, counters.Snapshot().BlockedWrites)
}

func TestDecide_HeaderInjectionStillBlocked(t *testing.T) {
	d, _ := newDetector(t, 7.5)
	buf := append([]byte("PK\x03\x04"), make([]byte, 1020)...)
	rand.New(rand.NewSource(2)).Read(buf[4:])
	dec := d.Decide(buf)
	require.Equal(t, classify.LabelUnknown, dec.Label)
	require.Equal(t, Block, dec.Verdict)
}

func TestDecide_ShebangWrapperAllowedRegardlessOfEntropy(t *testing.T) {
	d, _ := newDetector(t, 0.0) // threshold of 0 would block nearly anything non-whitelisted
	buf := append([]byte("#!/bin/sh\n"), make([]byte, 200)...)
	rand.New(rand.NewSource(3)).Read(buf[10:])
	dec := d.Decide(buf)
	require.Equal(t, Allow, dec.Verdict)
}

func TestDecide_EmptyBufferAllowed(t *testing.T) {
	d, _ := newDetector(t, 7.5)
	dec := d.Decide(nil)
	require.Equal(t, Allow, dec.Verdict)
	require.Equal(t, classify.LabelUnknown, dec.Label)
}

func TestDecide_EntropyEqualToThresholdIsAllowed(t *testing.T) {
	// Strict '>' comparison: a buffer whose entropy exactly equals the
	// threshold must be allowed, not blocked.
	d, counters := newDetector(t, 1.0)
	buf := make([]byte, 1024)
	for i := range buf {
		if i%2 == 0 {
			buf[i] = 0x00
		} else {
			buf[i] = 0xFF
		}
	}
	dec := d.Decide(buf)
	require.InDelta(t, 1.0, dec.Entropy, 1e-9)
	require.Equal(t, Allow, dec.Verdict)
	require.EqualValues(t, 0, counters.Snapshot().BlockedWrites)
}

func TestDecide_WhitelistedTextNeverEntropyChecked(t *testing.T) {
	d, _ := newDetector(t, 0.0)
	// A minimal but valid-looking text/plain buffer bypasses entropy via
	// the whitelist regardless of how low the threshold is; exercise the
	// short-circuit path distinctly from the shebang case above.
	dec := d.Decide([]byte("plain ascii content with no special markers"))
	require.Equal(t, Allow, dec.Verdict)
	require.Zero(t, dec.Entropy)
}
