package classify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafe_TextFamily(t *testing.T) {
	require.True(t, Safe(Label("text/plain; charset=utf-8"), []byte("hi")))
}

func TestSafe_ContainerTypes(t *testing.T) {
	for _, lbl := range []Label{LabelPDF, LabelExecutable, LabelSharedLib, LabelShellScript} {
		require.True(t, Safe(lbl, []byte("irrelevant")), "label %s should be safe", lbl)
	}
}

func TestSafe_ShebangOverride(t *testing.T) {
	// Even when the classifier returns an unrelated/unknown label, a literal
	// shebang prefix must still be treated as safe.
	require.True(t, Safe(LabelUnknown, []byte("#!/bin/weird-interpreter\ncompressed-looking-payload")))
}

func TestSafe_ZipIsNeverWhitelisted(t *testing.T) {
	require.False(t, Safe(LabelZip, []byte("PK\x03\x04")))
}

func TestSafe_UnknownRejected(t *testing.T) {
	require.False(t, Safe(LabelUnknown, []byte("random bytes, no shebang")))
}

func TestSafe_TooShortForShebang(t *testing.T) {
	require.False(t, Safe(LabelUnknown, []byte("#")))
}
