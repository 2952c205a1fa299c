package service

import (
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestTOTPVerifierWindow(t *testing.T) {
	t.Parallel()

	v := NewTOTPVerifier(DefaultTOTPOptions())
	at := time.Unix(1_700_000_015, 0)

	tests := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"current step", 0, true},
		{"previous step", -30 * time.Second, true},
		{"two steps back", -60 * time.Second, false},
		{"next step", 30 * time.Second, false},
		{"far future", 10 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := codeAt(t, testSecret, at.Add(tt.offset))
			require.Equal(t, tt.want, v.CheckAt(code, testSecret, at))
		})
	}
}

func TestTOTPVerifierMatchStep(t *testing.T) {
	t.Parallel()

	v := NewTOTPVerifier(DefaultTOTPOptions())
	at := time.Unix(1_700_000_015, 0)
	current := uint64(at.Unix()) / 30

	step, ok := v.MatchStep(codeAt(t, testSecret, at), testSecret, at)
	require.True(t, ok)
	require.Equal(t, current, step)

	step, ok = v.MatchStep(codeAt(t, testSecret, at.Add(-30*time.Second)), testSecret, at)
	require.True(t, ok)
	require.Equal(t, current-1, step)
}

func TestTOTPVerifierZeroSkew(t *testing.T) {
	t.Parallel()

	opts := DefaultTOTPOptions()
	opts.Skew = 0
	v := NewTOTPVerifier(opts)
	at := time.Unix(1_700_000_015, 0)

	require.True(t, v.CheckAt(codeAt(t, testSecret, at), testSecret, at))
	require.False(t, v.CheckAt(codeAt(t, testSecret, at.Add(-30*time.Second)), testSecret, at))
	require.Equal(t, 30*time.Second, v.Window())
}

func TestTOTPVerifierRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	v := NewTOTPVerifier(TOTPOptions{Skew: 1})
	at := time.Unix(1_700_000_015, 0)
	code := codeAt(t, testSecret, at)

	require.False(t, v.CheckAt("", testSecret, at))
	require.False(t, v.CheckAt(code[:5], testSecret, at))
	require.False(t, v.CheckAt(code+"0", testSecret, at))
	require.False(t, v.CheckAt(code, "", at))
	require.False(t, v.CheckAt(code, "not base32 !!", at))
	require.True(t, v.CheckAt(" "+code+" ", testSecret, at))
}

func TestTOTPVerifierDefaults(t *testing.T) {
	t.Parallel()

	v := NewTOTPVerifier(TOTPOptions{})
	require.Equal(t, uint(30), v.Options().Period)
	require.Equal(t, otp.DigitsSix, v.Options().Digits)
	require.Equal(t, otp.AlgorithmSHA1, v.Options().Algorithm)
	require.Equal(t, uint(0), v.Options().Skew)
}

func TestTOTPVerifierEightDigits(t *testing.T) {
	t.Parallel()

	v := NewTOTPVerifier(TOTPOptions{Digits: otp.DigitsEight, Skew: 1})
	at := time.Unix(1_700_000_015, 0)

	want, err := totpCode8(at)
	require.NoError(t, err)
	require.Len(t, want, 8)
	require.True(t, v.CheckAt(want, testSecret, at))
	require.False(t, v.CheckAt(codeAt(t, testSecret, at), testSecret, at))
}

func totpCode8(at time.Time) (string, error) {
	return totp.GenerateCodeCustom(testSecret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsEight,
		Algorithm: otp.AlgorithmSHA1,
	})
}
