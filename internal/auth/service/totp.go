package service

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPOptions is the verification window. The zero value is completed by
// NewTOTPVerifier to RFC 6238 defaults: 30 s period, 6 digits, SHA1, one
// step of backward skew.
type TOTPOptions struct {
	Period    uint
	Digits    otp.Digits
	Algorithm otp.Algorithm

	// Skew is how many steps before the current one are still accepted.
	// Future steps are never accepted.
	Skew uint
}

// DefaultTOTPOptions returns the standard authenticator app settings.
func DefaultTOTPOptions() TOTPOptions {
	return TOTPOptions{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
		Skew:      1,
	}
}

// TOTPVerifier checks time-based one-time codes. It holds no state.
type TOTPVerifier struct {
	opts TOTPOptions
	now  func() time.Time
}

// NewTOTPVerifier returns a verifier for opts. A zero Period or Digits falls
// back to the default; Skew is taken as given. The zero Algorithm is SHA1.
func NewTOTPVerifier(opts TOTPOptions) *TOTPVerifier {
	def := DefaultTOTPOptions()
	if opts.Period == 0 {
		opts.Period = def.Period
	}
	if opts.Digits == 0 {
		opts.Digits = def.Digits
	}
	return &TOTPVerifier{opts: opts, now: time.Now}
}

// Options returns the effective verification window.
func (v *TOTPVerifier) Options() TOTPOptions { return v.opts }

// Window is how long a matched code stays acceptable.
func (v *TOTPVerifier) Window() time.Duration {
	return time.Duration(v.opts.Period) * time.Second * time.Duration(v.opts.Skew+1)
}

// Check reports whether code is valid for secret right now.
func (v *TOTPVerifier) Check(code, secret string) bool {
	return v.CheckAt(code, secret, v.now())
}

// CheckAt reports whether code is valid for secret at t.
func (v *TOTPVerifier) CheckAt(code, secret string, t time.Time) bool {
	_, ok := v.MatchStep(code, secret, t)
	return ok
}

// MatchStep returns the counter of the step code matched at t. Every step in
// the window is compared so timing does not reveal which one matched.
func (v *TOTPVerifier) MatchStep(code, secret string, t time.Time) (uint64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != v.opts.Digits.Length() || secret == "" {
		return 0, false
	}

	current := uint64(t.Unix()) / uint64(v.opts.Period)

	var (
		matched uint64
		found   int
	)
	for i := uint64(0); i <= uint64(v.opts.Skew) && i <= current; i++ {
		step := current - i
		want, err := totp.GenerateCodeCustom(secret, v.stepTime(step), totp.ValidateOpts{
			Period:    v.opts.Period,
			Digits:    v.opts.Digits,
			Algorithm: v.opts.Algorithm,
		})
		if err != nil {
			// Malformed secret: nothing can match.
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 && found == 0 {
			matched = step
			found = 1
		}
	}
	return matched, found == 1
}

func (v *TOTPVerifier) stepTime(step uint64) time.Time {
	return time.Unix(int64(step*uint64(v.opts.Period)), 0).UTC()
}
