package protocol

import "testing"

func TestIsKnownCode_AcceptsEveryRejectCode(t *testing.T) {
	for code := range knownCodes {
		if !IsKnownCode(code) {
			t.Fatalf("%q not known", code)
		}
	}
	if !IsKnownCode("") {
		t.Fatalf("empty code is the accepted case")
	}
	for _, c := range []string{"E_NOT_DEFINED", "e_bad_request", "BAD_REQUEST"} {
		if IsKnownCode(c) {
			t.Fatalf("unexpected known code %q", c)
		}
	}
}
