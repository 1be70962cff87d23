package registry

import "testing"

func TestServiceKey(t *testing.T) {
	if got := ServiceKey("medkit-worker", "w-1"); got != "/services/medkit-worker/w-1" {
		t.Fatalf("key = %s", got)
	}
}
