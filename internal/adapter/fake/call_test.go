package fake

import "testing"

func TestCallRecorder_Record(t *testing.T) {
	var r CallRecorder

	r.record("Export", "/a", "x")
	r.record("ExportProperties", "/a")
	r.record("Export", "/b", "y")

	if n := len(r.Calls("")); n != 3 {
		t.Fatalf("expected 3 calls, got %d", n)
	}
	exports := r.Calls("Export")
	if len(exports) != 2 {
		t.Fatalf("expected 2 Export calls, got %d", len(exports))
	}
	if exports[1].Args[0] != "/b" {
		t.Errorf("expected second Export arg '/b', got %v", exports[1].Args[0])
	}
	if r.Count("Missing") != 0 {
		t.Errorf("expected 0 Missing calls, got %d", r.Count("Missing"))
	}

	r.Reset()
	if r.Count("") != 0 {
		t.Errorf("expected 0 calls after reset, got %d", r.Count(""))
	}
}
