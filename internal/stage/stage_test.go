package stage

import "testing"

func TestOrderMatchesExecutionSequence(t *testing.T) {
	want := []Name{"verify", "unzip", "confirm", "download", "post_steps", "recompress"}
	if len(Order) != len(want) {
		t.Fatalf("unexpected stage count %d", len(Order))
	}
	for i := range want {
		if Order[i] != want[i] {
			t.Fatalf("stage %d = %q, want %q", i, Order[i], want[i])
		}
	}
}

func TestTransfers(t *testing.T) {
	for _, name := range []Name{Unzip, Download, Recompress} {
		if !name.Transfers() {
			t.Fatalf("expected %s to transfer bytes", name)
		}
	}
	for _, name := range []Name{Verify, Confirm, PostSteps} {
		if name.Transfers() {
			t.Fatalf("expected %s not to transfer bytes", name)
		}
	}
}

func TestHealthConstructors(t *testing.T) {
	if h := Healthy("store"); !h.Ready || h.Detail != "" {
		t.Fatalf("unexpected healthy record %+v", h)
	}
	if h := Unhealthy("store", "locked"); h.Ready || h.Detail != "locked" {
		t.Fatalf("unexpected unhealthy record %+v", h)
	}
}

func TestHealthDetailAndAllReady(t *testing.T) {
	h := Healthy("netclass").WithDetail("metered")
	if !h.Ready || h.Detail != "metered" {
		t.Fatalf("unexpected record %+v", h)
	}
	if !AllReady(nil) {
		t.Fatal("empty set should be ready")
	}
	if AllReady([]Health{h, Unhealthy("store", "low space")}) {
		t.Fatal("expected an unready record to fail the set")
	}
}
