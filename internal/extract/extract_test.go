package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"fpsync/internal/device"
)

func TestExtractAcceptsPairWithConfidence(t *testing.T) {
	got := Extract(device.SourceFinding{
		Source:  device.SourceIssueTracker,
		RawText: "Add support for TS0601 _TZE200_cwbvmsar thermostat",
	})
	want := &device.IdentifierPair{ManufacturerToken: "_TZE200_cwbvmsar", ProductToken: "TS0601"}
	if diff := cmp.Diff(want, got.ExtractedPair); diff != "" {
		t.Fatalf("pair mismatch (-want +got):\n%s", diff)
	}
	if got.ConfidenceScore != 55 {
		t.Fatalf("expected confidence 55, got %d", got.ConfidenceScore)
	}
}

func TestExtractRejectsGenericProductAlone(t *testing.T) {
	got := Extract(device.SourceFinding{RawText: "New TS0601 support needed"})
	if got.ExtractedPair != nil || got.ConfidenceScore != 0 {
		t.Fatalf("expected silent rejection, got %+v score %d", got.ExtractedPair, got.ConfidenceScore)
	}
}

func TestExtractRejectsManufacturerAlone(t *testing.T) {
	got := Extract(device.SourceFinding{RawText: "fingerprint _TZ3000_gjnozsaz, model unknown"})
	if got.Accepted() {
		t.Fatalf("expected no candidate, got %+v", got.ExtractedPair)
	}
}

func TestExtractMetadataBonus(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"_TZ3000_gjnozsaz TS0012 capabilities onoff", 75},
		{"_TZE200_cwbvmsar TS0601 reports DP:2 for setpoint", 75},
		{"_TZ3000_gjnozsaz TS0012 uses cluster 0x0006", 75},
		{"_TZ3000_gjnozsaz TS0012 dimmer", 55},
	}
	for _, tt := range tests {
		if got := Extract(device.SourceFinding{RawText: tt.text}).ConfidenceScore; got != tt.want {
			t.Errorf("Extract(%q) confidence = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestExtractPairsFirstManufacturerWithNearestProduct(t *testing.T) {
	text := "TS0001 is old. New: _TZ3000_aaaaaaaa TS0002 and _TZ3000_bbbbbbbb TS0003"
	got := Extract(device.SourceFinding{RawText: text})
	want := &device.IdentifierPair{ManufacturerToken: "_TZ3000_aaaaaaaa", ProductToken: "TS0002"}
	if diff := cmp.Diff(want, got.ExtractedPair); diff != "" {
		t.Fatalf("pair mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractNearestTieGoesToEarlierProduct(t *testing.T) {
	got := Extract(device.SourceFinding{RawText: "TS0011 _TZ3000_aaaaaaaa TS0012"})
	if got.ExtractedPair == nil || got.ExtractedPair.ProductToken != "TS0011" {
		t.Fatalf("expected tie to pick TS0011, got %+v", got.ExtractedPair)
	}
}

func TestExtractAllEmitsOnePerManufacturer(t *testing.T) {
	text := "_TZ3000_aaaaaaaa TS0002\n_TZ3000_bbbbbbbb TS0003\n_TZ3000_aaaaaaaa again"
	got := ExtractAll(device.SourceFinding{Source: device.SourceWeb, OriginID: "page", RawText: text})
	var pairs []string
	for _, f := range got {
		pairs = append(pairs, f.ExtractedPair.String())
		if f.OriginID != "page" || f.Source != device.SourceWeb {
			t.Fatalf("expected provenance preserved, got %+v", f)
		}
	}
	want := []string{"_TZ3000_aaaaaaaa/TS0002", "_TZ3000_bbbbbbbb/TS0003"}
	if diff := cmp.Diff(want, pairs); diff != "" {
		t.Fatalf("pairs mismatch (-want +got):\n%s", diff)
	}
	if ExtractAll(device.SourceFinding{RawText: "_TZ3000_aaaaaaaa only"}) != nil {
		t.Fatal("expected nothing without a product token")
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	first := Extract(device.SourceFinding{RawText: "_TZ3000_aaaaaaaa TS0002"})
	second := Extract(first)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("re-extraction changed finding (-first +second):\n%s", diff)
	}
}
