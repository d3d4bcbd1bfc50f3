package merge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"fpsync/internal/device"
	"fpsync/internal/sources"
)

type memorySaver struct {
	saved map[string]*device.DeviceRecord
	fail  map[string]error
	calls int
}

func newMemorySaver() *memorySaver {
	return &memorySaver{saved: map[string]*device.DeviceRecord{}, fail: map[string]error{}}
}

func (m *memorySaver) Save(record *device.DeviceRecord) error {
	m.calls++
	if err := m.fail[record.ID]; err != nil {
		return err
	}
	m.saved[record.ID] = record.Clone()
	return nil
}

func newRecord(id string, category device.Category, manufacturers, products []string) *device.DeviceRecord {
	return &device.DeviceRecord{
		ID:                 id,
		Category:           category,
		ManufacturerTokens: device.NewTokenSet(manufacturers...),
		ProductTokens:      device.NewTokenSet(products...),
	}
}

func webResult(texts ...string) sources.Result {
	res := sources.Result{Source: device.SourceWeb}
	for i, text := range texts {
		res.Findings = append(res.Findings, device.SourceFinding{
			Source:   device.SourceWeb,
			OriginID: fmt.Sprintf("https://example.test/page#%d", i),
			RawText:  text,
		})
	}
	return res
}

func historyResult(recordID string, texts ...string) sources.Result {
	res := sources.Result{Source: device.SourceHistory}
	for i, text := range texts {
		res.Findings = append(res.Findings, device.SourceFinding{
			Source:   device.SourceHistory,
			OriginID: fmt.Sprintf("abc1234:%s/driver.json#%d", recordID, i),
			RecordID: recordID,
			RawText:  text,
		})
	}
	return res
}

func manufacturerToken(i int) string {
	return fmt.Sprintf("_TZ3000_%08d", i)
}

func TestMergeCapDefersRemainderToNextRun(t *testing.T) {
	rec := newRecord("wall_switch_1gang", device.CategoryLighting, []string{"_TZ3000_aaaaaaaa"}, []string{"TS0001"})
	texts := make([]string, 0, 80)
	for i := range 80 {
		texts = append(texts, manufacturerToken(i)+" TS0001")
	}
	results := []sources.Result{webResult(texts...)}
	saver := newMemorySaver()
	engine := New(saver, Options{Cap: 50}, nil)

	first := engine.Merge(context.Background(), []*device.DeviceRecord{rec}, results)
	rr, _ := first.Record(rec.ID)
	if rr.Added != 50 || rr.AcceptedPairs != 50 || rr.Deferred != 30 {
		t.Fatalf("first run = %+v, want 50 added and 30 deferred", rr)
	}
	if got := rec.ManufacturerTokens.Len(); got != 51 {
		t.Fatalf("manufacturer tokens after first run = %d, want 51", got)
	}

	second := engine.Merge(context.Background(), []*device.DeviceRecord{rec}, results)
	rr, _ = second.Record(rec.ID)
	if rr.Added != 30 || rr.Duplicates != 50 || rr.Deferred != 0 {
		t.Fatalf("second run = %+v, want 30 added and 50 duplicates", rr)
	}

	third := engine.Merge(context.Background(), []*device.DeviceRecord{rec}, results)
	rr, _ = third.Record(rec.ID)
	if rr.Changed || rr.Added != 0 {
		t.Fatalf("third run changed the record: %+v", rr)
	}
	if saver.calls != 2 {
		t.Fatalf("saves = %d, want 2", saver.calls)
	}
}

func TestMergeNeverRemovesTokens(t *testing.T) {
	before := newRecord("smart_plug", device.CategoryPower,
		[]string{"_TZ3000_aaaaaaaa", "_TZ3000_bbbbbbbb"}, []string{"TS011F", "TS0121"})
	rec := before.Clone()
	results := []sources.Result{
		webResult("_TZ3000_cccccccc TS011F", "no identifiers here", "_TZ3000_aaaaaaaa TS0121"),
	}
	New(newMemorySaver(), Options{}, nil).Merge(context.Background(), []*device.DeviceRecord{rec}, results)

	if !rec.ManufacturerTokens.ContainsAll(before.ManufacturerTokens) || !rec.ProductTokens.ContainsAll(before.ProductTokens) {
		t.Fatalf("tokens were dropped: before %v/%v after %v/%v",
			before.ManufacturerTokens.Values(), before.ProductTokens.Values(),
			rec.ManufacturerTokens.Values(), rec.ProductTokens.Values())
	}
	if !rec.ManufacturerTokens.Has("_TZ3000_cccccccc") {
		t.Fatalf("new token missing: %v", rec.ManufacturerTokens.Values())
	}
}

func TestMergeHistoryOutranksWebUnderCap(t *testing.T) {
	rec := newRecord("wall_switch_2gang", device.CategoryLighting, []string{"_TZ3000_aaaaaaaa"}, []string{"TS0002"})
	results := []sources.Result{
		webResult("_TZ3000_wwwwwwww TS0002"),
		historyResult(rec.ID, "_TZ3000_hhhhhhhh TS0002"),
	}
	report := New(newMemorySaver(), Options{Cap: 1}, nil).Merge(context.Background(), []*device.DeviceRecord{rec}, results)

	if !rec.ManufacturerTokens.Has("_TZ3000_hhhhhhhh") {
		t.Fatalf("history candidate not applied: %v", rec.ManufacturerTokens.Values())
	}
	if rec.ManufacturerTokens.Has("_TZ3000_wwwwwwww") {
		t.Fatalf("web candidate applied despite cap")
	}
	rr, _ := report.Record(rec.ID)
	if rr.Deferred != 1 {
		t.Fatalf("deferred = %d, want 1", rr.Deferred)
	}
}

func TestMergeCountsDuplicatesAndInvalid(t *testing.T) {
	rec := newRecord("smart_plug", device.CategoryPower, []string{"_TZ3000_aaaaaaaa"}, []string{"TS011F"})
	results := []sources.Result{
		historyResult(rec.ID,
			"_TZ3000_aaaaaaaa TS011F",
			"_TZ3000_bbbbbbbb TS011F",
			"_TZ3000_bbbbbbbb TS011F",
			"TS011F only",
		),
	}
	report := New(newMemorySaver(), Options{}, nil).Merge(context.Background(), []*device.DeviceRecord{rec}, results)
	got, _ := report.Record(rec.ID)
	want := RecordReport{
		ID:            rec.ID,
		Existing:      2,
		Added:         1,
		AcceptedPairs: 1,
		Duplicates:    2,
		Invalid:       1,
		Changed:       true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record report mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeRoutesByManufacturerThenCategory(t *testing.T) {
	plugIndoor := newRecord("smart_plug_indoor", device.CategoryPower, []string{"_TZE200_iiiiiiii"}, []string{"TS0601"})
	plugOutdoor := newRecord("smart_plug_outdoor", device.CategoryPower, []string{"_TZE200_oooooooo"}, []string{"TS0601"})
	curtain := newRecord("curtain_motor", device.CategoryCoverings, []string{"_TZE200_cccccccc"}, []string{"TS0601"})
	records := []*device.DeviceRecord{curtain, plugIndoor, plugOutdoor}

	results := []sources.Result{webResult(
		"_TZE200_cccccccc TS0601 with _TZE200_kkkkkkkk nearby",
		"_TZE200_pppppppp TS0601 outdoor smart plug energy meter",
		"_TZE200_rrrrrrrr TS0601 roller blind motor",
		"_TZE200_zzzzzzzz TS0601",
	)}
	report := New(newMemorySaver(), Options{}, nil).Merge(context.Background(), records, results)

	if !plugOutdoor.ManufacturerTokens.Has("_TZE200_pppppppp") {
		t.Fatalf("plug candidate not routed to outdoor plug: %v", plugOutdoor.ManufacturerTokens.Values())
	}
	if !curtain.ManufacturerTokens.Has("_TZE200_rrrrrrrr") {
		t.Fatalf("blind candidate not routed to curtain: %v", curtain.ManufacturerTokens.Values())
	}
	if plugIndoor.ManufacturerTokens.Len() != 1 {
		t.Fatalf("indoor plug changed: %v", plugIndoor.ManufacturerTokens.Values())
	}
	if report.Totals.Unroutable != 2 {
		t.Fatalf("unroutable = %d, want 2", report.Totals.Unroutable)
	}
}

func TestMergeWriteFailureContinues(t *testing.T) {
	bad := newRecord("bad_plug", device.CategoryPower, nil, []string{"TS011F"})
	good := newRecord("good_switch", device.CategoryLighting, nil, []string{"TS0003"})
	saver := newMemorySaver()
	saver.fail[bad.ID] = errors.New("disk full")

	results := []sources.Result{
		historyResult(bad.ID, "_TZ3000_bbbbbbbb TS011F"),
		historyResult(good.ID, "_TZ3000_gggggggg TS0003"),
	}
	report := New(saver, Options{}, nil).Merge(context.Background(), []*device.DeviceRecord{bad, good}, results)

	badReport, _ := report.Record(bad.ID)
	if !badReport.Failed || badReport.Error != "disk full" {
		t.Fatalf("bad record report = %+v", badReport)
	}
	if bad.ManufacturerTokens.Len() != 0 {
		t.Fatalf("failed record mutated in memory: %v", bad.ManufacturerTokens.Values())
	}
	if _, ok := saver.saved[good.ID]; !ok {
		t.Fatal("good record not saved")
	}
	if report.Totals.RecordsFailed != 1 || report.Totals.RecordsChanged != 1 {
		t.Fatalf("totals = %+v", report.Totals)
	}
}

func TestMergeDryRunWritesNothing(t *testing.T) {
	rec := newRecord("wall_switch_3gang", device.CategoryNone, nil, []string{"TS0003"})
	saver := newMemorySaver()
	report := New(saver, Options{DryRun: true}, nil).Merge(context.Background(),
		[]*device.DeviceRecord{rec}, []sources.Result{historyResult(rec.ID, "_TZ3000_dddddddd TS0003")})

	if saver.calls != 0 {
		t.Fatalf("dry run saved %d records", saver.calls)
	}
	if rec.ManufacturerTokens.Len() != 0 || rec.Category != device.CategoryNone {
		t.Fatalf("dry run mutated record: %+v", rec)
	}
	rr, _ := report.Record(rec.ID)
	if rr.Added != 1 || rr.CategoryAssigned != device.CategoryLighting || !report.DryRun {
		t.Fatalf("dry run report = %+v", rr)
	}
}

func TestMergeAssignsMissingCategory(t *testing.T) {
	rec := newRecord("radar_sensor", device.CategoryNone, []string{"_TZE200_aaaaaaaa"}, []string{"TS0601"})
	saver := newMemorySaver()
	report := New(saver, Options{}, nil).Merge(context.Background(), []*device.DeviceRecord{rec}, nil)

	if rec.Category != device.CategoryMotion {
		t.Fatalf("category = %q, want motion", rec.Category)
	}
	if report.Totals.CategoriesAssigned != 1 || saver.calls != 1 {
		t.Fatalf("totals = %+v saves = %d", report.Totals, saver.calls)
	}
}

func TestMergeReverifyReportsWithoutOverwriting(t *testing.T) {
	rec := newRecord("smoke_detector", device.CategoryLighting, []string{"_TZE200_aaaaaaaa"}, []string{"TS0601"})
	saver := newMemorySaver()
	report := New(saver, Options{Reverify: true}, nil).Merge(context.Background(), []*device.DeviceRecord{rec}, nil)

	rr, _ := report.Record(rec.ID)
	if rr.CategorySuggested != device.CategorySafety {
		t.Fatalf("suggested = %q, want safety", rr.CategorySuggested)
	}
	if rec.Category != device.CategoryLighting || saver.calls != 0 {
		t.Fatalf("reverify overwrote category or saved: %q calls=%d", rec.Category, saver.calls)
	}
}

func TestMergeReportsSourceFlags(t *testing.T) {
	failed := sources.Result{Source: device.SourceIssueTracker, Err: errors.New("issue tracker unavailable")}
	report := New(newMemorySaver(), Options{}, nil).Merge(context.Background(), nil,
		[]sources.Result{webResult("_TZ3000_aaaaaaaa TS0001"), failed})

	if report.SourcesOK() {
		t.Fatal("SourcesOK = true with a failed source")
	}
	want := []SourceReport{
		{Source: device.SourceWeb, OK: true, Findings: 1, Candidates: 1},
		{Source: device.SourceIssueTracker, OK: false, Error: "issue tracker unavailable"},
	}
	if diff := cmp.Diff(want, report.Sources); diff != "" {
		t.Fatalf("sources mismatch (-want +got):\n%s", diff)
	}
}
