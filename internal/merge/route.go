package merge

import (
	"fpsync/internal/classify"
	"fpsync/internal/device"
	"fpsync/internal/textutil"
)

// router sends candidates to records using the corpus as it was at the
// start of the run.
type router struct {
	byID           map[string]int
	byManufacturer map[string]int
	byProduct      map[string][]int
	categories     []device.Category
	fingerprints   []*textutil.Fingerprint
	idf            map[string]float64
}

func newRouter(records []*device.DeviceRecord) *router {
	r := &router{
		byID:           make(map[string]int, len(records)),
		byManufacturer: make(map[string]int),
		byProduct:      make(map[string][]int),
		categories:     make([]device.Category, len(records)),
		fingerprints:   make([]*textutil.Fingerprint, len(records)),
	}
	corpus := textutil.NewCorpus()
	for i, rec := range records {
		r.byID[rec.ID] = i
		for _, token := range rec.ManufacturerTokens.Values() {
			if _, taken := r.byManufacturer[token]; !taken {
				r.byManufacturer[token] = i
			}
		}
		for _, token := range rec.ProductTokens.Values() {
			r.byProduct[token] = append(r.byProduct[token], i)
		}
		r.categories[i] = rec.Category
		if r.categories[i] == device.CategoryNone {
			r.categories[i] = classify.Classify(rec)
		}
		r.fingerprints[i] = textutil.NewFingerprint(rec.ID)
		corpus.Add(r.fingerprints[i])
	}
	r.idf = corpus.IDF()
	for i, fp := range r.fingerprints {
		r.fingerprints[i] = fp.WithIDF(r.idf)
	}
	return r
}

// route returns the record index for a candidate, or -1.
func (r *router) route(finding device.SourceFinding, pair device.IdentifierPair, records []*device.DeviceRecord) int {
	if finding.Source == device.SourceHistory {
		if idx, ok := r.byID[finding.RecordID]; ok {
			return idx
		}
		return -1
	}
	if idx, ok := r.byManufacturer[pair.ManufacturerToken]; ok {
		return idx
	}
	holders := r.byProduct[pair.ProductToken]
	if len(holders) == 0 {
		return -1
	}

	want := classify.ClassifyText(finding.RawText)
	text := textutil.NewFingerprint(finding.RawText).WithIDF(r.idf)
	best, bestScore := -1, -1.0
	for _, idx := range holders {
		if r.categories[idx] != want {
			continue
		}
		score := r.fingerprints[idx].Similarity(text)
		if score > bestScore || (score == bestScore && records[idx].ID < records[best].ID) {
			best, bestScore = idx, score
		}
	}
	if best >= 0 {
		return best
	}
	if len(holders) == 1 {
		return holders[0]
	}
	return -1
}
