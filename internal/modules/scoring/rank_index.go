package scoring

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/kessanview/kessanview/internal/domain"
)

// RankIndex keeps one target date's score records in stable rank order:
// score descending, company ID ascending as tie-break. Inserting a record
// for a (companyID, period) key that already exists replaces its entry.
// Safe for concurrent use.
type RankIndex struct {
	mu      sync.RWMutex
	date    string
	records []domain.ScoreRecord
}

// NewRankIndex creates an empty index for one target date.
func NewRankIndex(targetDate string) *RankIndex {
	return &RankIndex{date: targetDate}
}

// RebuildRankIndex builds an index from a score listing in one pass.
func RebuildRankIndex(targetDate string, records []domain.ScoreRecord) *RankIndex {
	idx := NewRankIndex(targetDate)
	for i := range records {
		idx.Insert(&records[i])
	}
	return idx
}

// Date returns the target date this index covers.
func (idx *RankIndex) Date() string {
	return idx.date
}

// Insert adds or replaces one record and restores rank order.
func (idx *RankIndex) Insert(record *domain.ScoreRecord) {
	if record == nil {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	replaced := false
	for i := range idx.records {
		if idx.records[i].CompanyID == record.CompanyID && idx.records[i].Period == record.Period {
			idx.records[i] = *record
			replaced = true
			break
		}
	}
	if !replaced {
		idx.records = append(idx.records, *record)
	}

	sort.SliceStable(idx.records, func(i, j int) bool {
		if idx.records[i].Score != idx.records[j].Score {
			return idx.records[i].Score > idx.records[j].Score
		}
		return idx.records[i].CompanyID < idx.records[j].CompanyID
	})
}

// Len returns the number of ranked records.
func (idx *RankIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// TopN returns the first n records in rank order.
func (idx *RankIndex) TopN(n int) []domain.ScoreRecord {
	return idx.Query(0, 0, n)
}

// Query returns records with score >= minScore in rank order, applying
// offset and limit. A limit of zero or less means unlimited.
func (idx *RankIndex) Query(minScore, offset, limit int) []domain.ScoreRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []domain.ScoreRecord
	skipped := 0
	for i := range idx.records {
		if idx.records[i].Score < minScore {
			// Rank order means everything after is below threshold too.
			break
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, idx.records[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Distribution summarizes the score population of the index, for the
// dashboard's date overview.
type Distribution struct {
	Count   int     `json:"count"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Max     int     `json:"max"`
	Median  float64 `json:"median"`
	Notable int     `json:"notable"` // records in the notable band
}

// Distribution computes summary statistics over the current records.
func (idx *RankIndex) Distribution() Distribution {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	d := Distribution{Count: len(idx.records)}
	if d.Count == 0 {
		return d
	}

	scores := make([]float64, 0, len(idx.records))
	// Records are score-descending; quantile wants ascending.
	for i := len(idx.records) - 1; i >= 0; i-- {
		scores = append(scores, float64(idx.records[i].Score))
	}

	d.Mean, d.StdDev = stat.MeanStdDev(scores, nil)
	if d.Count == 1 {
		d.StdDev = 0
	}
	d.Median = stat.Quantile(0.5, stat.Empirical, scores, nil)
	d.Max = idx.records[0].Score

	for i := range idx.records {
		if idx.records[i].Category == domain.CategoryNotable {
			d.Notable++
		}
	}
	return d
}
