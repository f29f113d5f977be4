package history

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"jubi-watch/internal/types"

	"github.com/goccy/go-json"
)

// China Standard Time, the exchange's business day.
var cst = time.FixedZone("CST", 8*3600)

// Row is one displayed holding. Values that could not be computed are null.
type Row struct {
	Name        string   `json:"name"`
	Balance     float64  `json:"balance"`
	Price       float64  `json:"price"`
	CostPrice   *float64 `json:"cost_price"`
	TodayRate   float64  `json:"today_rate"`
	TodayProfit *float64 `json:"today_profit"`
	TotalProfit *float64 `json:"total_profit"`
	ProfitRate  *float64 `json:"profit_rate"`
}

type Entry struct {
	Time        string  `json:"time"`
	PassID      string  `json:"pass_id"`
	Value       float64 `json:"value"`
	TodayProfit float64 `json:"today_profit"`
	TotalProfit float64 `json:"total_profit"`
	Rows        []Row   `json:"rows"`
}

// Recorder appends every rendered valuation to a daily JSON-lines file.
type Recorder struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

func New(dir string) *Recorder {
	return &Recorder{dir: dir, now: time.Now}
}

func (r *Recorder) dailyFilepath(t time.Time) string {
	return filepath.Join(r.dir, t.In(cst).Format("2006-01-02")+".txt")
}

// Record appends one entry for a completed pass.
func (r *Recorder) Record(passID string, rows []types.Row, summary types.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().In(cst)
	e := Entry{
		Time:        now.Format("2006-01-02 15:04:05"),
		PassID:      passID,
		Value:       summary.Value,
		TodayProfit: summary.TodayProfit,
		TotalProfit: summary.TotalProfit,
		Rows:        make([]Row, 0, len(rows)),
	}
	for _, row := range rows {
		e.Rows = append(e.Rows, Row{
			Name:        row.Name,
			Balance:     row.Balance,
			Price:       row.Price,
			CostPrice:   finite(row.CostPrice),
			TodayRate:   row.TodayRate,
			TodayProfit: finite(row.TodayProfit),
			TotalProfit: finite(row.TotalProfit),
			ProfitRate:  finite(row.ProfitRate),
		})
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}

	p := r.dailyFilepath(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, string(b))
	return err
}

func finite(f float64) *float64 {
	if !types.Finite(f) {
		return nil
	}
	return &f
}

// CompressOlder gzips daily files last modified more than retentionDays ago.
func (r *Recorder) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := r.now().AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, d := range entries {
		if d.IsDir() || filepath.Ext(d.Name()) != ".txt" {
			continue
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := compress(filepath.Join(r.dir, d.Name())); err != nil {
			return err
		}
	}
	return nil
}

// compress writes p.gz through a temporary file so a .gz on disk is always
// complete; p is removed only after the rename.
func compress(p string) error {
	gz := p + ".gz"
	// an earlier run already compressed it
	if _, err := os.Stat(gz); err == nil {
		return os.Remove(p)
	}

	in, err := os.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := gz + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to compress %s: %w", p, err)
	}
	gw := gzip.NewWriter(out)
	_, err = io.Copy(gw, in)
	if cerr := gw.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, gz)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to compress %s: %w", p, err)
	}

	in.Close()
	return os.Remove(p)
}
