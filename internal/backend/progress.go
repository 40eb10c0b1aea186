package backend

import (
	"io"
	"math"
)

// ProgressFunc receives upload progress as an integer percentage in [0, 100].
type ProgressFunc func(percent int)

// Percent converts a byte count into round(sent/total*100), clamped to
// [0, 100]. A non-positive total is not computable and yields -1.
func Percent(sent, total int64) int {
	if total <= 0 {
		return -1
	}
	p := int(math.Round(float64(sent) / float64(total) * 100))
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// progressReader reports how much of the request body the transport has
// consumed. It only calls onProgress when the percentage changes.
type progressReader struct {
	r          io.ReadCloser
	total      int64
	sent       int64
	last       int
	onProgress ProgressFunc
}

func newProgressReader(r io.ReadCloser, total int64, fn ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, last: -1, onProgress: fn}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		p.report()
	}
	return n, err
}

func (p *progressReader) Close() error { return p.r.Close() }

func (p *progressReader) report() {
	if p.onProgress == nil {
		return
	}
	pct := Percent(p.sent, p.total)
	if pct < 0 || pct == p.last {
		return
	}
	p.last = pct
	p.onProgress(pct)
}
