package runner

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pagedkv/llamarunner/format"
	"github.com/pagedkv/llamarunner/request"
)

// Metrics accumulates per-run throughput counters, surfaced after a run
// completes via Report.
type Metrics struct {
	TotalRequests    int
	TotalPromptToks  int
	TotalGenToks     int
	TotalPrefillTime time.Duration
	TotalDecodeTime  time.Duration
	TotalTime        time.Duration
}

func (m *Metrics) addRequest(r *request.Request) {
	m.TotalRequests++
	m.TotalPromptToks += r.NumPromptTokens()
	m.TotalGenToks += r.NumGeneratedTokens()
	m.TotalPrefillTime += r.PrefillTime
	m.TotalDecodeTime += r.DecodeTime
}

func (m Metrics) PrefillTokensPerSec() float64 {
	if m.TotalPrefillTime <= 0 {
		return 0
	}
	return float64(m.TotalPromptToks) / m.TotalPrefillTime.Seconds()
}

func (m Metrics) DecodeTokensPerSec() float64 {
	if m.TotalDecodeTime <= 0 {
		return 0
	}
	return float64(m.TotalGenToks) / m.TotalDecodeTime.Seconds()
}

func (m Metrics) OverallTokensPerSec() float64 {
	if m.TotalTime <= 0 {
		return 0
	}
	return float64(m.TotalPromptToks+m.TotalGenToks) / m.TotalTime.Seconds()
}

// Report renders the benchmark summary as a table.
func (m Metrics) Report(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"metric", "value"})
	table.Append([]string{"total requests", fmt.Sprintf("%d", m.TotalRequests)})
	table.Append([]string{"total prompt tokens", fmt.Sprintf("%d", m.TotalPromptToks)})
	table.Append([]string{"total generated tokens", fmt.Sprintf("%d", m.TotalGenToks)})
	table.Append([]string{"prefill time", format.ExactDuration(m.TotalPrefillTime)})
	table.Append([]string{"decode time", format.ExactDuration(m.TotalDecodeTime)})
	table.Append([]string{"total time", format.ExactDuration(m.TotalTime)})
	table.Append([]string{"prefill tok/s", fmt.Sprintf("%.2f", m.PrefillTokensPerSec())})
	table.Append([]string{"decode tok/s", fmt.Sprintf("%.2f", m.DecodeTokensPerSec())})
	table.Append([]string{"overall tok/s", fmt.Sprintf("%.2f", m.OverallTokensPerSec())})
	table.Render()
}

// ReportKVCacheComparison prints standard (contiguous) vs paged KV cache
// memory usage for a completed run, given the model's layer/head/block
// configuration and how many blocks were actually used.
func ReportKVCacheComparison(w io.Writer, numLayers, numKVHeads, headDim, maxSeqLen, blockSize, blocksUsed int) {
	const floatSize = 4
	standardBytes := int64(numLayers) * int64(maxSeqLen) * int64(numKVHeads) * int64(headDim) * floatSize * 2
	pagedTokens := blocksUsed * blockSize
	pagedBytes := int64(numLayers) * int64(pagedTokens) * int64(numKVHeads) * int64(headDim) * floatSize * 2

	savings := standardBytes - pagedBytes
	savingsPct := 0.0
	if standardBytes > 0 {
		savingsPct = float64(savings) / float64(standardBytes) * 100
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"attention mode", "kv cache size", "detail"})
	table.Append([]string{"standard (contiguous)", format.HumanBytes(standardBytes), fmt.Sprintf("reserved for %d seq", maxSeqLen)})
	table.Append([]string{"paged", format.HumanBytes(pagedBytes), fmt.Sprintf("%d blocks (%d token capacity)", blocksUsed, pagedTokens)})
	table.Append([]string{"savings", format.HumanBytes(savings), fmt.Sprintf("%.1f%%", savingsPct)})
	table.Render()
}
