package pipeline

import (
	"fmt"

	"assetflow/internal/asset"
	"assetflow/internal/stage"
)

const bytesPerMiB = 1024 * 1024

// FormatProgress renders a sample as "cur/totalM(index/count)", with the rate
// appended for downloads.
func FormatProgress(name stage.Name, sample asset.Sample, rate float64) string {
	text := fmt.Sprintf("%.2f/%.2fM(%d/%d)",
		float64(sample.CumulativeBytes)/bytesPerMiB,
		float64(sample.TotalBytes)/bytesPerMiB,
		sample.Index, sample.Count,
	)
	if name == stage.Download {
		text += fmt.Sprintf(" %.2fM/S", rate/bytesPerMiB)
	}
	return text
}

// FormatVerify renders verify progress as "index/count".
func FormatVerify(index, count int) string {
	return fmt.Sprintf("%d/%d", index, count)
}
