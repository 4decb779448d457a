package storage

import (
	"strconv"
	"strings"

	"github.com/nvr-ai/go-meter/common"
	"github.com/nvr-ai/go-meter/models/postprocess"
)

const reportSeparator = "-------------------------------------------"

// StageReport is one section of the detection report.
type StageReport struct {
	Name string
	// Batch is absent when the stage was skipped; the section then reads "none".
	Batch common.Optional[postprocess.Batch]
}

// FormatReport renders the human-readable detection report.
//
// Arguments:
//   - environment: A single line identifying the machine.
//   - stages: The sections, in pipeline order.
//
// Returns:
//   - string: The report text, newline terminated.
//
// @example
//
//	text := FormatReport(sysinfo.Describe(), []StageReport{
//	    {Name: "CounterScreen", Batch: common.Some(regionBatch)},
//	    {Name: "Digits", Batch: common.None[postprocess.Batch]()},
//	})
func FormatReport(environment string, stages []StageReport) string {
	var sb strings.Builder
	sb.WriteString(environment)
	sb.WriteByte('\n')

	for i, stage := range stages {
		sb.WriteString("Detection stage #")
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString(": ")
		sb.WriteString(stage.Name)
		sb.WriteByte('\n')

		if batch, ok := stage.Batch.Get(); ok {
			sb.WriteString("Duration (ms): ")
			sb.WriteString(strconv.FormatInt(batch.ElapsedMs(), 10))
			sb.WriteByte('\n')
			for _, d := range batch.Detections {
				sb.WriteString("classId: ")
				sb.WriteString(strconv.Itoa(d.ClassID))
				sb.WriteString("  classScore: ")
				sb.WriteString(strconv.FormatFloat(float64(d.Score), 'f', -1, 32))
				sb.WriteString("  box: ")
				sb.WriteString(d.Box.String())
				sb.WriteByte('\n')
			}
		} else {
			sb.WriteString("none\n")
		}

		sb.WriteString(reportSeparator)
		sb.WriteByte('\n')
	}
	return sb.String()
}
