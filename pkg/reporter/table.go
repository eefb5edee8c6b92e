package reporter

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"k8s.io/apimachinery/pkg/api/resource"
)

// GenerateTable prints an aligned summary meant for a terminal.
func GenerateTable(report *Report, writer io.Writer) error {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "NAMESPACE\tCONTROLLER\tCONTAINER\tCPU REQ\tCPU REC\tCPU LIM REC\tMEM REQ\tMEM REC\tCPU UTIL\tMEM UTIL\tPRIORITY")
	for _, rec := range report.Recommendations {
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\t%s\t%s\t%s\t%s\t%.2f\t%.2f\t%.2f\n",
			rec.Namespace,
			rec.ControllerType, rec.ControllerName,
			rec.ContainerName,
			millicores(rec.CPURequestedMCores),
			millicores(rec.CPURequestedRecommendation),
			millicores(rec.CPULimitRecommendation),
			mebibytes(rec.MemoryRequestedMiB),
			mebibytes(rec.MemoryRequestedRecommendation),
			rec.CPURequestUtilization,
			rec.MemoryRequestUtilization,
			rec.Priority,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(writer, "\n%d containers, %d without requests\n", report.ContainerCount, report.UnsizedCount)
	return err
}

func millicores(v float64) string {
	return resource.NewMilliQuantity(int64(math.Round(v)), resource.DecimalSI).String()
}

func mebibytes(v float64) string {
	return resource.NewQuantity(int64(math.Round(v*(1<<20))), resource.BinarySI).String()
}
