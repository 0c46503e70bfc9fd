package batch

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"
)

// workerShare is the fraction of logical cores the pool uses by default,
// leaving room for the OCR and pdftotext child processes.
const workerShare = 0.8

// DefaultWorkers returns 80% of the logical cores, at least one.
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		zap.L().Debug("batch: cpu count unavailable, using runtime", zap.Error(err))
		n = runtime.NumCPU()
	}
	return workersFor(n)
}

func workersFor(cores int) int {
	return max(1, int(float64(cores)*workerShare))
}
