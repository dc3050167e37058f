package client

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/coreperf-io/coreperf/client/errs"
	"github.com/coreperf-io/coreperf/client/logger"
)

const (
	roiReportPattern     = "*_roi_*.json"
	summaryReportPattern = "*summary*.json"
	reportsDir           = "reports"
)

// roiReport holds the totals of a region-of-interest report. Totals missing
// from the report stay nil.
type roiReport struct {
	Cycles       *float64 `json:"cycles"`
	Instructions *float64 `json:"instructions"`
}

// cleanROIReports deletes every ROI report under dir whose cycle and
// instruction totals are both present and zero. Reports that cannot be parsed
// or lack either total are kept.
// It returns the number of reports deleted.
func cleanROIReports(dir string, log logger.Logger) (int, error) {
	removed := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(roiReportPattern, d.Name()); !ok {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var report roiReport
		if err := json.Unmarshal(data, &report); err != nil {
			log.Warnf("Keeping unreadable ROI report %s: %v", path, err)
			return nil
		}
		if report.Cycles == nil || report.Instructions == nil {
			log.Warnf("Keeping ROI report %s without cycles or instructions totals", path)
			return nil
		}
		if *report.Cycles != 0 || *report.Instructions != 0 {
			return nil
		}
		log.Debugf("Removing empty ROI report %s", path)
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, errs.Wrap(errs.Experiment, err, "failed to clean ROI reports")
	}
	return removed, nil
}

// loadSummary decodes the first summary report directly under
// <dir>/reports. It returns nil if there is none.
func loadSummary(dir string) (map[string]interface{}, error) {
	matches, err := filepath.Glob(filepath.Join(dir, reportsDir, summaryReportPattern))
	if err != nil {
		return nil, errs.Wrap(errs.Experiment, err, "failed to find summary report")
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Strings(matches)
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, errs.Wrap(errs.Experiment, err, "failed to read summary report")
	}
	var summary map[string]interface{}
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, errs.Wrapf(errs.Experiment, err, "malformed summary report %s", matches[0])
	}
	return summary, nil
}
