package models

import (
	"encoding/json"
	"strconv"
)

// LabReport is one row of the lab report listing. The upstream lab system
// is inconsistent about the test id key, so every known spelling is accepted.
type LabReport struct {
	PName    string `json:"PName"`
	Gender   string `json:"Gender"`
	TestName string `json:"testName"`
	InDate   string `json:"InDate"`
	Rmks     string `json:"Rmks"`
	TestID   string `json:"TestID"`
}

func (r *LabReport) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = LabReport{
		PName:    stringField(raw, "PName"),
		Gender:   stringField(raw, "Gender"),
		TestName: stringField(raw, "testName", "TestName"),
		InDate:   stringField(raw, "InDate"),
		Rmks:     stringField(raw, "Rmks"),
		TestID:   stringField(raw, "TestID", "testID", "testId", "Test_ID"),
	}
	return nil
}

// ReportRange is the request body of POST /api/fetch-all-reports. Dates are dd-MMM-yyyy.
type ReportRange struct {
	FromDate string `json:"fromDate"`
	ToDate   string `json:"toDate"`
}

// stringField returns the first non-empty value among keys, rendering numbers without exponent.
func stringField(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		switch t := raw[k].(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return ""
}
