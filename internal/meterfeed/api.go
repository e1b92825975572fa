package meterfeed

import "encoding/json"

// ApiResponse models the top-level structure of the telemetry API's response.
type ApiResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int    `json:"page"`
		PageSize int    `json:"pageSize"`
		Total    int    `json:"total"`
		Items    []Item `json:"items"`
	} `json:"data"`
}

// Item is one hour-meter reading. Units report the meter either as a number
// or as a formatted string.
type Item struct {
	SerialNumber string          `json:"serialNumber"`
	HourMeter    json.RawMessage `json:"hourMeter"`
}
