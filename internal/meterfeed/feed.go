package meterfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"fleet-history-backend/config"
	"fleet-history-backend/internal/fleet"
	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/metrics"
	"fleet-history-backend/internal/parse"
)

// ActorID is recorded as the actor of feed-driven meter updates.
const ActorID = "meter-feed"

// Recorder applies an absolute meter reading to a machine.
type Recorder interface {
	RecordOperatingHoursBySerial(ctx context.Context, actorID, serial string, total float64) (fleet.HoursResult, error)
}

// Summary counts the outcomes of one poll cycle.
type Summary struct {
	Fetched   int
	Applied   int
	Unchanged int
	Skipped   int
	Failed    int
	Triggers  int
}

// Service polls the upstream telemetry API and feeds the readings into the
// machines' operating hours.
type Service struct {
	cfg      *config.MeterFeedConfig
	recorder Recorder
	client   *http.Client
}

// NewService creates and initializes a new meter feed service.
func NewService(cfg *config.MeterFeedConfig, recorder Recorder) *Service {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			zap.S().Warnf("Invalid proxy URL %q: %v. Meter feed will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Service{
		cfg:      cfg,
		recorder: recorder,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}
}

// Run polls in a loop until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		zap.S().Infof("Meter feed is disabled. Not starting.")
		return
	}
	zap.S().Infof("Starting meter feed, polling every %s", s.cfg.Interval)

	s.PollOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.S().Infof("Meter feed shutting down.")
			return
		case <-timer.C:
			s.PollOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// PollOnce fetches every page of readings and applies them.
func (s *Service) PollOnce(ctx context.Context) Summary {
	var summary Summary

	var items []Item
	total := 1
	pageSize := s.cfg.Request.PageSize
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			zap.S().Errorf("Error fetching meter page %d: %v", page, err)
			break
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		items = append(items, resp.Data.Items...)
		zap.S().Debugf("Fetched meter page %d, %d/%d readings so far", page, len(items), total)
	}
	summary.Fetched = len(items)

	readings := s.latestReadings(items, &summary)
	for serial, hours := range readings {
		res, err := s.recorder.RecordOperatingHoursBySerial(ctx, ActorID, serial, hours)
		switch {
		case err == nil && res.Delta == 0:
			summary.Unchanged++
			metrics.MeterFeedReadings.WithLabelValues("unchanged").Inc()
		case err == nil:
			summary.Applied++
			summary.Triggers += len(res.Triggers)
			metrics.MeterFeedReadings.WithLabelValues("applied").Inc()
		case machine.IsNotFound(err):
			summary.Skipped++
			metrics.MeterFeedReadings.WithLabelValues("unknown_machine").Inc()
			zap.S().Debugf("Meter reading for unknown serial %s skipped", serial)
		case machine.IsValidation(err):
			summary.Skipped++
			metrics.MeterFeedReadings.WithLabelValues("rejected").Inc()
			zap.S().Warnf("Meter reading %.2f for %s rejected: %v", hours, serial, err)
		default:
			summary.Failed++
			metrics.MeterFeedReadings.WithLabelValues("error").Inc()
			zap.S().Errorf("Failed to record meter reading for %s: %v", serial, err)
		}
	}

	zap.S().Infof("Meter feed cycle finished: %d fetched, %d applied, %d unchanged, %d skipped, %d failed, %d alarms fired",
		summary.Fetched, summary.Applied, summary.Unchanged, summary.Skipped, summary.Failed, summary.Triggers)
	return summary
}

// latestReadings parses the items and keeps the highest reading per machine.
func (s *Service) latestReadings(items []Item, summary *Summary) map[string]float64 {
	readings := make(map[string]float64, len(items))
	for _, item := range items {
		serial := parse.SerialNumber(item.SerialNumber)
		if serial == "" {
			summary.Skipped++
			metrics.MeterFeedReadings.WithLabelValues("invalid").Inc()
			continue
		}
		hours, err := parse.HourMeter(string(item.HourMeter))
		if err != nil {
			summary.Skipped++
			metrics.MeterFeedReadings.WithLabelValues("invalid").Inc()
			zap.S().Warnf("Could not parse hour meter of %s: %v", serial, err)
			continue
		}
		if prev, ok := readings[serial]; !ok || hours > prev {
			readings[serial] = hours
		}
	}
	return readings
}

// fetchPage fetches a single page of readings from the telemetry API.
func (s *Service) fetchPage(ctx context.Context, page int) (*ApiResponse, error) {
	payload := make(map[string]any)
	for k, v := range s.cfg.Request.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.Request.PageSize

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Request.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range s.cfg.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp ApiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api response: %w", err)
	}

	if apiResp.Code != 0 {
		return nil, fmt.Errorf("API returned non-zero application code: %d", apiResp.Code)
	}

	return &apiResp, nil
}
