// internal/infra/oura/client.go
package oura

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"health_notification_bot/internal/domain/health"
	"health_notification_bot/internal/infra/retry"
)

const DefaultBaseURL = "https://api.ouraring.com/v2/usercollection"

// Client implements health.Client against the Oura v2 API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	runner     *retry.Runner
	loc        *time.Location
	logger     *logrus.Entry
}

func NewClient(baseURL, token string, timeout time.Duration, runner *retry.Runner, loc *time.Location, logger *logrus.Entry) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		runner:     runner,
		loc:        loc,
		logger:     logger,
	}
}

// FetchDay returns the record for one day, or health.ErrNotFound when the provider has nothing yet.
func (c *Client) FetchDay(ctx context.Context, day time.Time) (*health.Record, error) {
	records, err := c.collect(ctx, day, day)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", health.ErrNotFound, day.Format(health.DateLayout))
	}
	return &records[0], nil
}

// FetchRange returns records for [start, end] in ascending order; days without data are omitted.
func (c *Client) FetchRange(ctx context.Context, start, end time.Time) ([]health.Record, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", health.ErrInvalidRequest,
			end.Format(health.DateLayout), start.Format(health.DateLayout))
	}
	return c.collect(ctx, start, end)
}

func (c *Client) collect(ctx context.Context, start, end time.Time) ([]health.Record, error) {
	var (
		sleeps    []dailySleep
		readiness []dailyReadiness
		activity  []dailyActivity
		periods   []sleepPeriod
		stress    []dailyStress
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sleeps, err = fetchAll[dailySleep](gctx, c, "daily_sleep", start, end)
		return err
	})
	g.Go(func() (err error) {
		readiness, err = fetchAll[dailyReadiness](gctx, c, "daily_readiness", start, end)
		return err
	})
	g.Go(func() (err error) {
		activity, err = fetchAll[dailyActivity](gctx, c, "daily_activity", start, end)
		return err
	})
	g.Go(func() (err error) {
		// Sleep periods are keyed by the wake-up day; the night before starts a day earlier.
		periods, err = fetchAll[sleepPeriod](gctx, c, "sleep", start.AddDate(0, 0, -1), end)
		return err
	})
	g.Go(func() error {
		s, err := fetchAll[dailyStress](gctx, c, "daily_stress", start, end)
		if err != nil {
			c.logger.WithError(err).Warn("Stress metric unavailable, continuing without it")
			return nil
		}
		stress = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	inRange := func(day string) bool {
		return day >= start.Format(health.DateLayout) && day <= end.Format(health.DateLayout)
	}
	byDay := make(map[string]*health.Record)
	recordFor := func(day string) *health.Record {
		if !inRange(day) {
			return nil
		}
		r, ok := byDay[day]
		if !ok {
			d, err := time.ParseInLocation(health.DateLayout, day, c.loc)
			if err != nil {
				return nil
			}
			r = &health.Record{Day: d}
			byDay[day] = r
		}
		return r
	}

	for _, s := range sleeps {
		if r := recordFor(s.Day); r != nil {
			r.SleepScore = optional(s.Score)
		}
	}
	for _, s := range readiness {
		if r := recordFor(s.Day); r != nil {
			r.ReadinessScore = optional(s.Score)
			r.TemperatureDeviation = optional(s.TemperatureDeviation)
		}
	}
	for _, a := range activity {
		if r := recordFor(a.Day); r != nil {
			r.ActivityScore = optional(a.Score)
			r.Steps = optional(a.Steps)
			r.ActiveCalories = optional(a.ActiveCalories)
		}
	}
	for day, p := range mainPeriods(periods) {
		if r := recordFor(day); r != nil {
			c.applyPeriod(r, p)
		}
	}

	out := make([]health.Record, 0, len(byDay))
	for _, r := range byDay {
		if !r.HasData() {
			continue
		}
		out = append(out, *r)
	}
	// Stress alone never creates a record.
	stressByDay := make(map[string]dailyStress, len(stress))
	for _, s := range stress {
		stressByDay[s.Day] = s
	}
	for i := range out {
		if s, ok := stressByDay[out[i].DayKey()]; ok {
			out[i].Stress = health.Some(toStress(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// mainPeriods picks one period per day: the long sleep when present, otherwise the longest.
func mainPeriods(periods []sleepPeriod) map[string]sleepPeriod {
	best := make(map[string]sleepPeriod)
	for _, p := range periods {
		cur, ok := best[p.Day]
		switch {
		case !ok:
			best[p.Day] = p
		case cur.Type != longSleep && p.Type == longSleep:
			best[p.Day] = p
		case (cur.Type == longSleep) == (p.Type == longSleep) && seconds(p.TotalSleepDuration) > seconds(cur.TotalSleepDuration):
			best[p.Day] = p
		}
	}
	return best
}

func (c *Client) applyPeriod(r *health.Record, p sleepPeriod) {
	r.BedTime = c.parseTime(p.BedtimeStart)
	r.WakeTime = c.parseTime(p.BedtimeEnd)
	r.TotalSleepMinutes = minutes(p.TotalSleepDuration)
	r.DeepSleepMinutes = minutes(p.DeepSleepDuration)
	r.REMSleepMinutes = minutes(p.RemSleepDuration)
	r.AverageHRV = optional(p.AverageHRV)
	r.LowestHeartRate = optional(p.LowestHeartRate)
}

func (c *Client) parseTime(s *string) sql.NullTime {
	if s == nil || *s == "" {
		return sql.NullTime{}
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		c.logger.WithField("value", *s).Warn("Unparseable timestamp from provider")
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.In(c.loc), Valid: true}
}

func toStress(s dailyStress) health.Stress {
	out := health.Stress{
		HighMinutes:     minutes(s.StressHigh),
		RecoveryMinutes: minutes(s.RecoveryHigh),
	}
	if s.DaySummary != nil {
		out.Summary = *s.DaySummary
	}
	return out
}

// fetchAll follows next_token until the collection is exhausted.
func fetchAll[T any](ctx context.Context, c *Client, endpoint string, start, end time.Time) ([]T, error) {
	var (
		all   []T
		token string
	)
	for {
		query := url.Values{}
		query.Set("start_date", start.Format(health.DateLayout))
		query.Set("end_date", end.Format(health.DateLayout))
		if token != "" {
			query.Set("next_token", token)
		}

		var p page[T]
		if err := c.get(ctx, endpoint, query, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Data...)
		if p.NextToken == nil || *p.NextToken == "" || *p.NextToken == token {
			return all, nil
		}
		token = *p.NextToken
	}
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	logCtx := c.logger.WithField("endpoint", endpoint)
	target := c.baseURL + "/" + endpoint + "?" + query.Encode()

	resp, err := c.runner.DoHTTP(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		mapped := mapError(endpoint, err)
		logCtx.WithError(mapped).Debug("Provider call failed")
		return mapped
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", health.ErrUnavailable, endpoint, err)
	}
	return nil
}

func mapError(endpoint string, err error) error {
	var se *retry.StatusError
	switch {
	case errors.Is(err, retry.ErrRateLimitExhausted):
		return fmt.Errorf("%w: %s: %w", health.ErrRateLimited, endpoint, err)
	case errors.Is(err, retry.ErrAttemptsExhausted):
		return fmt.Errorf("%w: %s: %w", health.ErrUnavailable, endpoint, err)
	case errors.As(err, &se):
		switch se.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s: %w", health.ErrUnauthorized, endpoint, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s: %w", health.ErrNotFound, endpoint, err)
		default:
			return fmt.Errorf("%w: %s: %w", health.ErrInvalidRequest, endpoint, err)
		}
	default:
		return fmt.Errorf("%w: %s: %w", health.ErrUnavailable, endpoint, err)
	}
}

func optional[T any](p *T) sql.Null[T] {
	if p == nil {
		return sql.Null[T]{}
	}
	return health.Some(*p)
}

func minutes(secs *int) sql.Null[int] {
	if secs == nil {
		return sql.Null[int]{}
	}
	return health.Some(*secs / 60)
}

func seconds(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
