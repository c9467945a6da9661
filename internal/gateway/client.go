package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"diagdesk/internal/config"
	"diagdesk/internal/logging"
	"diagdesk/internal/metrics"
	"diagdesk/internal/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError is returned for any response outside the 2xx range.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d", e.StatusCode)
}

// Client calls the clinic backend. Every method is a single request with no
// retry or caching; cancellation comes from ctx.
type Client struct {
	baseURL      string
	labReportURL string
	httpClient   *http.Client
	logger       *zerolog.Logger
}

// New constructs a client for cfg.BaseURL with a traced transport.
func New(cfg config.BackendConfig, logger *zerolog.Logger) *Client {
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	if cfg.TimeoutSeconds > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return NewWithHTTPClient(cfg, httpClient, logger)
}

func NewWithHTTPClient(cfg config.BackendConfig, httpClient *http.Client, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:      cfg.BaseURL,
		labReportURL: cfg.LabReportURL,
		httpClient:   httpClient,
		logger:       logging.Component(logger, "gateway"),
	}
}

func (c *Client) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	body := models.LoginRequest{Username: username, Password: password}
	if err := c.doPost(ctx, "/login", body, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Guests(ctx context.Context, centers []string) ([]models.Guest, error) {
	var resp []models.Guest
	if err := c.doPost(ctx, "/guests", centersBody(centers), &resp, ""); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) SlotBookings(ctx context.Context, guestCode string) ([]models.SlotBooking, error) {
	var wrap struct {
		Data []models.SlotBooking `json:"data"`
	}
	q := url.Values{"guestCode": {guestCode}}
	if err := c.doGet(ctx, "/get-slot-bookings", q, &wrap, ""); err != nil {
		return nil, err
	}
	return wrap.Data, nil
}

func (c *Client) CreateSlotBookings(ctx context.Context, bookings []models.NewSlotBooking) (*models.MessageResponse, error) {
	var resp models.MessageResponse
	if err := c.doPost(ctx, "/slot-bookings", bookings, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) RescheduleBooking(ctx context.Context, req models.RescheduleRequest) (*models.RescheduleResponse, error) {
	var resp models.RescheduleResponse
	if err := c.doPost(ctx, "/reschedule-booking", req, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) BookingDetails(ctx context.Context, guestCode string) (*models.BookingDetails, error) {
	var resp models.BookingDetails
	body := map[string]string{"guest_code": guestCode}
	if err := c.doPost(ctx, "/booking-details-by-guest-code", body, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateBookingStatus asks the backend to refresh booking statuses from its upstream.
func (c *Client) UpdateBookingStatus(ctx context.Context) (*models.MessageResponse, error) {
	var resp models.MessageResponse
	if err := c.doPost(ctx, "/update-booking-status", nil, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Investigations(ctx context.Context, centers []string) (*models.InvestigationPayload, error) {
	var resp models.InvestigationPayload
	if err := c.doPost(ctx, "/investigations", centersBody(centers), &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AvailableSlots lists free slots for a pincode on date (yyyy-MM-dd).
func (c *Client) AvailableSlots(ctx context.Context, pincode, date string) (*models.AvailableSlots, error) {
	var resp models.AvailableSlots
	body := map[string]string{"pincode": pincode, "appointment_date": date}
	if err := c.doPost(ctx, "/get-available-slots", body, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Centers(ctx context.Context) ([]models.Center, error) {
	var resp []models.Center
	if err := c.doGet(ctx, "/centers", nil, &resp, ""); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CenterDetails(ctx context.Context, centerName string) (*models.CenterDetails, error) {
	var resp models.CenterDetails
	q := url.Values{"center_name": {centerName}}
	if err := c.doGet(ctx, "/center-details", q, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GuestItems fetches the billed items for a guest. The backend keys them by
// the guest's phone number passed as the center parameter.
func (c *Client) GuestItems(ctx context.Context, phone string) ([]models.GuestItem, error) {
	var resp []models.GuestItem
	q := url.Values{"center": {phone}}
	if err := c.doGet(ctx, "/items-by-center", q, &resp, ""); err != nil {
		return nil, err
	}
	return resp, nil
}

// LabReports posts the date range to the lab report proxy.
func (c *Client) LabReports(ctx context.Context, rng models.ReportRange, token string) ([]models.LabReport, error) {
	var resp []models.LabReport
	if err := c.doPost(ctx, "/api/fetch-all-reports", rng, &resp, token); err != nil {
		return nil, err
	}
	return resp, nil
}

// Reports is the GET flavour of LabReports.
func (c *Client) Reports(ctx context.Context, rng models.ReportRange, token string) ([]models.LabReport, error) {
	var resp []models.LabReport
	q := url.Values{"fromDate": {rng.FromDate}, "toDate": {rng.ToDate}}
	if err := c.doGet(ctx, "/fetch-all-reports", q, &resp, token); err != nil {
		return nil, err
	}
	return resp, nil
}

// MonthlyBookingsExcel downloads the monthly guest summary workbook.
func (c *Client) MonthlyBookingsExcel(ctx context.Context, month, year int, center string) ([]byte, error) {
	const path = "/monthly-bookings/excel"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, monthlyQuery(month, year, center)), nil)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := c.do(req, path, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Client) MonthlyBookingsURL(month, year int, center string) string {
	return c.endpoint("/monthly-bookings/excel", monthlyQuery(month, year, center))
}

// LabReportURL renders the download link for a lab test.
func (c *Client) LabReportURL(testID string) string {
	return fmt.Sprintf(c.labReportURL, url.QueryEscape(testID))
}

// ReportRangeFor formats an inclusive day range the way the report endpoints expect.
func ReportRangeFor(from, to time.Time) models.ReportRange {
	return models.ReportRange{
		FromDate: from.Format(models.DateLayoutReport),
		ToDate:   to.Format(models.DateLayoutReport),
	}
}

func centersBody(centers []string) map[string][]string {
	if centers == nil {
		centers = []string{}
	}
	return map[string][]string{"centers": centers}
}

func monthlyQuery(month, year int, center string) url.Values {
	return url.Values{
		"month":  {strconv.Itoa(month)},
		"year":   {strconv.Itoa(year)},
		"center": {center},
	}
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) doGet(ctx context.Context, path string, q url.Values, out any, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, q), nil)
	if err != nil {
		return err
	}
	addBearer(req, token)
	return c.do(req, path, out)
}

func (c *Client) doPost(ctx context.Context, path string, body any, out any, token string) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	addBearer(req, token)
	return c.do(req, path, out)
}

// do sends req; out is either a JSON target or an io.Writer for raw bodies.
func (c *Client) do(req *http.Request, path string, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveGateway(path, 0, time.Since(start))
		c.logger.Warn().Err(err).Str("method", req.Method).Str("path", path).Msg("backend request failed")
		return fmt.Errorf("%s %s: %w", req.Method, path, err)
	}
	defer resp.Body.Close()

	metrics.ObserveGateway(path, resp.StatusCode, time.Since(start))
	c.logger.Debug().
		Str("method", req.Method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Method: req.Method, Path: path}
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case io.Writer:
		if _, err := io.Copy(dst, resp.Body); err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	}
}

func addBearer(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
