package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"diagdesk/internal/analytics"
	"diagdesk/internal/config"
	"diagdesk/internal/domain"
	"diagdesk/internal/export"
	"diagdesk/internal/gateway"
	"diagdesk/internal/listing"
	"diagdesk/internal/logging"
	"diagdesk/internal/models"
	"diagdesk/internal/session"

	"github.com/rs/zerolog"
)

var (
	ErrGuestCodeRequired = errors.New("guest code is required")
	ErrInvalidMonth      = errors.New("month must be between 1 and 12")
)

// GuestQuery selects a page of the guest table. Centers is sent to the
// backend; everything else filters the fetched rows.
type GuestQuery struct {
	Centers []string
	Search  string
	Status  listing.StatusFilter
	Range   models.DateRange
	Page    int
	Refresh bool
}

// ReportQuery selects a page of the lab report table. A missing end means
// today and a missing start means seven days before the end.
type ReportQuery struct {
	Range   models.DateRange
	Patient string
	Page    int
}

// GuestDetail is the guest dialog: stored slot bookings and the booking status.
type GuestDetail struct {
	GuestCode string               `json:"guest_code"`
	Bookings  []models.SlotBooking `json:"bookings"`
	Status    string               `json:"status"`
}

// Dashboard is one signed-in client's view of the backend: its session,
// its list views and the booking dialogs it opens.
type Dashboard struct {
	Session *session.Store
	Guests  *listing.View[models.Guest]
	Reports *listing.View[models.LabReport]

	gateway   domain.Gateway
	booking   config.BookingConfig
	publisher domain.EventPublisher
	syncer    domain.SyncWorker
	logger    *zerolog.Logger
	now       func() time.Time

	mu           sync.Mutex
	guestCenters []string
}

func NewDashboard(
	sess *session.Store,
	gw domain.Gateway,
	booking config.BookingConfig,
	publisher domain.EventPublisher,
	syncer domain.SyncWorker,
	logger *zerolog.Logger,
) *Dashboard {
	pageSize := booking.PageSize
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	seq := listing.NewSequencer()
	return &Dashboard{
		Session:   sess,
		Guests:    listing.NewView[models.Guest]("guests", pageSize, seq),
		Reports:   listing.NewView[models.LabReport]("reports", pageSize, seq),
		gateway:   gw,
		booking:   booking,
		publisher: publisher,
		syncer:    syncer,
		logger:    logging.Component(logger, "dashboard"),
		now:       time.Now,
	}
}

// GuestPage fetches guests when the view does not hold this center set or
// Refresh is set, then applies the filter and returns the page. A request
// overtaken by another center set fails with listing.ErrSuperseded.
func (d *Dashboard) GuestPage(ctx context.Context, q GuestQuery) (listing.Page[models.Guest], error) {
	centers, err := d.Session.ResolveCenters(ctx, q.Centers)
	if err != nil {
		return listing.Page[models.Guest]{}, err
	}

	tag := centersTag(centers)
	if q.Refresh || !d.Guests.Holds(tag) {
		if err := d.loadGuests(ctx, centers); err != nil {
			return listing.Page[models.Guest]{}, err
		}
	}

	// Explicitly requested centers also guard rows the backend returns for others.
	filter := listing.GuestFilter{Search: q.Search, Range: q.Range, Status: q.Status, Centers: q.Centers}
	return d.Guests.Query(tag, filter.Match, q.Page)
}

func (d *Dashboard) loadGuests(ctx context.Context, centers []string) error {
	d.mu.Lock()
	d.guestCenters = append([]string(nil), centers...)
	d.mu.Unlock()
	return d.Guests.LoadFor(ctx, centersTag(centers), func(ctx context.Context) ([]models.Guest, error) {
		return d.gateway.Guests(ctx, centers)
	})
}

func centersTag(centers []string) string {
	return strings.Join(centers, "\x1f")
}

func rangeTag(rng models.DateRange) string {
	return rng.From.Format(models.DateLayoutISO) + ".." + rng.To.Format(models.DateLayoutISO)
}

// RefreshGuests refetches the guest list for the last center set.
func (d *Dashboard) RefreshGuests(ctx context.Context) error {
	d.mu.Lock()
	centers := append([]string(nil), d.guestCenters...)
	d.mu.Unlock()
	if len(centers) == 0 {
		var err error
		if centers, err = d.Session.ResolveCenters(ctx, nil); err != nil {
			return err
		}
	}
	err := d.loadGuests(ctx, centers)
	if errors.Is(err, listing.ErrSuperseded) {
		// A newer guest fetch already replaced this one.
		return nil
	}
	return err
}

func (d *Dashboard) GuestDetail(ctx context.Context, guestCode string) (*GuestDetail, error) {
	if guestCode == "" {
		return nil, ErrGuestCodeRequired
	}
	if !d.Session.IsAuthenticated() {
		return nil, session.ErrNotLoggedIn
	}
	bookings, err := d.gateway.SlotBookings(ctx, guestCode)
	if err != nil {
		return nil, fmt.Errorf("slot bookings: %w", err)
	}
	details, err := d.gateway.BookingDetails(ctx, guestCode)
	if err != nil {
		return nil, fmt.Errorf("booking details: %w", err)
	}
	return &GuestDetail{GuestCode: guestCode, Bookings: bookings, Status: details.Status}, nil
}

func (d *Dashboard) GuestItems(ctx context.Context, phone string) ([]models.GuestItem, error) {
	if !d.Session.IsAuthenticated() {
		return nil, session.ErrNotLoggedIn
	}
	return d.gateway.GuestItems(ctx, phone)
}

// Analytics fetches the investigations of the requested centers, or of every
// session center when none are requested, and aggregates them.
func (d *Dashboard) Analytics(ctx context.Context, f analytics.Filter) (analytics.Summary, error) {
	centers, err := d.Session.ResolveCenters(ctx, f.Centers)
	if err != nil {
		return analytics.Summary{}, err
	}
	payload, err := d.gateway.Investigations(ctx, centers)
	if err != nil {
		return analytics.Summary{}, fmt.Errorf("investigations: %w", err)
	}
	return analytics.Aggregate(payload, f), nil
}

// ReportPage fetches lab reports for the range, when the view does not hold
// it, and returns the page filtered by patient and InDate. The session's
// bearer token, if any, goes with the fetch.
func (d *Dashboard) ReportPage(ctx context.Context, q ReportQuery) (listing.Page[models.LabReport], error) {
	if !d.Session.IsAuthenticated() {
		return listing.Page[models.LabReport]{}, session.ErrNotLoggedIn
	}
	rng := q.Range
	if rng.To.IsZero() {
		rng.To = models.Day(d.now())
	}
	if rng.From.IsZero() {
		rng.From = rng.To.AddDate(0, 0, -models.DefaultReportLookbackDays)
	}

	tag := rangeTag(rng)
	if !d.Reports.Holds(tag) {
		token, err := d.Session.Token(ctx)
		if err != nil {
			return listing.Page[models.LabReport]{}, err
		}
		err = d.Reports.LoadFor(ctx, tag, func(ctx context.Context) ([]models.LabReport, error) {
			return d.fetchReports(ctx, gateway.ReportRangeFor(rng.From, rng.To), token)
		})
		if err != nil {
			return listing.Page[models.LabReport]{}, err
		}
	}

	filter := listing.ReportFilter{Patient: q.Patient, Range: rng}
	return d.Reports.Query(tag, filter.Match, q.Page)
}

// fetchReports uses the POST listing and falls back to the older GET route
// when the backend does not serve it.
func (d *Dashboard) fetchReports(ctx context.Context, rng models.ReportRange, token string) ([]models.LabReport, error) {
	rows, err := d.gateway.LabReports(ctx, rng, token)
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusMethodNotAllowed) {
		d.logger.Debug().Int("status", apiErr.StatusCode).Msg("falling back to GET report listing")
		return d.gateway.Reports(ctx, rng, token)
	}
	return rows, err
}

func (d *Dashboard) ReportURL(testID string) string {
	return d.gateway.LabReportURL(testID)
}

// MonthlyBookings downloads the monthly workbook for a center the user may
// see and checks that it is a readable workbook.
func (d *Dashboard) MonthlyBookings(ctx context.Context, month, year int, center string) ([]byte, string, error) {
	if month < 1 || month > 12 {
		return nil, "", ErrInvalidMonth
	}
	if _, err := d.Session.ResolveCenters(ctx, []string{center}); err != nil {
		return nil, "", err
	}
	data, err := d.gateway.MonthlyBookingsExcel(ctx, month, year, center)
	if err != nil {
		return nil, "", fmt.Errorf("monthly bookings: %w", err)
	}
	if _, err := export.InspectWorkbook(data); err != nil {
		return nil, "", err
	}
	return data, export.MonthlyFileName(month, year), nil
}

// ExportGuests writes the currently filtered guests as a workbook.
func (d *Dashboard) ExportGuests(w io.Writer) error {
	return export.WriteGuests(w, d.Guests.Filtered())
}

func (d *Dashboard) ExportDashboard(ctx context.Context, w io.Writer, f analytics.Filter) error {
	summary, err := d.Analytics(ctx, f)
	if err != nil {
		return err
	}
	return export.WriteDashboard(w, summary)
}

// UpdateBookingStatus asks the backend to recompute booking statuses and
// refetches the guest list.
func (d *Dashboard) UpdateBookingStatus(ctx context.Context) (string, error) {
	if !d.Session.IsAuthenticated() {
		return "", session.ErrNotLoggedIn
	}
	resp, err := d.gateway.UpdateBookingStatus(ctx)
	if err != nil {
		return "", fmt.Errorf("update booking status: %w", err)
	}
	if err := d.RefreshGuests(ctx); err != nil {
		return resp.Message, err
	}
	return resp.Message, nil
}

// Close discards the views so late responses are ignored.
func (d *Dashboard) Close() {
	d.Guests.Discard()
	d.Reports.Discard()
}
