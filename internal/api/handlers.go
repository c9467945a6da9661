package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"diagdesk/internal/analytics"
	"diagdesk/internal/listing"
	"diagdesk/internal/models"
	"diagdesk/internal/service"

	"github.com/google/uuid"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Centers   []string  `json:"centers"`
}

type bookingRequest struct {
	GuestCode    string `json:"guest_code"`
	Age          string `json:"age"`
	LocationType string `json:"location_type"`
	Center       string `json:"center"`
	DoorNo       string `json:"door_no"`
	Address      string `json:"address"`
	Pincode      string `json:"pincode"`
	Date         string `json:"date"`
	TimeSlot     string `json:"time_slot"`
}

type rescheduleRequest struct {
	GuestCode string `json:"guest_code"`
	BookingID string `json:"booking_id"`
	Pincode   string `json:"pincode"`
	Date      string `json:"date"`
	TimeSlot  string `json:"time_slot"`
}

type reportRow struct {
	models.LabReport
	DownloadURL string `json:"download_url"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeBody(w, r, &body) {
		return
	}

	id := uuid.NewString()
	d, err := s.workspaces.Login(r.Context(), id, body.Username, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess := d.Session.Current()
	token, exp, err := s.tokens.Issue(id, sess.Username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp, Username: sess.Username, Centers: sess.Centers})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	allowed, err := d.Session.AllowedCenters(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess := d.Session.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"username":        sess.Username,
		"centers":         sess.Centers,
		"allowed_centers": allowed,
		"admin":           sess.IsAdmin(),
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	if err := s.workspaces.Logout(r.Context(), claims.Subject); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleReportToken(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	var body struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := d.Session.SetToken(r.Context(), strings.TrimSpace(body.Token)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleGuests(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	q, err := guestQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := d.GuestPage(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageBody(page))
}

func (s *HTTPServer) handleGuestDetail(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	detail, err := d.GuestDetail(r.Context(), r.PathValue("code"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *HTTPServer) handleGuestItems(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}
	items, err := d.GuestItems(r.Context(), phone)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleCenters(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	centers, err := d.Centers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"centers": centers})
}

func (s *HTTPServer) handleCenterDetails(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	details, err := d.CenterDetails(r.Context(), r.PathValue("name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	date := ""
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		day, ok := models.ParseDate(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		date = day.Format(models.DateLayoutISO)
	}
	slots, err := d.Slots(r.Context(), strings.TrimSpace(q.Get("pincode")), date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// handleBook drives a booking dialog from one request body. It answers after
// the settle, refresh and close steps have run.
func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	var body bookingRequest
	if !decodeBody(w, r, &body) {
		return
	}

	flow, err := d.NewBooking(strings.TrimSpace(body.GuestCode), nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	steps := []func() error{
		func() error { return flow.SetAge(body.Age) },
	}
	if body.LocationType != "" {
		steps = append(steps, func() error { return flow.SetLocationType(body.LocationType) })
	}
	if strings.EqualFold(body.LocationType, models.LocationClinic) {
		steps = append(steps, func() error { return flow.SelectCenter(ctx, body.Center) })
	} else {
		steps = append(steps,
			func() error { return flow.SetDoorNo(body.DoorNo) },
			func() error { return flow.SetAddress(body.Address) },
			func() error { return flow.SetPincode(body.Pincode) },
		)
	}
	steps = append(steps,
		func() error { return flow.SetDateString(body.Date) },
		func() error { _, err := flow.FetchSlots(ctx); return err },
		func() error { return flow.SelectSlot(body.TimeSlot) },
	)
	for _, step := range steps {
		if err := step(); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	resp, err := flow.Submit(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   resp.Message,
		"date":      flow.Date(),
		"time_slot": flow.TimeSlot(),
		"location":  flow.LocationType(),
	})
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	var body rescheduleRequest
	if !decodeBody(w, r, &body) {
		return
	}

	flow, err := d.NewReschedule(strings.TrimSpace(body.GuestCode), strings.TrimSpace(body.BookingID), nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	steps := []func() error{
		func() error { return flow.SetPincode(body.Pincode) },
		func() error { return flow.SetDateString(body.Date) },
		func() error { _, err := flow.FetchSlots(ctx); return err },
		func() error { return flow.SelectSlot(body.TimeSlot) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	resp, err := flow.Submit(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	msg, err := d.UpdateBookingStatus(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *HTTPServer) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	f, err := analyticsFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := d.Analytics(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleReports(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	rng, err := parseRange(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pageNo, err := parsePage(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := d.ReportPage(r.Context(), service.ReportQuery{Range: rng, Patient: q.Get("patient"), Page: pageNo})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rows := make([]reportRow, 0, len(page.Items))
	for _, rep := range page.Items {
		rows = append(rows, reportRow{LabReport: rep, DownloadURL: d.ReportURL(rep.TestID)})
	}
	body := pageBody(page)
	body["items"] = rows
	body["pages"] = listing.PageWindow(page.Number, page.TotalPages)
	writeJSON(w, http.StatusOK, body)
}

func (s *HTTPServer) handleMonthly(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	month, err1 := strconv.Atoi(q.Get("month"))
	year, err2 := strconv.Atoi(q.Get("year"))
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "month and year must be numbers")
		return
	}
	data, name, err := d.MonthlyBookings(r.Context(), month, year, strings.TrimSpace(q.Get("center")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, name, data)
}

// handleExportGuests applies the same query as the guest listing, then
// exports every filtered row rather than one page.
func (s *HTTPServer) handleExportGuests(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	q, err := guestQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := d.GuestPage(r.Context(), q); err != nil {
		s.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := d.ExportGuests(&buf); err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, "guests.xlsx", buf.Bytes())
}

func (s *HTTPServer) handleExportDashboard(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	f, err := analyticsFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := d.ExportDashboard(r.Context(), &buf, f); err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, "dashboard.xlsx", buf.Bytes())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func guestQuery(q url.Values) (service.GuestQuery, error) {
	rng, err := parseRange(q)
	if err != nil {
		return service.GuestQuery{}, err
	}
	page, err := parsePage(q)
	if err != nil {
		return service.GuestQuery{}, err
	}
	refresh, _ := strconv.ParseBool(q.Get("refresh"))
	return service.GuestQuery{
		Centers: splitCSV(q.Get("center")),
		Search:  q.Get("search"),
		Status:  listing.ParseStatus(q.Get("status")),
		Range:   rng,
		Page:    page,
		Refresh: refresh,
	}, nil
}

func analyticsFilter(q url.Values) (analytics.Filter, error) {
	rng, err := parseRange(q)
	if err != nil {
		return analytics.Filter{}, err
	}
	return analytics.Filter{Centers: splitCSV(q.Get("center")), Range: rng}, nil
}

func parseRange(q url.Values) (models.DateRange, error) {
	var rng models.DateRange
	for _, f := range []struct {
		key string
		dst *time.Time
	}{{"from", &rng.From}, {"to", &rng.To}} {
		raw := strings.TrimSpace(q.Get(f.key))
		if raw == "" {
			continue
		}
		day, ok := models.ParseDate(raw)
		if !ok {
			return rng, fmt.Errorf("invalid %s date %q", f.key, raw)
		}
		*f.dst = day
	}
	return rng, nil
}

func parsePage(q url.Values) (int, error) {
	raw := strings.TrimSpace(q.Get("page"))
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid page %q", raw)
	}
	return n, nil
}

func pageBody[T any](p listing.Page[T]) map[string]any {
	return map[string]any{
		"items":       p.Items,
		"page":        p.Number,
		"page_size":   p.Size,
		"total":       p.Total,
		"total_pages": p.TotalPages,
		"from":        p.From(),
		"to":          p.To(),
	}
}
