package models

const (
	GuestStatusClosed = "Closed"
)

const (
	LocationHome   = "Home"
	LocationClinic = "Clinic"
)

const (
	DraftKindBooking    = "booking"
	DraftKindReschedule = "reschedule"
)

const (
	// MaxMessageLength is Telegram's limit on one text message, in characters.
	MaxMessageLength = 4096
)

// Bot dialog steps.
const (
	StateMainMenu        = "main_menu"
	StateBookingLocation = "booking_location"
	StateBookingCenter   = "booking_center"
	StateBookingAddress  = "booking_address"
	StateBookingAge      = "booking_age"
	StateBookingDate     = "booking_date"
	StateBookingSlot     = "booking_slot"
	StateRescheduleDate  = "reschedule_date"
	StateReschedulePin   = "reschedule_pincode"
	StateRescheduleSlot  = "reschedule_slot"
)

const (
	// StorageKeySession is the local-storage key of the serialized session.
	StorageKeySession = "user"
	// StorageKeyToken holds the bearer token used by report calls.
	StorageKeyToken = "token"

	// DefaultPageSize is the fixed page size of the guest and report tables.
	DefaultPageSize = 10

	// DefaultSettleDelayMS is the pause after a successful booking before the
	// guest list is refreshed.
	DefaultSettleDelayMS = 1000
	// DefaultCloseDelayMS is the pause between the refresh and closing the dialog.
	DefaultCloseDelayMS = 500

	// TopEmployees is how many employees the revenue chart shows before "Others".
	TopEmployees = 8
	// TopTests is the length of the test distribution bar chart.
	TopTests = 5
	// OthersBucket names the collapsed tail of the employee revenue chart.
	OthersBucket = "Others"

	// DefaultReportLookbackDays is the default range of the lab report view.
	DefaultReportLookbackDays = 7

	RateLimitMessages = 20
	RateLimitWindow   = 60

	// DefaultRedisTTL bounds bot dialog state in Redis, seconds.
	DefaultRedisTTL = 24 * 60 * 60

	WorkerQueueSize = 100
)

// Date layouts used on the wire.
const (
	DateLayoutISO    = "2006-01-02"
	DateLayoutReport = "02-Jan-2006"
)
