package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"

	MStockReservations MetricKey = "stock_reservations_total"
	MCouponRedemptions MetricKey = "coupon_redemptions_total"
	MCompensations     MetricKey = "compensations_total"
)

// MetricSpec describes how an instrument is registered with the backend.
type MetricSpec struct {
	Key    MetricKey
	Help   string
	Labels []string
}

// Counters lists every counter the service emits.
var Counters = []MetricSpec{
	{Key: MUsecaseRequests, Help: "Total number of use case invocations.", Labels: []string{"use_case", "outcome"}},
	{Key: MHTTPRequests, Help: "Total number of HTTP requests.", Labels: []string{"method", "route", "status"}},
	{Key: MExternalRequests, Help: "Calls to external dependencies.", Labels: []string{"peer", "endpoint", "outcome"}},
	{Key: MStockReservations, Help: "Stock reservation attempts.", Labels: []string{"outcome"}},
	{Key: MCouponRedemptions, Help: "Coupon redemption attempts.", Labels: []string{"outcome"}},
	{Key: MCompensations, Help: "Saga compensation steps executed.", Labels: []string{"step", "outcome"}},
}

// Histograms lists every histogram the service emits.
var Histograms = []MetricSpec{
	{Key: MUsecaseDuration, Help: "Duration of use case execution in seconds.", Labels: []string{"use_case"}},
	{Key: MHTTPRequestDuration, Help: "HTTP request latency in seconds.", Labels: []string{"method", "route", "status"}},
	{Key: MExternalRequestDuration, Help: "Latency of external dependency calls in seconds.", Labels: []string{"peer", "endpoint"}},
}
