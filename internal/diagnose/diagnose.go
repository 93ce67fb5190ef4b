// Package diagnose turns a gRPC status into a rich, caller-facing
// diagnosis: a severity, a short title, a human message, recovery hints,
// and whatever structured detail the server attached (errdetails).
package diagnose

import (
	"fmt"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Severity classifies how serious a diagnosis is.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// Diagnosis is a caller-facing rendering of a gRPC error.
type Diagnosis struct {
	Title    string
	Message  string
	Severity Severity
	Recovery []string
	Details  string
}

// FromError classifies err, which is expected to carry (or wrap) a gRPC
// status, into a Diagnosis. Errors with no status attached get a generic
// fallback diagnosis.
func FromError(err error) *Diagnosis {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return &Diagnosis{
			Title:    "Unexpected Error",
			Severity: SeverityError,
			Message:  err.Error(),
		}
	}

	d := classifyCode(st.Code())
	d.Details = formatDetails(st)
	if d.Details == "" {
		d.Details = st.Message()
	}
	return d
}

func classifyCode(code codes.Code) *Diagnosis {
	switch code {
	case codes.Unavailable:
		return &Diagnosis{
			Title:    "Server Unavailable",
			Severity: SeverityError,
			Message:  "The server could not be reached.",
			Recovery: []string{"Check that the server is running", "Verify the target address"},
		}
	case codes.DeadlineExceeded:
		return &Diagnosis{
			Title:    "Request Timeout",
			Severity: SeverityError,
			Message:  "The server took too long to respond.",
			Recovery: []string{"Try again", "Increase the call's timeout"},
		}
	case codes.Unauthenticated:
		return &Diagnosis{
			Title:    "Unauthenticated",
			Severity: SeverityError,
			Message:  "The server rejected the request's credentials.",
			Recovery: []string{"Check the authorization metadata sent with the call"},
		}
	case codes.PermissionDenied:
		return &Diagnosis{
			Title:    "Permission Denied",
			Severity: SeverityError,
			Message:  "The caller lacks permission for this operation.",
		}
	case codes.InvalidArgument:
		return &Diagnosis{
			Title:    "Invalid Argument",
			Severity: SeverityError,
			Message:  "The server rejected the request payload.",
			Recovery: []string{"Check the request body against the method's schema"},
		}
	case codes.Internal:
		return &Diagnosis{
			Title:    "Internal Server Error",
			Severity: SeverityError,
			Message:  "The server encountered an internal error.",
		}
	case codes.Unimplemented:
		return &Diagnosis{
			Title:    "Not Implemented",
			Severity: SeverityError,
			Message:  "The server doesn't implement this method.",
		}
	case codes.NotFound:
		return &Diagnosis{
			Title:    "Not Found",
			Severity: SeverityError,
			Message:  "The requested resource doesn't exist.",
		}
	case codes.AlreadyExists:
		return &Diagnosis{
			Title:    "Already Exists",
			Severity: SeverityError,
			Message:  "The resource already exists.",
		}
	case codes.ResourceExhausted:
		return &Diagnosis{
			Title:    "Resource Exhausted",
			Severity: SeverityWarning,
			Message:  "A quota or rate limit was exceeded.",
			Recovery: []string{"Wait and retry", "Reduce request rate"},
		}
	case codes.FailedPrecondition:
		return &Diagnosis{
			Title:    "Failed Precondition",
			Severity: SeverityError,
			Message:  "The system isn't in a state required by this operation.",
		}
	case codes.Aborted:
		return &Diagnosis{
			Title:    "Aborted",
			Severity: SeverityWarning,
			Message:  "The operation was aborted, often due to a concurrency conflict.",
			Recovery: []string{"Retry the operation"},
		}
	case codes.OutOfRange:
		return &Diagnosis{
			Title:    "Out of Range",
			Severity: SeverityError,
			Message:  "The request specified a value outside the valid range.",
		}
	case codes.DataLoss:
		return &Diagnosis{
			Title:    "Data Loss",
			Severity: SeverityError,
			Message:  "Unrecoverable data loss or corruption occurred.",
		}
	case codes.Canceled:
		return &Diagnosis{
			Title:    "Cancelled",
			Severity: SeverityInfo,
			Message:  "The call was cancelled.",
		}
	case codes.Unknown:
		return &Diagnosis{
			Title:    "Unknown Error",
			Severity: SeverityError,
			Message:  "The server returned an error with no further detail.",
		}
	default:
		return &Diagnosis{
			Title:    "Error",
			Severity: SeverityError,
			Message:  fmt.Sprintf("Request failed with code %s.", code),
		}
	}
}

func formatDetails(st *status.Status) string {
	var lines []string
	for _, d := range st.Details() {
		switch v := d.(type) {
		case *errdetails.BadRequest:
			for _, fv := range v.GetFieldViolations() {
				lines = append(lines, fmt.Sprintf("field %s: %s", fv.GetField(), fv.GetDescription()))
			}
		case *errdetails.DebugInfo:
			lines = append(lines, "debug: "+v.GetDetail())
		case *errdetails.ErrorInfo:
			lines = append(lines, fmt.Sprintf("reason: %s (domain %s)", v.GetReason(), v.GetDomain()))
		case *errdetails.RetryInfo:
			lines = append(lines, fmt.Sprintf("retry after: %s", v.GetRetryDelay().AsDuration()))
		case *errdetails.PreconditionFailure:
			for _, vi := range v.GetViolations() {
				lines = append(lines, fmt.Sprintf("precondition %s/%s: %s", vi.GetType(), vi.GetSubject(), vi.GetDescription()))
			}
		case *errdetails.QuotaFailure:
			for _, vi := range v.GetViolations() {
				lines = append(lines, fmt.Sprintf("quota %s: %s", vi.GetSubject(), vi.GetDescription()))
			}
		case *errdetails.RequestInfo:
			lines = append(lines, "request-id: "+v.GetRequestId())
		case *errdetails.ResourceInfo:
			lines = append(lines, fmt.Sprintf("resource %s/%s: %s", v.GetResourceType(), v.GetResourceName(), v.GetDescription()))
		case *errdetails.Help:
			for _, l := range v.GetLinks() {
				lines = append(lines, fmt.Sprintf("see %s: %s", l.GetDescription(), l.GetUrl()))
			}
		}
	}
	return strings.Join(lines, "; ")
}
