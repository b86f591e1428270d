package apierr

import (
	"context"
	"errors"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3filter"

	"github.com/keithlinneman/apiedge/internal/faults"
	"github.com/keithlinneman/apiedge/internal/log"
)

// ValidationResolver claims *ValidationError and the request errors raised
// by openapi3filter.
type ValidationResolver struct {
	Logger log.Logger
}

func (v *ValidationResolver) Resolve(ctx context.Context, err error) (Resolution, bool) {
	status, detail, ok := validationDetail(err)
	if !ok {
		return Resolution{}, false
	}
	loggerFor(ctx, v.Logger).Debug(ctx, "request validation failed", "detail", detail)
	return Resolution{
		Status:   status,
		Kind:     KindValidation,
		Envelope: Envelope{Code: CodeInvalidRequest, Message: detail},
	}, true
}

func validationDetail(err error) (status int, detail string, ok bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		status = ve.Status
		if !validStatus(status) {
			status = http.StatusBadRequest
		}
		detail = ve.Detail
		if detail == "" && ve.Err != nil {
			detail = ve.Err.Error()
		}
		return status, detail, true
	}

	var sre *openapi3filter.SecurityRequirementsError
	if errors.As(err, &sre) {
		return http.StatusUnauthorized, "security requirements failed", true
	}

	var re *openapi3filter.RequestError
	if errors.As(err, &re) {
		detail = re.Reason
		if detail == "" {
			detail = re.Error()
		}
		if re.Parameter != nil {
			detail = "parameter \"" + re.Parameter.Name + "\": " + detail
		}
		return http.StatusBadRequest, detail, true
	}
	return 0, "", false
}

// MalformedBodyResolver claims *MalformedBodyError with a known sub-code.
// The sub-code is logged and never sent to the client.
type MalformedBodyResolver struct {
	Logger log.Logger
}

func (m *MalformedBodyResolver) Resolve(ctx context.Context, err error) (Resolution, bool) {
	var mb *MalformedBodyError
	if !errors.As(err, &mb) || !IsMalformedType(mb.Type) {
		return Resolution{}, false
	}
	kv := []any{"malformed.type", mb.Type}
	if mb.Err != nil {
		kv = append(kv, "cause", mb.Err.Error())
	}
	loggerFor(ctx, m.Logger).Warn(ctx, "malformed request body", kv...)
	return Resolution{
		Status:   http.StatusBadRequest,
		Kind:     KindMalformedBody,
		Envelope: Envelope{Code: CodeMalformedRequest, Message: "Malformed request body"},
		SubCode:  mb.Type,
	}, true
}

// DomainResolver passes business rejections through verbatim. A DomainError
// with an invalid status is left for the fallback.
type DomainResolver struct{}

func (DomainResolver) Resolve(_ context.Context, err error) (Resolution, bool) {
	var de *DomainError
	if !errors.As(err, &de) || !validStatus(de.Status) {
		return Resolution{}, false
	}
	return Resolution{
		Status:   de.Status,
		Kind:     KindDomain,
		Envelope: Envelope{Code: de.Code, Message: de.Message},
	}, true
}

// Fallback claims everything: it logs the fault with its stack and cause
// chain, reports it, and answers 500 quoting the tracking id.
type Fallback struct {
	Logger   log.Logger
	Reporter faults.Reporter
	TraceID  func(ctx context.Context) string
}

func (f *Fallback) Resolve(ctx context.Context, err error) (Resolution, bool) {
	id := ""
	if f.TraceID != nil {
		id = f.TraceID(ctx)
	}
	loggerFor(ctx, f.Logger).Error(ctx, err, "unhandled error", "tracking_id", id)
	if f.Reporter != nil {
		f.Reporter.Report(ctx, err)
	}
	return internalResolution(id), true
}

func internalResolution(trackingID string) Resolution {
	msg := "Internal Server Error. Please reach out to us for more info."
	if trackingID != "" {
		msg = "Internal Server Error. Please reach out to us with tracking ID " + trackingID + " for more info."
	}
	return Resolution{
		Status:   http.StatusInternalServerError,
		Kind:     KindUnclassified,
		Envelope: Envelope{Code: CodeInternalServer, Message: msg},
	}
}
