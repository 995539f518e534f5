package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalizeCreate validates input and fills defaults. It returns a copy.
func (o *Orchestrator) normalizeCreate(input CreateApprovalInput) (CreateApprovalInput, error) {
	out := input
	out.ApprovalID = strings.TrimSpace(out.ApprovalID)
	out.OriginSystemRef = strings.TrimSpace(out.OriginSystemRef)
	out.MessageText = strings.TrimSpace(out.MessageText)

	verr := newValidationError()
	if err := o.validate.Struct(out); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return out, fmt.Errorf("failed to validate input: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.add(fieldPath(fe), describe(fe))
		}
	}

	out.Mode = entity.NormalizeMode(strings.TrimSpace(out.Mode))
	if !entity.IsValidMode(out.Mode) {
		verr.add("mode", fmt.Sprintf("must be one of %s, %s, %s", entity.ModeSingle, entity.ModeWaitAll, entity.ModeFirstResponse))
	}

	if out.TimeoutHours == 0 {
		out.TimeoutHours = o.cfg.DefaultTimeoutHours
	}
	if out.TimeoutHours < entity.MinTimeoutHours || out.TimeoutHours > entity.MaxTimeoutHours {
		verr.add("timeout_hours", fmt.Sprintf("must be between %d and %d", entity.MinTimeoutHours, entity.MaxTimeoutHours))
	}

	if strings.TrimSpace(out.ApproveLabel) == "" {
		out.ApproveLabel = o.cfg.DefaultApproveLabel
	}
	if strings.TrimSpace(out.RejectLabel) == "" {
		out.RejectLabel = o.cfg.DefaultRejectLabel
	}

	if !verr.empty() {
		return out, verr
	}
	out.Approvers = dedupeApprovers(out.Approvers)
	return out, nil
}

// dedupeApprovers drops repeated user refs, keeping the first occurrence
func dedupeApprovers(in []ApproverInput) []ApproverInput {
	seen := make(map[string]bool, len(in))
	out := make([]ApproverInput, 0, len(in))
	for _, a := range in {
		ref := strings.TrimSpace(a.OriginUserRef)
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ApproverInput{OriginUserRef: ref, ChannelHint: strings.TrimSpace(a.ChannelHint)})
	}
	return out
}

// fieldPath strips the struct name from a validator namespace:
// "CreateApprovalInput.approvers[0].origin_user_ref" -> "approvers[0].origin_user_ref"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return "must have at most " + fe.Param() + " items"
		}
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must have at least " + fe.Param() + " items"
	case "url":
		return "must be a valid URL"
	case "printascii":
		return "must contain printable ASCII only"
	}
	return "failed " + fe.Tag() + " check"
}
