// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validationMessage turns a validator error into a short message for the
// client. Only the first failing field is reported.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}

	fe := verrs[0]
	field := jsonFieldName(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max", "maxbytes":
		return fmt.Sprintf("%s is too long", field)
	case "mood":
		return "mood must be one of calm, romantic, playful, deep"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// jsonFieldName lowercases the first letter of a Go field name and fixes
// the "ID" suffix, so CompanionID reads as companionId.
func jsonFieldName(name string) string {
	if name == "" {
		return name
	}
	if base, ok := strings.CutSuffix(name, "ID"); ok && base != "" {
		name = base + "Id"
	}
	return strings.ToLower(name[:1]) + name[1:]
}
