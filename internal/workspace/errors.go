package workspace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/cdpcontrol"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewport"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewsync"
)

func requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func validation(format string, args ...any) error {
	return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func notFound(id viewsync.ViewportID) error {
	return &cdpcontrol.CodedError{Code: cdpcontrol.CodeViewportNotFound, Message: fmt.Sprintf("viewport %q not found", id)}
}

// codedViewportErr converts adapter errors into coded errors the API layer
// knows how to map.
func codedViewportErr(id viewsync.ViewportID, err error) error {
	if err == nil {
		return nil
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, viewport.ErrNotMounted):
		return notFound(id)
	case errors.Is(err, viewport.ErrAlreadyMounted):
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeViewportExists, Message: fmt.Sprintf("viewport %q already mounted", id)}
	case errors.Is(err, viewport.ErrInvalidRange):
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: err.Error(), Cause: err}
	default:
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeWidgetUnavailable, Message: fmt.Sprintf("viewport %q widget failed", id), Cause: err}
	}
}
