package notification

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mbp/nursecall/internal/platform/apperr"
)

func TestTranslateInsertErr(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantText   string
	}{
		{"missing user", &pgconn.PgError{Code: "23503", ConstraintName: "notification_user_id_fkey"}, http.StatusNotFound, "user"},
		{"missing emergency", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23503", ConstraintName: "notification_emergency_id_fkey"}), http.StatusNotFound, "emergency"},
		{"other constraint", &pgconn.PgError{Code: "23503", ConstraintName: "other_fkey"}, http.StatusNotFound, "other_fkey"},
		{"check violation", &pgconn.PgError{Code: "23514"}, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translateInsertErr(tt.err)
			if got := apperr.Status(err); got != tt.wantStatus {
				t.Errorf("expected status %d, got %d (%v)", tt.wantStatus, got, err)
			}
			if tt.wantStatus == http.StatusNotFound && !errors.Is(err, apperr.ErrNotFound) {
				t.Errorf("expected NotFound kind, got %v", err)
			}
			if tt.wantText != "" && !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("expected %q in %q", tt.wantText, err.Error())
			}
		})
	}
}
