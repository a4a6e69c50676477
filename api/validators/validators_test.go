package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/flashticket-backend/pkg/errors"
)

type reserveBody struct {
	TicketID string `json:"ticketId" validate:"required,uuid"`
	Count    int    `json:"count" validate:"gte=0,lte=10"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{name: "valid", body: `{"ticketId":"` + uuid.NewString() + `","count":2}`},
		{name: "missing", body: `{"count":2}`, wantErr: true, field: "ticketId"},
		{name: "not uuid", body: `{"ticketId":"abc"}`, wantErr: true, field: "ticketId"},
		{name: "range", body: `{"ticketId":"` + uuid.NewString() + `","count":11}`, wantErr: true, field: "count"},
		{name: "unknown field", body: `{"ticketId":"` + uuid.NewString() + `","extra":1}`, wantErr: true},
		{name: "empty", body: ``, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dest reserveBody
			err := DecodeJSONBody(httptest.NewRecorder(), req, &dest)
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if tc.field == "" {
				return
			}
			details, ok := pkgerrors.As(err).Details().(map[string]string)
			if !ok {
				t.Fatalf("expected field details, got %#v", pkgerrors.As(err).Details())
			}
			if _, ok := details[tc.field]; !ok {
				t.Fatalf("expected %s in details %v", tc.field, details)
			}
		})
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?size=50&bad=x", nil)
	if v, err := ParseQueryInt(req, "size", 20, 1, 100); err != nil || v != 50 {
		t.Fatalf("expected 50, got %d (%v)", v, err)
	}
	if v, err := ParseQueryInt(req, "page", 0, 0, 1000); err != nil || v != 0 {
		t.Fatalf("expected default, got %d (%v)", v, err)
	}
	if _, err := ParseQueryInt(req, "bad", 0, 0, 10); err == nil {
		t.Fatal("expected numeric error")
	}
	if _, err := ParseQueryInt(req, "size", 20, 1, 10); err == nil {
		t.Fatal("expected range error")
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id.String())
	rctx.URLParams.Add("bad", "nope")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := ParseUUIDParam(req, "id")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}
	if _, err := ParseUUIDParam(req, "bad"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
