package adminpanel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"intake_bot/internal/applicant"
)

type fakeCoordinator struct {
	statusCalls []applicant.Status
	acceptCity  string
	acceptDate  time.Time
	deleted     []int64
	err         error
}

func (f *fakeCoordinator) SetStatus(_ context.Context, _ int64, status applicant.Status) error {
	f.statusCalls = append(f.statusCalls, status)
	return f.err
}

func (f *fakeCoordinator) Accept(_ context.Context, _ int64, city string, date time.Time) error {
	f.acceptCity = city
	f.acceptDate = date
	return f.err
}

func (f *fakeCoordinator) DeleteApplicant(_ context.Context, telegramID int64) error {
	f.deleted = append(f.deleted, telegramID)
	return f.err
}

func newTestPanel(t *testing.T) (*Server, *applicant.MemoryStore, *fakeCoordinator, string) {
	t.Helper()
	store := NewMemoryTokenStore()
	issuer := NewIssuer(store, time.Hour)
	token, err := issuer.Issue(context.Background(), 900)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	applicants := applicant.NewMemoryStore()
	coordinator := &fakeCoordinator{}
	server := NewServer(applicants, coordinator, NewAuthenticator(store, nil, -100), nil, nil)
	return server, applicants, coordinator, token.Token
}

func TestPanelRequiresToken(t *testing.T) {
	server, _, _, _ := newTestPanel(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Result().StatusCode)
	}
}

func TestPanelListsApplicants(t *testing.T) {
	server, applicants, _, token := newTestPanel(t)
	if err := applicants.Create(context.Background(), applicant.Applicant{
		TelegramID: 42, Name: "Олена", Age: 19, City: "Київ", Username: "olena", Status: applicant.StatusNew,
	}); err != nil {
		t.Fatalf("create applicant: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/?token="+token, nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Result().StatusCode)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Олена") || !strings.Contains(body, "Київ") {
		t.Fatalf("expected applicant in page, got %q", body)
	}

	// Токен из ссылки закрепляется в cookie.
	var sessionSet bool
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == sessionCookie && cookie.Value == token {
			sessionSet = true
		}
	}
	if !sessionSet {
		t.Fatalf("expected session cookie")
	}
}

func TestPanelFilterValidation(t *testing.T) {
	server, _, _, token := newTestPanel(t)

	req := httptest.NewRequest(http.MethodGet, "/?token="+token+"&status=Hired", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Result().StatusCode)
	}
}

func postForm(server *Server, token, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path+"?token="+token, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestPanelSetStatus(t *testing.T) {
	server, _, coordinator, token := newTestPanel(t)

	rec := postForm(server, token, "/applicants/42/status", url.Values{"status": {"Declined"}})
	if rec.Result().StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Result().StatusCode)
	}
	if len(coordinator.statusCalls) != 1 || coordinator.statusCalls[0] != applicant.StatusDeclined {
		t.Fatalf("unexpected status calls: %+v", coordinator.statusCalls)
	}
}

func TestPanelAcceptRequiresMetadata(t *testing.T) {
	server, _, coordinator, token := newTestPanel(t)

	rec := postForm(server, token, "/applicants/42/status", url.Values{"status": {"Accepted"}})
	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without metadata, got %d", rec.Result().StatusCode)
	}

	rec = postForm(server, token, "/applicants/42/status", url.Values{
		"status":        {"Accepted"},
		"accepted_city": {"Львів"},
		"accepted_date": {"2025-09-01"},
	})
	if rec.Result().StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Result().StatusCode)
	}
	if coordinator.acceptCity != "Львів" || coordinator.acceptDate.Format("2006-01-02") != "2025-09-01" {
		t.Fatalf("unexpected accept call: %q %v", coordinator.acceptCity, coordinator.acceptDate)
	}
}

func TestPanelDelete(t *testing.T) {
	server, _, coordinator, token := newTestPanel(t)

	rec := postForm(server, token, "/applicants/42/delete", url.Values{})
	if rec.Result().StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Result().StatusCode)
	}
	if len(coordinator.deleted) != 1 || coordinator.deleted[0] != 42 {
		t.Fatalf("unexpected delete calls: %+v", coordinator.deleted)
	}
}
