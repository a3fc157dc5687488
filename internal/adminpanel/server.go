// Package adminpanel обслуживает веб-панель модераторов: список заявок,
// смена статусов и выдача коротких токенов доступа.
package adminpanel

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"intake_bot/internal/applicant"
	"intake_bot/internal/metrics"
)

const sessionCookie = "admin_token"

// Coordinator — операции над заявками, доступные панели.
type Coordinator interface {
	SetStatus(ctx context.Context, telegramID int64, status applicant.Status) error
	Accept(ctx context.Context, telegramID int64, city string, date time.Time) error
	DeleteApplicant(ctx context.Context, telegramID int64) error
}

// Server — HTTP-обработчик админ-панели.
type Server struct {
	applicants  applicant.Store
	coordinator Coordinator
	auth        *Authenticator
	logger      *slog.Logger
	collector   *metrics.Collector
	router      *mux.Router
}

// NewServer создает панель поверх хранилища заявок.
func NewServer(applicants applicant.Store, coordinator Coordinator, auth *Authenticator, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		applicants:  applicants,
		coordinator: coordinator,
		auth:        auth,
		logger:      logger,
		collector:   collector,
	}
	router := mux.NewRouter()
	router.HandleFunc("/", s.requireAuth(s.handleIndex)).Methods(http.MethodGet)
	router.HandleFunc("/applicants/{id:[0-9]+}/status", s.requireAuth(s.handleSetStatus)).Methods(http.MethodPost)
	router.HandleFunc("/applicants/{id:[0-9]+}/delete", s.requireAuth(s.handleDelete)).Methods(http.MethodPost)
	s.router = router
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.collector != nil {
		s.collector.HTTPRequests.Inc()
	}
	s.router.ServeHTTP(w, r)
}

// requireAuth проверяет токен из query-параметра или cookie. Токен из
// ссылки бота закрепляется в cookie, чтобы формы панели работали без
// параметра в адресе.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawToken := r.URL.Query().Get("token")
		fromQuery := rawToken != ""
		if rawToken == "" {
			if cookie, err := r.Cookie(sessionCookie); err == nil {
				rawToken = cookie.Value
			}
		}
		if _, err := s.auth.Authenticate(r.Context(), rawToken); err != nil {
			if errors.Is(err, ErrTokenNotFound) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			s.serverError(w, "authenticate", err)
			return
		}
		if fromQuery {
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    rawToken,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next(w, r)
	}
}

type indexData struct {
	Applicants []applicant.Applicant
	Filter     applicant.Status
	Statuses   []applicant.Status
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	filter := applicant.Status(r.URL.Query().Get("status"))
	if filter != "" && !filter.Valid() {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}
	applicants, err := s.applicants.List(r.Context(), filter)
	if err != nil {
		s.serverError(w, "list applicants", err)
		return
	}
	data := indexData{
		Applicants: applicants,
		Filter:     filter,
		Statuses: []applicant.Status{
			applicant.StatusNew,
			applicant.StatusInProgress,
			applicant.StatusAccepted,
			applicant.StatusDeclined,
		},
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("render index failed", slog.String("error", err.Error()))
	}
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := s.applicantID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	status := applicant.Status(r.PostFormValue("status"))
	if !status.Valid() {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	var err error
	if status == applicant.StatusAccepted {
		city := r.PostFormValue("accepted_city")
		rawDate := r.PostFormValue("accepted_date")
		var date time.Time
		if date, err = time.Parse("2006-01-02", rawDate); err != nil || city == "" {
			http.Error(w, "acceptance requires city and date", http.StatusBadRequest)
			return
		}
		err = s.coordinator.Accept(r.Context(), telegramID, city, date)
	} else {
		err = s.coordinator.SetStatus(r.Context(), telegramID, status)
	}
	if err != nil {
		if errors.Is(err, applicant.ErrApplicantNotFound) {
			http.NotFound(w, r)
			return
		}
		s.serverError(w, "update status", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := s.applicantID(w, r)
	if !ok {
		return
	}
	if err := s.coordinator.DeleteApplicant(r.Context(), telegramID); err != nil {
		if errors.Is(err, applicant.ErrApplicantNotFound) {
			http.NotFound(w, r)
			return
		}
		s.serverError(w, "delete applicant", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) applicantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	telegramID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "bad applicant id", http.StatusBadRequest)
		return 0, false
	}
	return telegramID, true
}

func (s *Server) serverError(w http.ResponseWriter, action string, err error) {
	if s.collector != nil {
		s.collector.HTTPErrors.Inc()
	}
	s.logger.Error(action+" failed", slog.String("error", err.Error()))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

var indexTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"formatDate": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02")
	},
}).Parse(`<!DOCTYPE html>
<html lang="uk">
<head>
<meta charset="utf-8">
<title>Заявки</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; }
form.inline { display: inline; }
.filter { margin-bottom: 1rem; }
</style>
</head>
<body>
<h1>Заявки</h1>
<div class="filter">
	<a href="/">Усі</a>
	{{range .Statuses}} | <a href="/?status={{.}}">{{.}}</a>{{end}}
	{{if .Filter}} (фільтр: {{.Filter}}){{end}}
</div>
<table>
<tr>
	<th>Telegram ID</th><th>Ім’я</th><th>Вік</th><th>Місто</th><th>Телефон</th>
	<th>Статус</th><th>Прийнято</th><th>Дії</th>
</tr>
{{range .Applicants}}
<tr>
	<td>{{.TelegramID}}</td>
	<td>{{.DisplayName}}</td>
	<td>{{.Age}}</td>
	<td>{{.City}}</td>
	<td>{{.Phone}}</td>
	<td>{{.Status}}</td>
	<td>{{if .AcceptedCity}}{{.AcceptedCity}}, {{formatDate .AcceptedDate}}{{end}}</td>
	<td>
		<form class="inline" method="post" action="/applicants/{{.TelegramID}}/status">
			<select name="status">
				{{$current := .Status}}
				{{range $.Statuses}}<option value="{{.}}"{{if eq . $current}} selected{{end}}>{{.}}</option>{{end}}
			</select>
			<input name="accepted_city" placeholder="Місто" size="10">
			<input name="accepted_date" placeholder="РРРР-ММ-ДД" size="10">
			<button type="submit">Зберегти</button>
		</form>
		<form class="inline" method="post" action="/applicants/{{.TelegramID}}/delete">
			<button type="submit">Видалити</button>
		</form>
	</td>
</tr>
{{end}}
</table>
</body>
</html>
`))
