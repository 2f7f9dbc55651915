package dashboard

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quailyquaily/slackpm/internal/drain"
	"github.com/quailyquaily/slackpm/internal/security"
	"github.com/quailyquaily/slackpm/internal/taskstore"
)

// MetricsSource is the read-only counter view the dashboard renders.
type MetricsSource interface {
	Snapshot() drain.Snapshot
}

type Options struct {
	// Admins is the allowlist of Slack user ids permitted to view the
	// dashboard and trigger GDPR purges.
	Admins   []string
	Store    *taskstore.Store
	Metrics  MetricsSource
	Security *security.Manager
	Logger   *slog.Logger
}

type server struct {
	admins   map[string]bool
	store    *taskstore.Store
	metrics  MetricsSource
	security *security.Manager
	log      *slog.Logger
}

// RegisterRoutes mounts the admin dashboard and health endpoints on mux.
func RegisterRoutes(mux *http.ServeMux, opts Options) {
	if mux == nil {
		return
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	admins := make(map[string]bool, len(opts.Admins))
	for _, id := range opts.Admins {
		id = strings.TrimSpace(id)
		if id != "" {
			admins[id] = true
		}
	}
	s := &server{
		admins:   admins,
		store:    opts.Store,
		metrics:  opts.Metrics,
		security: opts.Security,
		log:      log,
	}

	mux.HandleFunc("/dashboard", s.handleDashboard)
	mux.HandleFunc("/gdpr/user", s.handleGDPRUser)
	mux.HandleFunc("/gdpr/channel", s.handleGDPRChannel)
	mux.HandleFunc("/health", s.handleHealth)
}

func (s *server) adminUser(r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" || !s.admins[userID] {
		return "", false
	}
	return userID, true
}

type dashboardData struct {
	InstallationStatus string
	TokenExpiry        string
	Snapshot           drain.Snapshot
	TaskCount          int
	MetadataOnly       bool
	UserID             string
	Tasks              []taskRow
	AuditJSON          string
}

type taskRow struct {
	Key       string
	Summary   string
	ProjectID string
	Owner     string
	Status    string
}

func (s *server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := s.adminUser(r)
	if !ok {
		http.Error(w, "access denied, admins only", http.StatusForbidden)
		return
	}
	metadataOnly := r.URL.Query().Get("metadataOnly") == "true"

	data := dashboardData{
		InstallationStatus: "Active",
		MetadataOnly:       metadataOnly,
		UserID:             userID,
	}
	if s.security != nil {
		if expiry := s.security.Expiry(); !expiry.IsZero() {
			data.TokenExpiry = expiry.Format(time.RFC3339)
		} else {
			data.TokenExpiry = "revoked"
		}
		raw, err := json.MarshalIndent(s.security.AuditLog(), "", "  ")
		if err == nil {
			data.AuditJSON = string(raw)
		}
		s.security.LogAccess(userID, "VIEW_DASHBOARD", map[string]any{"metadata_only": metadataOnly})
	}
	if s.metrics != nil {
		data.Snapshot = s.metrics.Snapshot()
	}
	if s.store != nil {
		data.TaskCount = s.store.Len()
		if !metadataOnly {
			s.store.Range(func(key taskstore.Key, md taskstore.Metadata) bool {
				data.Tasks = append(data.Tasks, taskRow{
					Key:       key.String(),
					Summary:   md.Summary,
					ProjectID: md.ProjectID,
					Owner:     md.Owner,
					Status:    md.Status,
				})
				return true
			})
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		s.log.Warn("dashboard_render_error", "error", err.Error())
	}
}

func (s *server) handleGDPRUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.adminUser(r); !ok {
		http.Error(w, "access denied, admins only", http.StatusForbidden)
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("target"))
	if target == "" {
		http.Error(w, "target is required", http.StatusBadRequest)
		return
	}
	purged := 0
	if s.security != nil {
		purged = s.security.DeleteUserData(target)
	}
	writeJSON(w, map[string]any{"purged": purged})
}

func (s *server) handleGDPRChannel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.adminUser(r); !ok {
		http.Error(w, "access denied, admins only", http.StatusForbidden)
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("target"))
	if target == "" {
		http.Error(w, "target is required", http.StatusBadRequest)
		return
	}
	purged := 0
	if s.security != nil {
		purged = s.security.DeleteChannelData(target)
	}
	writeJSON(w, map[string]any{"purged": purged})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":   true,
		"time": time.Now().Format(time.RFC3339Nano),
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!doctype html>
<html>
<head><title>slackpm admin</title></head>
<body>
<h1>slackpm admin dashboard</h1>
<h2>Installation Status: {{.InstallationStatus}}</h2>
<h2>Token Expiry: {{.TokenExpiry}}</h2>
<h2>Processed: {{.Snapshot.Processed}} / Extracted: {{.Snapshot.Extracted}} / Failures: {{.Snapshot.Failures}}</h2>
<h2>Backlog Depth: {{.Snapshot.BacklogDepth}}</h2>
<h2>Stored Tasks: {{.TaskCount}}</h2>
<h2>Metadata-Only Mode: {{if .MetadataOnly}}Enabled{{else}}Disabled{{end}}</h2>
<form action="/dashboard" method="get">
  <input type="hidden" name="userId" value="{{.UserID}}">
  <input type="checkbox" name="metadataOnly" value="true" {{if .MetadataOnly}}checked{{end}} onchange="this.form.submit()">
  <label for="metadataOnly">Enable Metadata-Only Mode</label>
</form>
{{if .Tasks}}
<h2>Tasks</h2>
<table border="1">
<tr><th>Key</th><th>Summary</th><th>Project</th><th>Owner</th><th>Status</th></tr>
{{range .Tasks}}<tr><td>{{.Key}}</td><td>{{.Summary}}</td><td>{{.ProjectID}}</td><td>{{.Owner}}</td><td>{{.Status}}</td></tr>
{{end}}</table>
{{end}}
<h2>Audit Log</h2>
<pre>{{.AuditJSON}}</pre>
</body>
</html>
`))
