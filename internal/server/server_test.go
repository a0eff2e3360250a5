package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"socialservice/internal/config"
	"socialservice/internal/db"
	"socialservice/internal/domain"
	"socialservice/internal/engine"
	"socialservice/internal/engine/auth"
	"socialservice/internal/filestore"
	"socialservice/internal/logging"
	"socialservice/internal/migrate"
	"socialservice/internal/render"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

type noDirectory struct{}

func (noDirectory) Lookup(_ context.Context, code string) (*domain.Identity, error) {
	if code == "2019110001" {
		return &domain.Identity{Code: code, FullName: "Ana Torres", Faculty: "Ingenieria", Program: "Sistemas"}, nil
	}
	return nil, nil
}

func newTestEngine(t *testing.T, cfg *config.Config) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	now := time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return now }
	e.Logger = logging.Discard()
	files := filestore.NewMemory()
	e.Files = files
	e.Renderer = render.PDF{Files: files}
	e.Directory = noDirectory{}
	return e
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	cfg := config.Default()
	e := newTestEngine(t, cfg)
	handler, err := New(Config{
		Engine: e,
		Policy: auth.NewPolicy(cfg),
		Files:  e.Files.(*filestore.Store),
		Auth:   AuthConfig{JWTSecret: testSecret, AllowDevLogin: true},
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func bearer(t *testing.T, actor, role string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, actor, role, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return send(t, client, req)
}

func doUpload(t *testing.T, client *http.Client, method, url, filename string, content []byte, fields map[string]string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(content)
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return send(t, client, req)
}

func send(t *testing.T, client *http.Client, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func expectStatus(t *testing.T, res *http.Response, data []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d: %s", res.Request.Method, res.Request.URL.Path, res.StatusCode, want, string(data))
	}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func createWork(t *testing.T, srv *testServer, owner int64) WorkResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/works", map[string]any{
		"owner_id":       owner,
		"service_type":   "individual",
		"program_id":     3,
		"faculty_id":     2,
		"instructor_id":  7,
		"labor_id":       11,
		"action_line_id": 5,
	}, bearer(t, "student-1", "student"))
	expectStatus(t, res, data, http.StatusCreated)
	var w WorkResponse
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("unmarshal work: %v", err)
	}
	return w
}

func TestHealthIsPublicAndAPIRequiresAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/works", nil, nil)
	expectStatus(t, res, data, http.StatusUnauthorized)
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %s", code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/works", nil, map[string]string{"Authorization": "Bearer garbage"})
	expectStatus(t, res, data, http.StatusUnauthorized)
	if code := errorCode(t, data); code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %s", code)
	}
}

func TestOpenAPIServedConsistentlyUnderConcurrentFirstRequests(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	const n = 8
	bodies := make([][]byte, n)
	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v1/openapi.json")
			if err != nil {
				return
			}
			defer res.Body.Close()
			statuses[i] = res.StatusCode
			bodies[i], _ = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if statuses[i] != http.StatusOK {
			t.Fatalf("request %d: status %d", i, statuses[i])
		}
		if !bytes.Equal(bodies[i], bodies[0]) {
			t.Fatalf("request %d returned a different document", i)
		}
	}
	if !bytes.Contains(bodies[0], []byte("bearerAuth")) {
		t.Fatalf("expected security scheme in OpenAPI document")
	}
}

func TestUnknownRoleIsForbidden(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, bearer(t, "x", "janitor"))
	expectStatus(t, res, data, http.StatusForbidden)
}

func TestMeListsRolePermissions(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, bearer(t, "sup-1", "supervisor"))
	expectStatus(t, res, data, http.StatusOK)
	var me MeResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ActorID != "sup-1" || me.Role != "supervisor" || me.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", me)
	}
	found := false
	for _, p := range me.Permissions {
		if p == "plan.resolve" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected plan.resolve in %v", me.Permissions)
	}
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/dev/login", DevLoginRequest{ActorID: "m-1", Role: "manager"}, nil)
	expectStatus(t, res, data, http.StatusOK)
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/works", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/dev/login", DevLoginRequest{ActorID: "m-1", Role: "janitor"}, nil)
	expectStatus(t, res, data, http.StatusBadRequest)
}

func TestRoleWithoutPermissionIsForbidden(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	w := createWork(t, srv, 100)
	res, data := doJSON(t, srv.Client(), http.MethodPost, fmt.Sprintf("%s/v1/works/%d/review", srv.URL, w.ID),
		ReviewRequest{Verdict: "accepted"}, bearer(t, "student-1", "student"))
	expectStatus(t, res, data, http.StatusForbidden)
	if code := errorCode(t, data); code != "forbidden" {
		t.Fatalf("expected forbidden, got %s", code)
	}
}

func TestCreateValidationIsBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/works", map[string]any{
		"owner_id":       1,
		"service_type":   "group",
		"program_id":     3,
		"faculty_id":     2,
		"instructor_id":  7,
		"labor_id":       11,
		"action_line_id": 5,
		"group_emails":   []string{"a@gmail.com"},
	}, bearer(t, "student-1", "student"))
	expectStatus(t, res, data, http.StatusBadRequest)
	if code := errorCode(t, data); code != "validation_error" {
		t.Fatalf("expected validation_error, got %s", code)
	}
}

func TestUnknownWorkIsNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/works/999", nil, bearer(t, "sup-1", "supervisor"))
	expectStatus(t, res, data, http.StatusNotFound)
}

func TestCompletionBeforeAcceptanceIsPreconditionFailed(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	w := createWork(t, srv, 100)
	res, data := doJSON(t, srv.Client(), http.MethodPost, fmt.Sprintf("%s/v1/works/%d/completion", srv.URL, w.ID), nil, bearer(t, "student-1", "student"))
	expectStatus(t, res, data, http.StatusPreconditionFailed)
	if code := errorCode(t, data); code != "precondition_failed" {
		t.Fatalf("expected precondition_failed, got %s", code)
	}
}

func TestPlanWorkflowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	student := bearer(t, "student-1", "student")
	supervisor := bearer(t, "sup-1", "supervisor")

	w := createWork(t, srv, 100)
	if w.PlanState != domain.PlanPending || w.Finished {
		t.Fatalf("unexpected new work %+v", w)
	}

	res, data := doUpload(t, client, http.MethodPost, fmt.Sprintf("%s/v1/works/%d/plan", srv.URL, w.ID), "plan.pdf", []byte("%PDF-1.4 early"), nil, student)
	expectStatus(t, res, data, http.StatusPreconditionFailed)

	res, data = doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/v1/works/%d/review", srv.URL, w.ID), ReviewRequest{Verdict: "accepted"}, supervisor)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doUpload(t, client, http.MethodPost, fmt.Sprintf("%s/v1/works/%d/plan", srv.URL, w.ID), "plan.pdf", []byte("%PDF-1.4 plan"), nil, student)
	expectStatus(t, res, data, http.StatusOK)
	var uploaded WorkResponse
	if err := json.Unmarshal(data, &uploaded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if uploaded.ConformityValue() != "pending" || uploaded.PlanFile == nil {
		t.Fatalf("expected pending conformity, got %s", uploaded.ConformityValue())
	}

	res, data = doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/v1/works/%d/plan/conformity", srv.URL, w.ID), ConformityRequest{Verdict: "accepted"}, supervisor)
	expectStatus(t, res, data, http.StatusOK)
	var accepted WorkResponse
	if err := json.Unmarshal(data, &accepted); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if accepted.AcceptanceLetterFile == nil {
		t.Fatalf("expected rendered acceptance letter, warnings=%v", accepted.Warnings)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/files/"+*accepted.AcceptanceLetterFile, nil, student)
	expectStatus(t, res, data, http.StatusOK)
	if ct := res.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %s", ct)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected a PDF document")
	}

	res, data = doUpload(t, client, http.MethodPost, fmt.Sprintf("%s/v1/works/%d/plan", srv.URL, w.ID), "plan.pdf", []byte("again"), nil, student)
	expectStatus(t, res, data, http.StatusConflict)
	if code := errorCode(t, data); code != "conflict" {
		t.Fatalf("expected conflict, got %s", code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/works?instructor_id=7", nil, supervisor)
	expectStatus(t, res, data, http.StatusOK)
	var list paginatedWorks
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != w.ID {
		t.Fatalf("expected one listed work, got %+v", list.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/owners/100/work", nil, student)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodGet, fmt.Sprintf("%s/v1/events?work_id=%d&limit=2", srv.URL, w.ID), nil, supervisor)
	expectStatus(t, res, data, http.StatusOK)
	var evts paginatedEvents
	if err := json.Unmarshal(data, &evts); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(evts.Items) != 2 || evts.NextCursor == "" {
		t.Fatalf("expected a page of two events with a cursor, got %d/%q", len(evts.Items), evts.NextCursor)
	}
	if evts.Items[0].Type != "plan.conformity.resolved" {
		t.Fatalf("expected newest event first, got %s", evts.Items[0].Type)
	}
}

func TestListWorksRejectsBadFilter(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/works?has_final_report=maybe", nil, bearer(t, "sup-1", "supervisor"))
	expectStatus(t, res, data, http.StatusBadRequest)
}

func TestEvidenceOutsideWindowIsConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	student := bearer(t, "student-1", "student")
	supervisor := bearer(t, "sup-1", "supervisor")

	w := createWork(t, srv, 100)
	res, data := doUpload(t, client, http.MethodPost, fmt.Sprintf("%s/v1/works/%d/plan", srv.URL, w.ID), "plan.pdf", []byte("%PDF-1.4 early"), nil, student)
	expectStatus(t, res, data, http.StatusPreconditionFailed)

	res, data = doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/v1/works/%d/review", srv.URL, w.ID), ReviewRequest{Verdict: "accepted"}, supervisor)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodPut, fmt.Sprintf("%s/v1/works/%d/schedule", srv.URL, w.ID), ScheduleRequest{
		Activities: []engine.ActivityInput{
			{Description: "Tutoring", StartDate: "2024-05-20", PlannedEndDate: "2024-06-03"},
			{Description: "Workshop", StartDate: "2024-06-10", PlannedEndDate: "2024-07-30"},
		},
	}, student)
	expectStatus(t, res, data, http.StatusOK)
	var schedule []ActivityResponse
	if err := json.Unmarshal(data, &schedule); err != nil {
		t.Fatalf("unmarshal schedule: %v", err)
	}
	if len(schedule) != 2 || schedule[1].Window == nil || schedule[1].Window.From != "2024-07-25" || schedule[1].Window.To != "2024-08-09" {
		t.Fatalf("unexpected schedule %+v", schedule)
	}

	res, data = doUpload(t, client, http.MethodPost, fmt.Sprintf("%s/v1/activities/%d/evidence", srv.URL, schedule[1].ID), "photo.jpg", []byte("jpeg"), nil, student)
	expectStatus(t, res, data, http.StatusConflict)
	if code := errorCode(t, data); code != "out_of_window" {
		t.Fatalf("expected out_of_window, got %s", code)
	}

	res, data = doUpload(t, client, http.MethodPost, fmt.Sprintf("%s/v1/activities/%d/evidence", srv.URL, schedule[0].ID), "photo.jpg", []byte("jpeg"), map[string]string{"status": "pending"}, student)
	expectStatus(t, res, data, http.StatusOK)
	var act ActivityResponse
	if err := json.Unmarshal(data, &act); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}
	if act.CompletedOn == nil || *act.CompletedOn != "2024-06-01" || act.EvidenceFile == nil {
		t.Fatalf("expected evidence recorded today, got %+v", act.ScheduledActivity)
	}

	res, data = doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/v1/activities/%d/observation", srv.URL, act.ID), ActivityObservationRequest{Text: "blurry photo"}, supervisor)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodDelete, fmt.Sprintf("%s/v1/activities/%d/evidence", srv.URL, act.ID), nil, student)
	expectStatus(t, res, data, http.StatusOK)
	if err := json.Unmarshal(data, &act); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}
	if act.EvidenceFile != nil || act.CompletedOn != nil || act.Status != nil {
		t.Fatalf("expected cleared evidence, got %+v", act.ScheduledActivity)
	}
}

func TestGroupMembersOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	student := bearer(t, "student-1", "student")
	supervisor := bearer(t, "sup-1", "supervisor")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/works", map[string]any{
		"owner_id":       200,
		"service_type":   "group",
		"program_id":     3,
		"faculty_id":     2,
		"instructor_id":  7,
		"labor_id":       11,
		"action_line_id": 5,
		"group_emails":   []string{"2019110001@udh.edu.pe"},
	}, student)
	expectStatus(t, res, data, http.StatusCreated)
	var w WorkResponse
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("unmarshal work: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/v1/works/%d/members", srv.URL, w.ID), AddMembersRequest{Emails: []string{"2019110009@UDH.edu.pe"}}, student)
	expectStatus(t, res, data, http.StatusCreated)

	res, data = doJSON(t, client, http.MethodGet, fmt.Sprintf("%s/v1/works/%d/members/enriched", srv.URL, w.ID), nil, supervisor)
	expectStatus(t, res, data, http.StatusOK)
	var enriched []domain.EnrichedMember
	if err := json.Unmarshal(data, &enriched); err != nil {
		t.Fatalf("unmarshal enriched: %v", err)
	}
	if len(enriched) != 2 {
		t.Fatalf("expected two members, got %d", len(enriched))
	}
	if enriched[0].Identity == nil || enriched[0].Identity.FullName != "Ana Torres" {
		t.Fatalf("expected resolved identity, got %+v", enriched[0])
	}
	if enriched[1].Identity != nil || enriched[1].Diagnostic == "" {
		t.Fatalf("expected diagnostic for unknown member, got %+v", enriched[1])
	}

	res, data = doJSON(t, client, http.MethodPut, fmt.Sprintf("%s/v1/members/%d/status", srv.URL, enriched[0].ID), MemberStatusRequest{Status: "ATTENDED"}, supervisor)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doUpload(t, client, http.MethodPut, fmt.Sprintf("%s/v1/works/%d/member-documents/certificate/2019110001", srv.URL, w.ID), "cert.pdf", []byte("%PDF cert"), nil, supervisor)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doUpload(t, client, http.MethodPut, fmt.Sprintf("%s/v1/works/%d/member-documents/certificate/2019119999", srv.URL, w.ID), "cert.pdf", []byte("%PDF cert"), nil, supervisor)
	expectStatus(t, res, data, http.StatusNotFound)

	res, data = doJSON(t, client, http.MethodGet, fmt.Sprintf("%s/v1/works/%d/member-documents?kind=certificate", srv.URL, w.ID), nil, supervisor)
	expectStatus(t, res, data, http.StatusOK)
	var docs []domain.MemberDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		t.Fatalf("unmarshal docs: %v", err)
	}
	if len(docs) != 1 || docs[0].Code != "2019110001" {
		t.Fatalf("unexpected member documents %+v", docs)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/identities/2019119999", nil, bearer(t, "m-1", "manager"))
	expectStatus(t, res, data, http.StatusNotFound)
}

func TestObservationsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	supervisor := bearer(t, "sup-1", "supervisor")
	w := createWork(t, srv, 100)

	url := fmt.Sprintf("%s/v1/works/%d/observations", srv.URL, w.ID)
	res, data := doJSON(t, client, http.MethodGet, url+"/latest?category=plan", nil, supervisor)
	expectStatus(t, res, data, http.StatusNotFound)

	for _, body := range []string{"first", "second"} {
		res, data = doJSON(t, client, http.MethodPost, url, ObservationRequest{Category: "plan", Body: body}, supervisor)
		expectStatus(t, res, data, http.StatusCreated)
	}
	res, data = doJSON(t, client, http.MethodGet, url+"/latest?category=plan", nil, bearer(t, "student-1", "student"))
	expectStatus(t, res, data, http.StatusOK)
	var latest domain.Observation
	if err := json.Unmarshal(data, &latest); err != nil {
		t.Fatalf("unmarshal observation: %v", err)
	}
	if latest.Body != "second" {
		t.Fatalf("expected newest observation, got %q", latest.Body)
	}

	res, data = doJSON(t, client, http.MethodPost, url, ObservationRequest{Category: "plan", Body: "x"}, bearer(t, "student-1", "student"))
	expectStatus(t, res, data, http.StatusForbidden)
}

func TestWebhookDispatcherDeliversNewEvents(t *testing.T) {
	var mu sync.Mutex
	var received []webhookEvent
	var headers []http.Header
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, evt)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"work.created"}, Secret: "s3cret"}}
	e := newTestEngine(t, cfg)
	ctx := context.Background()
	actor := domain.Actor{ID: "tester", Role: "admin"}
	input := engine.CreateWorkInput{OwnerID: 1, ServiceType: "individual", ProgramID: 1, FacultyID: 1, InstructorID: 1, LaborID: 1, ActionLineID: 1}

	if _, err := e.CreateWork(ctx, actor, input); err != nil {
		t.Fatalf("create: %v", err)
	}
	d := NewWebhookDispatcher(e, logging.Discard())
	if d == nil {
		t.Fatalf("expected a dispatcher")
	}
	// events that predate the dispatcher are skipped
	d.DispatchAll(ctx)

	input.OwnerID = 2
	w, err := e.CreateWork(ctx, actor, input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.ReviewSelection(ctx, actor, w.ID, domain.PlanAccepted, ""); err != nil {
		t.Fatalf("review: %v", err)
	}
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected one delivery, got %d", len(received))
	}
	if received[0].Type != "work.created" || received[0].WorkID != w.ID {
		t.Fatalf("unexpected delivery %+v", received[0])
	}
	if !strings.Contains(string(received[0].Payload), `"owner_id":2`) {
		t.Fatalf("expected payload with owner, got %s", string(received[0].Payload))
	}
	if headers[0].Get("X-SocialService-Secret") != "s3cret" || headers[0].Get("X-SocialService-Event") != "work.created" {
		t.Fatalf("missing webhook headers: %v", headers[0])
	}
	if headers[0].Get("X-SocialService-Event-ID") != fmt.Sprintf("%d", received[0].ID) || headers[0].Get("X-SocialService-Delivery") == "" {
		t.Fatalf("missing delivery headers: %v", headers[0])
	}
}

func TestNoWebhooksMeansNoDispatcher(t *testing.T) {
	e := newTestEngine(t, config.Default())
	if d := NewWebhookDispatcher(e, nil); d != nil {
		t.Fatalf("expected nil dispatcher")
	}
}
