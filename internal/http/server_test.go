package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"markwiki/app/internal/db"
	"markwiki/app/internal/wiki"
)

const testHomePage = "home-page"

func TestHomeRouteRedirectsToHomePage(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 302 {
		t.Fatalf("expected status 302, got %d", rec.Code)
	}
	if location := rec.Header().Get("Location"); location != "/pages/home-page" {
		t.Fatalf("expected redirect to /pages/home-page, got %q", location)
	}
}

func TestMissingHomePageRedirectsToEditor(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/pages/home-page", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 302 {
		t.Fatalf("expected status 302, got %d", rec.Code)
	}
	if location := rec.Header().Get("Location"); location != "/pages/home-page/edit" {
		t.Fatalf("expected redirect to the home page editor, got %q", location)
	}
}

func TestMissingPageShowsCreatePrompt(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/pages/unknown-topic", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/pages/unknown-topic/edit") {
		t.Fatalf("expected create link in body, got %q", rec.Body.String())
	}
}

func TestPageViewRendersMarkdown(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)
	seedPage(t, store, "getting-started", "# Hi\nWorld")

	req := httptest.NewRequest("GET", "/pages/getting-started", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "<h1>Hi</h1>") {
		t.Fatalf("expected rendered heading in body, got %q", body)
	}
	if !strings.Contains(body, "World") {
		t.Fatalf("expected paragraph text in body, got %q", body)
	}
}

func TestPageListIncludesSavedPages(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)
	seedPage(t, store, "alpha", "body")
	seedPage(t, store, "beta", "body")

	req := httptest.NewRequest("GET", "/pages", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "/pages/alpha") || !strings.Contains(body, "/pages/beta") {
		t.Fatalf("expected both pages in listing, got %q", body)
	}
}

func TestSaveRouteCreatesPageAndRedirects(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{
		"name":    "My Note",
		"content": "hello",
	}, nil)

	req := httptest.NewRequest("POST", "/pages", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 303 {
		t.Fatalf("expected status 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if location := rec.Header().Get("Location"); location != "/pages/my-note" {
		t.Fatalf("expected redirect to /pages/my-note, got %q", location)
	}

	page, err := store.GetPage(context.Background(), "my-note")
	if err != nil {
		t.Fatalf("GetPage returned error: %v", err)
	}
	if page == nil || page.Content != "hello" {
		t.Fatalf("expected saved page with content hello, got %#v", page)
	}
}

func TestSaveRouteUploadsAttachment(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)

	payload := []byte("attachment-bytes")
	body, contentType := multipartBody(t, map[string]string{
		"name":    "with-file",
		"content": "body",
	}, &testFilePart{field: "file", name: "notes.txt", mime: "text/plain", data: payload})

	req := httptest.NewRequest("POST", "/pages", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 303 {
		t.Fatalf("expected status 303, got %d: %s", rec.Code, rec.Body.String())
	}

	page, err := store.GetPage(context.Background(), "with-file")
	if err != nil {
		t.Fatalf("GetPage returned error: %v", err)
	}
	if page == nil || len(page.Attachments) != 1 {
		t.Fatalf("expected one attachment, got %#v", page)
	}

	fileReq := httptest.NewRequest("GET", "/files/"+page.Attachments[0].FileID, nil)
	fileRec := httptest.NewRecorder()

	srv.ServeHTTP(fileRec, fileReq)

	if fileRec.Code != 200 {
		t.Fatalf("expected status 200 for file download, got %d", fileRec.Code)
	}
	if !bytes.Equal(fileRec.Body.Bytes(), payload) {
		t.Fatalf("expected byte-identical download, got %q", fileRec.Body.String())
	}
	if ct := fileRec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("expected stored mime type text/plain, got %q", ct)
	}
	if cd := fileRec.Header().Get("Content-Disposition"); !strings.Contains(cd, "notes.txt") {
		t.Fatalf("expected original filename in disposition, got %q", cd)
	}
}

func TestSaveRouteRequiresContent(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{
		"name":    "incomplete",
		"content": "   ",
	}, nil)

	req := httptest.NewRequest("POST", "/pages", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Page content is required.") {
		t.Fatalf("expected validation message in body, got %q", rec.Body.String())
	}
}

func TestSaveRouteDeclinesHomePageRename(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)
	home := seedPage(t, store, testHomePage, "welcome")

	body, contentType := multipartBody(t, map[string]string{
		"id":      fmt.Sprintf("%d", home.ID),
		"name":    "something-else",
		"content": "welcome",
	}, nil)

	req := httptest.NewRequest("POST", "/pages", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "The home page cannot be renamed.") {
		t.Fatalf("expected rename warning in body, got %q", rec.Body.String())
	}
}

func TestDeleteRouteProtectsHomePage(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)
	home := seedPage(t, store, testHomePage, "welcome")

	req := httptest.NewRequest("POST", fmt.Sprintf("/pages/%d/delete", home.ID), nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 403 {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}

	page, err := store.GetPage(context.Background(), testHomePage)
	if err != nil {
		t.Fatalf("GetPage returned error: %v", err)
	}
	if page == nil {
		t.Fatalf("expected home page to survive")
	}
}

func TestDeleteRouteRemovesPage(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)
	page := seedPage(t, store, "doomed", "body")

	req := httptest.NewRequest("POST", fmt.Sprintf("/pages/%d/delete", page.ID), nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 303 {
		t.Fatalf("expected status 303, got %d", rec.Code)
	}
	if location := rec.Header().Get("Location"); location != "/pages" {
		t.Fatalf("expected redirect to /pages, got %q", location)
	}

	gone, err := store.GetPage(context.Background(), "doomed")
	if err != nil {
		t.Fatalf("GetPage returned error: %v", err)
	}
	if gone != nil {
		t.Fatalf("expected page to be deleted")
	}
}

func TestDeleteRouteMissingPageReturns404(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/pages/4242/delete", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestAttachmentDeleteRouteRedirectsToEditor(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)

	page, err := store.SavePage(context.Background(), wiki.PageInput{
		Name:    "with-file",
		Content: "body",
		Upload:  &wiki.FileUpload{FileName: "a.txt", MimeType: "text/plain", Data: []byte("aaa")},
	})
	if err != nil {
		t.Fatalf("SavePage returned error: %v", err)
	}

	target := fmt.Sprintf("/pages/%d/attachments/%s/delete", page.ID, page.Attachments[0].FileID)
	req := httptest.NewRequest("POST", target, nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 303 {
		t.Fatalf("expected status 303, got %d", rec.Code)
	}
	if location := rec.Header().Get("Location"); location != "/pages/with-file/edit" {
		t.Fatalf("expected redirect to editor, got %q", location)
	}
}

func TestFileRouteUnknownReturns404(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/files/nope", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestHealthRouteReportsOK(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("expected ok status in body, got %q", rec.Body.String())
	}
}

type testFilePart struct {
	field string
	name  string
	mime  string
	data  []byte
}

func multipartBody(t *testing.T, values map[string]string, file *testFilePart) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range values {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("writing form field %q failed: %v", key, err)
		}
	}

	if file != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.name))
		header.Set("Content-Type", file.mime)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("creating file part failed: %v", err)
		}
		if _, err := part.Write(file.data); err != nil {
			t.Fatalf("writing file part failed: %v", err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("closing multipart writer failed: %v", err)
	}

	return &buf, writer.FormDataContentType()
}

func seedPage(t *testing.T, store *wiki.Store, name, content string) *wiki.Page {
	t.Helper()

	page, err := store.SavePage(context.Background(), wiki.PageInput{Name: name, Content: content})
	if err != nil {
		t.Fatalf("SavePage returned error: %v", err)
	}

	return page
}

func newTestServer(t *testing.T) (*Server, *wiki.Store) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "server.db")
	conn, err := db.Open(db.Options{Path: path})
	if err != nil {
		t.Fatalf("db.Open returned error: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := db.Close(conn); closeErr != nil {
			t.Fatalf("closing database failed: %v", closeErr)
		}
	})

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	if err := wiki.Migrate(context.Background(), conn, logger); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}

	renderer := wiki.NewRenderer()

	store, err := wiki.NewStore(conn, wiki.NoopListCache{}, renderer, logger, nil)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}

	srv, err := NewServer(Options{
		Store:          store,
		Renderer:       renderer,
		Database:       conn,
		Logger:         logger,
		HomePageName:   testHomePage,
		MaxUploadBytes: 1 << 20,
		RateLimiter: RateLimiterSettings{
			RequestsPerSecond: 1000,
			Burst:             1000,
			ClientTTL:         time.Minute,
		},
	})
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}

	return srv, store
}
