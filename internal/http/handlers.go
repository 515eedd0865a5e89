package http

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	stdhttp "net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"markwiki/app/internal/db"
	"markwiki/app/internal/http/templates"
	"markwiki/app/internal/wiki"
)

const (
	htmlContentType      = "text/html; charset=utf-8"
	errorFallbackMessage = "We couldn't process your request right now."
	timestampLayout      = "Jan 2, 2006 15:04 UTC"
)

type htmlResponse struct {
	Status      int
	ContentType string `header:"Content-Type"`
	Location    string `header:"Location"`
	Body        []byte
}

type pageNameInput struct {
	Name string `path:"name"`
}

type savePageInput struct {
	RawBody multipart.Form
}

type pageIDInput struct {
	ID uint `path:"id"`
}

type attachmentInput struct {
	ID     uint   `path:"id"`
	FileID string `path:"fileId"`
}

type fileInput struct {
	FileID string `path:"fileId"`
}

type fileResponse struct {
	Status             int
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

type healthResponse struct {
	Status int
	Body   struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
}

func (s *Server) registerHomeRoute() {
	huma.Get(s.api, "/", s.homeHandler, htmlOperation("Redirect to the home page", stdhttp.StatusFound))
}

func (s *Server) registerPageListRoute() {
	huma.Get(s.api, "/pages", s.pageListHandler, htmlOperation(
		"List all pages",
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerPageViewRoute() {
	huma.Get(s.api, "/pages/{name}", s.pageViewHandler, htmlOperation(
		"View a wiki page",
		stdhttp.StatusFound,
		stdhttp.StatusNotFound,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerPageEditRoute() {
	huma.Get(s.api, "/pages/{name}/edit", s.pageEditHandler, htmlOperation(
		"Edit or create a wiki page",
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerPageSaveRoute() {
	huma.Post(s.api, "/pages", s.pageSaveHandler, htmlOperation(
		"Save a wiki page",
		stdhttp.StatusSeeOther,
		stdhttp.StatusBadRequest,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerPageDeleteRoute() {
	huma.Post(s.api, "/pages/{id}/delete", s.pageDeleteHandler, htmlOperation(
		"Delete a wiki page",
		stdhttp.StatusSeeOther,
		stdhttp.StatusForbidden,
		stdhttp.StatusNotFound,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerAttachmentDeleteRoute() {
	huma.Post(s.api, "/pages/{id}/attachments/{fileId}/delete", s.attachmentDeleteHandler, htmlOperation(
		"Delete a page attachment",
		stdhttp.StatusSeeOther,
		stdhttp.StatusNotFound,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerFileRoute() {
	huma.Get(s.api, "/files/{fileId}", s.fileHandler, func(op *huma.Operation) {
		op.Summary = "Download an attachment"
	})
}

func (s *Server) registerHealthRoute() {
	huma.Get(s.api, "/healthz", s.healthHandler, func(op *huma.Operation) {
		op.Summary = "Health check"
	})
}

func (s *Server) homeHandler(_ context.Context, _ *struct{}) (*htmlResponse, error) {
	response := newHTMLResponse(stdhttp.StatusFound, nil)
	response.Location = "/pages/" + s.homePage
	return response, nil
}

func (s *Server) pageListHandler(ctx context.Context, _ *struct{}) (*htmlResponse, error) {
	pages, err := s.store.ListAllPages(ctx)
	if err != nil {
		s.recordError(ctx, err, "listing pages", nil)
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, "We couldn't load the page listing right now.")
	}

	data := templates.PageListData{Title: "All pages • Markwiki"}
	data.Pages = make([]templates.PageListItem, 0, len(pages))
	for _, page := range pages {
		data.Pages = append(data.Pages, templates.PageListItem{
			Name:         page.Name,
			URL:          "/pages/" + page.Name,
			LastModified: page.LastModifiedUTC.Format(timestampLayout),
		})
	}

	body, err := renderComponent(ctx, templates.PageList(data))
	if err != nil {
		s.recordError(ctx, err, "rendering page listing", nil)
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, "We couldn't render the page listing.")
	}

	return newHTMLResponse(stdhttp.StatusOK, body), nil
}

func (s *Server) pageViewHandler(ctx context.Context, input *pageNameInput) (*htmlResponse, error) {
	name := strings.TrimSpace(input.Name)

	page, err := s.store.GetPage(ctx, name)
	if err != nil {
		status, message := s.classifyError(err)
		s.recordError(ctx, err, "loading wiki page", logrus.Fields{"name": name})
		return s.renderErrorResponse(ctx, status, message)
	}

	if page == nil {
		// The home page is created through its editor the first time it is
		// visited; every other unknown name gets a create prompt.
		if strings.EqualFold(name, s.homePage) {
			response := newHTMLResponse(stdhttp.StatusFound, nil)
			response.Location = "/pages/" + s.homePage + "/edit"
			return response, nil
		}

		body, renderErr := renderComponent(ctx, templates.MissingPage(templates.MissingPageData{
			Title:   name + " • Markwiki",
			Name:    name,
			EditURL: "/pages/" + name + "/edit",
		}))
		if renderErr != nil {
			s.recordError(ctx, renderErr, "rendering missing page prompt", logrus.Fields{"name": name})
			return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, errorFallbackMessage)
		}
		return newHTMLResponse(stdhttp.StatusNotFound, body), nil
	}

	rendered, err := s.renderer.Render(page.Content)
	if err != nil {
		s.recordError(ctx, err, "rendering page markdown", logrus.Fields{"name": page.Name})
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, "We couldn't render this page.")
	}

	data := templates.PageViewData{
		Title:        page.Name + " • Markwiki",
		Name:         page.Name,
		HTML:         rendered,
		LastModified: page.LastModifiedUTC.Format(timestampLayout),
		EditURL:      "/pages/" + page.Name + "/edit",
		DeleteURL:    fmt.Sprintf("/pages/%d/delete", page.ID),
		CanDelete:    !strings.EqualFold(page.Name, s.homePage),
		Attachments:  s.attachmentViews(page),
	}

	body, err := renderComponent(ctx, templates.PageView(data))
	if err != nil {
		s.recordError(ctx, err, "rendering page view", logrus.Fields{"name": page.Name})
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, errorFallbackMessage)
	}

	return newHTMLResponse(stdhttp.StatusOK, body), nil
}

func (s *Server) pageEditHandler(ctx context.Context, input *pageNameInput) (*htmlResponse, error) {
	name := strings.TrimSpace(input.Name)

	page, err := s.store.GetPage(ctx, name)
	if err != nil {
		status, message := s.classifyError(err)
		s.recordError(ctx, err, "loading page for editor", logrus.Fields{"name": name})
		return s.renderErrorResponse(ctx, status, message)
	}

	data := templates.EditorData{}
	if page != nil {
		data.Title = "Edit " + page.Name + " • Markwiki"
		data.PageID = page.ID
		data.Name = page.Name
		data.Content = page.Content
		data.NameLocked = strings.EqualFold(page.Name, s.homePage)
		data.Attachments = s.attachmentViews(page)
	} else {
		data.Title = "Create page • Markwiki"
		data.IsNew = true
		data.Name = s.renderer.NormalizeName(name)
		data.NameLocked = strings.EqualFold(name, s.homePage)
	}

	body, err := renderComponent(ctx, templates.Editor(data))
	if err != nil {
		s.recordError(ctx, err, "rendering editor", logrus.Fields{"name": name})
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, errorFallbackMessage)
	}

	return newHTMLResponse(stdhttp.StatusOK, body), nil
}

func (s *Server) pageSaveHandler(ctx context.Context, input *savePageInput) (*htmlResponse, error) {
	form := input.RawBody

	saveInput := wiki.PageInput{
		Name:    firstFormValue(form, "name"),
		Content: firstFormValue(form, "content"),
	}

	if rawID := firstFormValue(form, "id"); rawID != "" {
		id, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil {
			return s.renderEditorError(ctx, stdhttp.StatusBadRequest, saveInput, "The page identifier is not valid.")
		}
		saveInput.ID = uint(id)
	}

	if strings.TrimSpace(saveInput.Name) == "" {
		return s.renderEditorError(ctx, stdhttp.StatusBadRequest, saveInput, "A page name is required.")
	}
	if strings.TrimSpace(saveInput.Content) == "" {
		return s.renderEditorError(ctx, stdhttp.StatusBadRequest, saveInput, "Page content is required.")
	}

	// The home page keeps its reserved name; renaming it away is declined
	// before any storage interaction.
	if saveInput.ID != 0 {
		home, err := s.store.GetPage(ctx, s.homePage)
		if err != nil {
			s.recordError(ctx, err, "checking home page before save", nil)
			return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, errorFallbackMessage)
		}
		if home != nil && home.ID == saveInput.ID && !strings.EqualFold(s.renderer.NormalizeName(saveInput.Name), s.homePage) {
			s.warn(ctx, logrus.Fields{"page_id": saveInput.ID}, "declined attempt to rename home page")
			return s.renderEditorError(ctx, stdhttp.StatusBadRequest, saveInput, "The home page cannot be renamed.")
		}
	}

	upload, err := s.readUpload(form)
	if err != nil {
		s.recordError(ctx, err, "reading uploaded file", nil)
		return s.renderEditorError(ctx, stdhttp.StatusBadRequest, saveInput, "The uploaded file could not be read or is too large.")
	}
	saveInput.Upload = upload

	page, err := s.store.SavePage(ctx, saveInput)
	if err != nil {
		status, message := s.classifyError(err)
		s.recordError(ctx, err, "saving page", logrus.Fields{"name": saveInput.Name})
		if status == stdhttp.StatusBadRequest {
			return s.renderEditorError(ctx, status, saveInput, message)
		}
		return s.renderErrorResponse(ctx, status, message)
	}

	response := newHTMLResponse(stdhttp.StatusSeeOther, nil)
	response.Location = "/pages/" + page.Name
	return response, nil
}

func (s *Server) pageDeleteHandler(ctx context.Context, input *pageIDInput) (*htmlResponse, error) {
	if err := s.store.DeletePage(ctx, input.ID, s.homePage); err != nil {
		switch {
		case eris.Is(err, wiki.ErrPageNotFound):
			return s.renderErrorResponse(ctx, stdhttp.StatusNotFound, "We couldn't find that page.")
		case eris.Is(err, wiki.ErrHomePageProtected):
			s.warn(ctx, logrus.Fields{"page_id": input.ID}, "declined attempt to delete home page")
			return s.renderErrorResponse(ctx, stdhttp.StatusForbidden, "The home page cannot be deleted.")
		default:
			s.recordError(ctx, err, "deleting page", logrus.Fields{"page_id": input.ID})
			return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, errorFallbackMessage)
		}
	}

	response := newHTMLResponse(stdhttp.StatusSeeOther, nil)
	response.Location = "/pages"
	return response, nil
}

func (s *Server) attachmentDeleteHandler(ctx context.Context, input *attachmentInput) (*htmlResponse, error) {
	page, err := s.store.DeleteAttachment(ctx, input.ID, input.FileID)
	if err != nil {
		if eris.Is(err, wiki.ErrPageNotFound) {
			return s.renderErrorResponse(ctx, stdhttp.StatusNotFound, "We couldn't find that page.")
		}
		s.recordError(ctx, err, "deleting attachment", logrus.Fields{"page_id": input.ID, "file_id": input.FileID})
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, "We couldn't delete that attachment.")
	}

	response := newHTMLResponse(stdhttp.StatusSeeOther, nil)
	response.Location = "/pages/" + page.Name + "/edit"
	return response, nil
}

func (s *Server) fileHandler(ctx context.Context, input *fileInput) (*fileResponse, error) {
	file, err := s.store.GetFile(ctx, input.FileID)
	if err != nil {
		s.recordError(ctx, err, "loading file", logrus.Fields{"file_id": input.FileID})
		return nil, huma.Error500InternalServerError(errorFallbackMessage)
	}

	if file == nil {
		return nil, huma.Error404NotFound("file not found")
	}

	contentType := file.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &fileResponse{
		Status:             stdhttp.StatusOK,
		ContentType:        contentType,
		ContentDisposition: fmt.Sprintf("inline; filename=%q", file.FileName),
		Body:               file.Data,
	}, nil
}

func (s *Server) healthHandler(ctx context.Context, _ *struct{}) (*healthResponse, error) {
	resp := &healthResponse{}
	resp.Body.Status = "ok"
	resp.Body.Database = "ok"

	sqlDB, err := db.SQLDB(s.db)
	if err != nil {
		s.recordError(ctx, err, "obtaining sql db", nil)
		resp.Body.Status = "degraded"
		resp.Body.Database = "error"
		resp.Status = stdhttp.StatusServiceUnavailable
	} else if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
		s.recordError(ctx, pingErr, "pinging database", nil)
		resp.Body.Status = "degraded"
		resp.Body.Database = "error"
		resp.Status = stdhttp.StatusServiceUnavailable
	}

	if resp.Status == 0 {
		resp.Status = stdhttp.StatusOK
	}

	return resp, nil
}

func (s *Server) attachmentViews(page *wiki.Page) []templates.AttachmentView {
	if page == nil || len(page.Attachments) == 0 {
		return nil
	}

	views := make([]templates.AttachmentView, 0, len(page.Attachments))
	for _, attachment := range page.Attachments {
		views = append(views, templates.AttachmentView{
			FileID:      attachment.FileID,
			FileName:    attachment.FileName,
			MimeType:    attachment.MimeType,
			DownloadURL: "/files/" + attachment.FileID,
			DeleteURL:   fmt.Sprintf("/pages/%d/attachments/%s/delete", page.ID, attachment.FileID),
		})
	}

	return views
}

func (s *Server) readUpload(form multipart.Form) (*wiki.FileUpload, error) {
	headers := form.File["file"]
	if len(headers) == 0 {
		return nil, nil
	}

	header := headers[0]
	if header.Size == 0 {
		return nil, nil
	}
	if header.Size > s.maxUpload {
		return nil, eris.Errorf("uploaded file exceeds limit: %d bytes", header.Size)
	}

	part, err := header.Open()
	if err != nil {
		return nil, eris.Wrap(err, "opening uploaded file")
	}
	defer part.Close()

	data, err := io.ReadAll(io.LimitReader(part, s.maxUpload+1))
	if err != nil {
		return nil, eris.Wrap(err, "reading uploaded file")
	}
	if int64(len(data)) > s.maxUpload {
		return nil, eris.Errorf("uploaded file exceeds limit: %d bytes", len(data))
	}

	return &wiki.FileUpload{
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func (s *Server) renderEditorError(ctx context.Context, status int, input wiki.PageInput, message string) (*htmlResponse, error) {
	data := templates.EditorData{
		Title:        "Edit page • Markwiki",
		PageID:       input.ID,
		Name:         input.Name,
		Content:      input.Content,
		IsNew:        input.ID == 0,
		ErrorMessage: message,
	}

	body, err := renderComponent(ctx, templates.Editor(data))
	if err != nil {
		s.recordError(ctx, err, "rendering editor error", nil)
		return s.renderErrorResponse(ctx, status, message)
	}

	return newHTMLResponse(status, body), nil
}

func newHTMLResponse(status int, body []byte) *htmlResponse {
	return &htmlResponse{
		Status:      status,
		ContentType: htmlContentType,
		Body:        body,
	}
}

func htmlOperation(summary string, statuses ...int) func(op *huma.Operation) {
	return func(op *huma.Operation) {
		if summary != "" {
			op.Summary = summary
		}
		if op.Responses == nil {
			op.Responses = map[string]*huma.Response{}
		}

		statusCodes := append([]int{stdhttp.StatusOK}, statuses...)
		for _, status := range statusCodes {
			code := strconv.Itoa(status)
			op.Responses[code] = &huma.Response{
				Description: stdhttp.StatusText(status),
				Content: map[string]*huma.MediaType{
					htmlContentType: {
						Schema: &huma.Schema{Type: "string"},
					},
				},
			}
		}
	}
}

func (s *Server) classifyError(err error) (int, string) {
	switch {
	case err == nil:
		return stdhttp.StatusInternalServerError, errorFallbackMessage
	case eris.Is(err, wiki.ErrNameRequired):
		return stdhttp.StatusBadRequest, "A page name is required."
	case eris.Is(err, wiki.ErrContentRequired):
		return stdhttp.StatusBadRequest, "Page content is required."
	case eris.Is(err, wiki.ErrPageNotFound):
		return stdhttp.StatusNotFound, "We couldn't find that page."
	case eris.Is(err, wiki.ErrHomePageProtected):
		return stdhttp.StatusForbidden, "The home page cannot be deleted."
	default:
		return stdhttp.StatusInternalServerError, errorFallbackMessage
	}
}

func (s *Server) renderErrorResponse(ctx context.Context, status int, message string) (*htmlResponse, error) {
	label := fmt.Sprintf("%d %s", status, stdhttp.StatusText(status))
	title := fmt.Sprintf("%s • Markwiki", label)
	component := templates.ErrorPage(templates.ErrorPageData{
		Title:       title,
		StatusLabel: label,
		Message:     message,
	})

	body, err := renderComponent(ctx, component)
	if err != nil {
		s.recordError(ctx, err, "rendering error page", logrus.Fields{"status": status})
		fallback := []byte(fmt.Sprintf("<html><body><h1>%s</h1><p>%s</p></body></html>", label, message))
		return newHTMLResponse(status, fallback), nil
	}

	return newHTMLResponse(status, body), nil
}

func (s *Server) recordError(ctx context.Context, err error, message string, fields logrus.Fields) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if fields != nil {
			entry = entry.WithFields(fields)
		}
		if requestID := RequestIDFromContext(ctx); requestID != "" {
			entry = entry.WithField("request_id", requestID)
		}
		entry.Error(message)
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	if s.sentry != nil {
		s.sentry.CaptureException(err)
	}
}

func (s *Server) warn(ctx context.Context, fields logrus.Fields, message string) {
	if s.logger == nil {
		return
	}

	entry := s.logger.WithFields(fields)
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	entry.Warn(message)
}

func firstFormValue(form multipart.Form, key string) string {
	values := form.Value[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
