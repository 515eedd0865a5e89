package templates

// LayoutData carries the shared chrome values for every rendered view.
type LayoutData struct {
	Title string
}

// AttachmentView is a single attachment row on a page or editor view.
type AttachmentView struct {
	FileID      string
	FileName    string
	MimeType    string
	DownloadURL string
	DeleteURL   string
}

// PageViewData contains the dynamic values for a rendered wiki page.
type PageViewData struct {
	Title        string
	Name         string
	HTML         string
	LastModified string
	EditURL      string
	DeleteURL    string
	CanDelete    bool
	Attachments  []AttachmentView
}

// PageListItem is one entry in the all-pages listing.
type PageListItem struct {
	Name         string
	URL          string
	LastModified string
}

// PageListData bundles template data for the listing view.
type PageListData struct {
	Title string
	Pages []PageListItem
}

// EditorData contains the values rendered into the page editor form.
type EditorData struct {
	Title        string
	PageID       uint
	Name         string
	Content      string
	IsNew        bool
	NameLocked   bool
	ErrorMessage string
	Attachments  []AttachmentView
}

// MissingPageData renders the create prompt for an unknown page name.
type MissingPageData struct {
	Title   string
	Name    string
	EditURL string
}

// ErrorPageData holds information for rendering an error view.
type ErrorPageData struct {
	Title       string
	StatusLabel string
	Message     string
}
