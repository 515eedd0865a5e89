package templates

import (
	"context"
	"fmt"
	"html"
	"io"

	"github.com/a-h/templ"
)

// RawHTML returns a templ component that writes the provided HTML without
// escaping. Only sanitized renderer output may pass through here.
func RawHTML(markup string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := io.WriteString(w, markup)
		return err
	})
}

func esc(value string) string {
	return html.EscapeString(value)
}

// Layout wraps a body component with the shared document chrome.
func Layout(data LayoutData, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := fmt.Fprintf(w,
			`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>%s</title></head><body><header><nav><a href="/">Home</a> | <a href="/pages">All pages</a></nav></header><main>`,
			esc(data.Title),
		); err != nil {
			return err
		}

		if err := body.Render(ctx, w); err != nil {
			return err
		}

		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

// PageView renders a wiki page with its attachments and actions.
func PageView(data PageViewData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<article><h1>%s</h1><div class="page-content">`, esc(data.Name)); err != nil {
			return err
		}

		if err := RawHTML(data.HTML).Render(ctx, w); err != nil {
			return err
		}

		if _, err := io.WriteString(w, `</div>`); err != nil {
			return err
		}

		if len(data.Attachments) > 0 {
			if _, err := io.WriteString(w, `<section class="attachments"><h2>Attachments</h2><ul>`); err != nil {
				return err
			}
			for _, attachment := range data.Attachments {
				if _, err := fmt.Fprintf(w,
					`<li><a href="%s">%s</a> <small>%s</small></li>`,
					esc(attachment.DownloadURL), esc(attachment.FileName), esc(attachment.MimeType),
				); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, `</ul></section>`); err != nil {
				return err
			}
		}

		if _, err := fmt.Fprintf(w,
			`<footer><small>Last modified %s</small> <a href="%s">Edit</a>`,
			esc(data.LastModified), esc(data.EditURL),
		); err != nil {
			return err
		}

		if data.CanDelete {
			if _, err := fmt.Fprintf(w,
				`<form method="post" action="%s" class="inline"><button type="submit">Delete page</button></form>`,
				esc(data.DeleteURL),
			); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, `</footer></article>`)
		return err
	})

	return Layout(LayoutData{Title: data.Title}, body)
}

// PageList renders the listing of all pages.
func PageList(data PageListData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<h1>All pages</h1>`); err != nil {
			return err
		}

		if len(data.Pages) == 0 {
			_, err := io.WriteString(w, `<p>No pages yet. Visit the <a href="/">home page</a> to create the first one.</p>`)
			return err
		}

		if _, err := io.WriteString(w, `<ul class="page-list">`); err != nil {
			return err
		}
		for _, page := range data.Pages {
			if _, err := fmt.Fprintf(w,
				`<li><a href="%s">%s</a> <small>%s</small></li>`,
				esc(page.URL), esc(page.Name), esc(page.LastModified),
			); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, `</ul>`)
		return err
	})

	return Layout(LayoutData{Title: data.Title}, body)
}

// Editor renders the create/edit form for a page.
func Editor(data EditorData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		heading := "Edit page"
		if data.IsNew {
			heading = "Create page"
		}

		if _, err := fmt.Fprintf(w, `<h1>%s</h1>`, esc(heading)); err != nil {
			return err
		}

		if data.ErrorMessage != "" {
			if _, err := fmt.Fprintf(w, `<p class="error">%s</p>`, esc(data.ErrorMessage)); err != nil {
				return err
			}
		}

		if _, err := io.WriteString(w, `<form method="post" action="/pages" enctype="multipart/form-data">`); err != nil {
			return err
		}

		if data.PageID != 0 {
			if _, err := fmt.Fprintf(w, `<input type="hidden" name="id" value="%d">`, data.PageID); err != nil {
				return err
			}
		}

		nameAttrs := ""
		if data.NameLocked {
			nameAttrs = ` readonly`
		}
		if _, err := fmt.Fprintf(w,
			`<label>Name <input type="text" name="name" value="%s" required%s></label>`,
			esc(data.Name), nameAttrs,
		); err != nil {
			return err
		}

		if _, err := fmt.Fprintf(w,
			`<label>Content <textarea name="content" rows="20" required>%s</textarea></label>`,
			esc(data.Content),
		); err != nil {
			return err
		}

		if _, err := io.WriteString(w,
			`<label>Attach file <input type="file" name="file"></label><button type="submit">Save</button></form>`,
		); err != nil {
			return err
		}

		if len(data.Attachments) > 0 {
			if _, err := io.WriteString(w, `<section class="attachments"><h2>Attachments</h2><ul>`); err != nil {
				return err
			}
			for _, attachment := range data.Attachments {
				if _, err := fmt.Fprintf(w,
					`<li><a href="%s">%s</a><form method="post" action="%s" class="inline"><button type="submit">Remove</button></form></li>`,
					esc(attachment.DownloadURL), esc(attachment.FileName), esc(attachment.DeleteURL),
				); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, `</ul></section>`); err != nil {
				return err
			}
		}

		return nil
	})

	return Layout(LayoutData{Title: data.Title}, body)
}

// MissingPage renders the create prompt shown for unknown page names.
func MissingPage(data MissingPageData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<h1>%s</h1><p>This page doesn't exist yet.</p><p><a href="%s">Create it</a></p>`,
			esc(data.Name), esc(data.EditURL),
		)
		return err
	})

	return Layout(LayoutData{Title: data.Title}, body)
}

// ErrorPage renders a user-facing error view.
func ErrorPage(data ErrorPageData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<h1>%s</h1><p>%s</p><p><a href="/">Back to the home page</a></p>`,
			esc(data.StatusLabel), esc(data.Message),
		)
		return err
	})

	return Layout(LayoutData{Title: data.Title}, body)
}
