package core

import (
	"bytes"
	"context"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

var (
	templates tmplCache
	tmplMu    sync.RWMutex

	errTemplateNotFound = errors.New("email template not found")
)

type (
	tmplCacheEntry struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}
	tmplCache map[string]tmplCacheEntry // {name: entry}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName string
		Data    interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// Send renders and delivers msg, reporting delivery failures.
		Send(ctx context.Context, msg *EmailMessage) error
		// SendMessages sends messages concurrently; failures are only logged.
		SendMessages(messages ...*EmailMessage)
	}
)

// ParseEmailTemplates loads `<name>.txt` and `<name>.gohtml` templates found in `dir` of `fsys`.
// Files starting with "_" are base layouts shared by every template.
func ParseEmailTemplates(fsys fs.FS, dir string, logger Logger) {
	cache := make(tmplCache)

	fps, err := fs.Glob(fsys, path.Join(dir, "*"))
	if err != nil {
		logger.Error("core.ParseEmailTemplates: globbing templates", err)
		return
	}

	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		entry := cache[name]
		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(fsys, path.Join(dir, "_base.txt"), fp)
			if err != nil {
				logger.Error("core.ParseEmailTemplates: parsing "+fname, err)
				continue
			}
			entry.text = tmpl.Option("missingkey=error")
		} else {
			tmpl, err := htmltmpl.ParseFS(fsys, path.Join(dir, "_base.gohtml"), fp)
			if err != nil {
				logger.Error("core.ParseEmailTemplates: parsing "+fname, err)
				continue
			}
			entry.html = tmpl.Option("missingkey=error")
		}
		cache[name] = entry
	}

	tmplMu.Lock()
	templates = cache
	tmplMu.Unlock()
}

func getTemplate(name string) (tmplCacheEntry, bool) {
	tmplMu.RLock()
	defer tmplMu.RUnlock()
	entry, ok := templates[name]
	return entry, ok
}

func (m *EmailMessage) contextData(appName string) ContextData {
	return ContextData{AppName: appName, Data: m.TemplateData}
}

// Render fills TextContent & HTMLContent. A missing template is an error.
func (m *EmailMessage) Render(appName string) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if m.TemplateName == "" {
		return nil
	}

	entry, ok := getTemplate(m.TemplateName)
	if !ok || (entry.text == nil && entry.html == nil) {
		return errors.Wrap(errTemplateNotFound, m.TemplateName)
	}

	data := m.contextData(appName)
	var buff bytes.Buffer
	if entry.text != nil {
		if err := entry.text.Execute(&buff, data); err != nil {
			return errors.Wrap(err, "rendering text template")
		}
		m.TextContent = buff.String()
		buff.Reset()
	}
	if entry.html != nil {
		if err := entry.html.Execute(&buff, data); err != nil {
			return errors.Wrap(err, "rendering html template")
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
