package identity

import (
	"context"
	"embed"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	goerrors "github.com/goliatone/go-errors"
)

//go:embed templates
var templatesFS embed.FS

// TemplateModel is the data handed to notification templates.
type TemplateModel struct {
	Account *Account
	Contact Contact
	Code    string
}

// TemplateRenderer renders a named template to a message body.
type TemplateRenderer interface {
	Render(ctx context.Context, name string, model TemplateModel) (string, error)
}

// TemplateSet renders pongo2 templates from a file system. Names map to
// files by extension: "email/x" reads email/x.html, "text/x" reads text/x.txt.
type TemplateSet struct {
	fsys  fs.FS
	mu    sync.RWMutex
	cache map[string]*pongo2.Template
}

// NewTemplateSet returns the embedded default templates.
func NewTemplateSet() *TemplateSet {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	return NewTemplateSetFS(sub)
}

// NewTemplateSetFS renders templates found in fsys.
func NewTemplateSetFS(fsys fs.FS) *TemplateSet {
	return &TemplateSet{fsys: fsys, cache: map[string]*pongo2.Template{}}
}

func (s *TemplateSet) Render(ctx context.Context, name string, model TemplateModel) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tpl, err := s.lookup(name)
	if err != nil {
		return "", err
	}

	data := pongo2.Context{
		"code":         model.Code,
		"contact":      model.Contact.Value,
		"contact_type": model.Contact.Type.Label(),
	}
	if model.Account != nil {
		data["first_name"] = model.Account.FirstName
		data["last_name"] = model.Account.LastName
		data["username"] = model.Account.Username
	}

	out, err := tpl.Execute(data)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render template").
			WithMetadata(map[string]any{"template": name})
	}
	return strings.TrimSpace(out), nil
}

func (s *TemplateSet) lookup(name string) (*pongo2.Template, error) {
	s.mu.RLock()
	tpl, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	file := name + ".txt"
	if strings.HasPrefix(name, "email/") {
		file = name + ".html"
	}

	raw, err := fs.ReadFile(s.fsys, path.Clean(file))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryNotFound, "template not found").
			WithMetadata(map[string]any{"template": name})
	}

	tpl, err = pongo2.FromString(string(raw))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to parse template").
			WithMetadata(map[string]any{"template": name})
	}

	s.mu.Lock()
	s.cache[name] = tpl
	s.mu.Unlock()
	return tpl, nil
}
