package host

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/common/validation"
	"esign-sync/internal/models"
)

// MaxFilenameLength bounds stored file names.
const MaxFilenameLength = 200

// FSAttachments keeps each attachment at <root>/<hostKey>/<uuid>/<filename>.
type FSAttachments struct {
	root   string
	logger logging.Logger
}

func NewFSAttachments(root string, logger logging.Logger) (*FSAttachments, error) {
	if root == "" {
		return nil, errors.ConfigError("attachments directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.InternalError("create attachments directory", err)
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &FSAttachments{root: root, logger: logger.WithFields(logging.String("component", "attachments"))}, nil
}

func (s *FSAttachments) hostDir(hostKey string) (string, error) {
	if !validation.IsHostKey(hostKey) {
		return "", errors.ValidationErrorf("invalid host key %q", hostKey)
	}
	return filepath.Join(s.root, hostKey), nil
}

func (s *FSAttachments) List(ctx context.Context, hostKey string) ([]Attachment, error) {
	dir, err := s.hostDir(hostKey)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []Attachment{}, nil
	}
	if err != nil {
		return nil, errors.InternalError("list attachments", err)
	}

	out := make([]Attachment, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		att, err := s.load(hostKey, entry.Name())
		if err != nil {
			s.logger.Warn("Skipping unreadable attachment",
				logging.String("host_key", hostKey),
				logging.String("id", entry.Name()),
				logging.Err(err),
			)
			continue
		}
		out = append(out, *att)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Filename < out[j].Filename
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *FSAttachments) load(hostKey, id string) (*Attachment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFoundError("attachment")
	}
	dir := filepath.Join(s.root, hostKey, id)
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, errors.NotFoundError("attachment")
	}
	if err != nil {
		return nil, errors.InternalError("read attachment", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil {
			return nil, errors.InternalError("stat attachment", err)
		}
		return &Attachment{
			ID:        id,
			HostKey:   hostKey,
			Filename:  f.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime().UTC(),
		}, nil
	}
	return nil, errors.NotFoundError("attachment")
}

func (s *FSAttachments) Open(ctx context.Context, hostKey, id string) (*Attachment, io.ReadCloser, error) {
	if _, err := s.hostDir(hostKey); err != nil {
		return nil, nil, err
	}
	att, err := s.load(hostKey, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.root, hostKey, id, att.Filename))
	if err != nil {
		return nil, nil, errors.InternalError("open attachment", err)
	}
	return att, f, nil
}

func (s *FSAttachments) Create(ctx context.Context, actor models.Actor, hostKey, filename string, data []byte) (*Attachment, error) {
	dir, err := s.hostDir(hostKey)
	if err != nil {
		return nil, err
	}
	name := SafeFilename(filename)
	if name == "" {
		return nil, errors.ValidationError("filename is required")
	}
	if actor.IsZero() {
		return nil, errors.AuthError("an actor is required to create attachments")
	}

	id := uuid.NewString()
	attDir := filepath.Join(dir, id)
	if err := os.MkdirAll(attDir, 0o750); err != nil {
		return nil, errors.InternalError("create attachment directory", err)
	}

	// Write to a temp file first so List never sees a partial file.
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		os.RemoveAll(attDir)
		return nil, errors.InternalError("create attachment", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		os.RemoveAll(attDir)
		return nil, errors.InternalError("write attachment", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		os.RemoveAll(attDir)
		return nil, errors.InternalError("write attachment", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(attDir, name)); err != nil {
		os.Remove(tmp.Name())
		os.RemoveAll(attDir)
		return nil, errors.InternalError("store attachment", err)
	}

	s.logger.Info("Attachment created",
		logging.String("host_key", hostKey),
		logging.String("id", id),
		logging.String("filename", name),
		logging.String("actor", actor.Key),
		logging.Int("bytes", len(data)),
	)
	return s.load(hostKey, id)
}

// Exists reports whether an attachment with exactly this file name is
// stored for the host.
func (s *FSAttachments) Exists(ctx context.Context, hostKey, filename string) (bool, error) {
	list, err := s.List(ctx, hostKey)
	if err != nil {
		return false, err
	}
	name := SafeFilename(filename)
	for _, att := range list {
		if strings.EqualFold(att.Filename, name) {
			return true, nil
		}
	}
	return false, nil
}

// SafeFilename strips directories, quotes, backslashes and control
// characters from a client-supplied name.
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == ".." || name == "/" {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) || r == '"' {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if len(out) > MaxFilenameLength {
		ext := filepath.Ext(out)
		if len(ext) > 16 {
			ext = ""
		}
		out = out[:MaxFilenameLength-len(ext)] + ext
	}
	return out
}
