package talk

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kikaiken/kikaiken/pkg/api"
	"github.com/kikaiken/kikaiken/pkg/storage"
	"github.com/kikaiken/kikaiken/pkg/text"
)

// Record listing bounds.
const (
	DefaultRecordLimit = 20
	MaxRecordLimit     = 100
)

// ListKeys returns one page of stored keys together with the rendered bot
// text. Secrets and notices are only included when show is set.
func (s *Service) ListKeys(ctx context.Context, show bool, page int) (*api.APIKeyList, error) {
	recs, err := s.store.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = keyLine(r, show)
	}
	pageLines, pages := text.Paginate(lines, text.DefaultRowsPerPage, page)

	list := &api.APIKeyList{
		Page:  page,
		Pages: pages,
		Total: len(recs),
		Text:  text.Render(lines, text.DefaultRowsPerPage, page),
	}
	if pageLines != nil {
		start := (page - 1) * text.DefaultRowsPerPage
		for _, r := range recs[start : start+len(pageLines)] {
			k := api.APIKey{ID: r.ID, ProviderType: r.ProviderType, ModelName: r.ModelName}
			if show {
				k.Key = r.Key
				k.Notice = r.Notice
			}
			list.Data = append(list.Data, k)
		}
	}
	return list, nil
}

func keyLine(r storage.APIKeyRecord, show bool) string {
	if show {
		return fmt.Sprintf("#%d %s %s %s %s", r.ID, r.ProviderType, r.ModelName, r.Key, r.Notice)
	}
	return fmt.Sprintf("#%d %s %s", r.ID, r.ProviderType, r.ModelName)
}

// AddKey stores a vendor key. Returns storage.ErrConflict for a duplicate.
func (s *Service) AddKey(ctx context.Context, req *api.APIKeyRequest) (*api.APIKey, error) {
	rec := &storage.APIKeyRecord{
		ProviderType: req.ProviderType,
		ModelName:    req.ModelName,
		Key:          req.Key,
		Notice:       req.Notice,
	}
	if err := s.store.AddKey(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("api key added", "id", rec.ID, "provider", rec.ProviderType, "model", rec.ModelName)
	return &api.APIKey{ID: rec.ID, ProviderType: rec.ProviderType, ModelName: rec.ModelName, Notice: rec.Notice}, nil
}

// DeleteKey removes a stored key and drops the cached adapters so that the
// key is no longer used.
func (s *Service) DeleteKey(ctx context.Context, id int64) error {
	if err := s.store.DeleteKey(ctx, id); err != nil {
		return err
	}
	s.logger.Info("api key deleted", "id", id)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropModelsLocked()
}

// ListRecords returns the newest messages of uid. limit is clamped to
// [1, MaxRecordLimit]; zero means DefaultRecordLimit.
func (s *Service) ListRecords(ctx context.Context, uid string, limit int) (*api.RecordList, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecordLimit
	case limit > MaxRecordLimit:
		limit = MaxRecordLimit
	}
	recs, err := s.store.QueryRecords(ctx, uid, limit)
	if err != nil {
		return nil, err
	}
	list := &api.RecordList{Object: "list", Data: make([]api.Record, 0, len(recs))}
	for _, r := range recs {
		list.Data = append(list.Data, api.Record{ID: r.ID, UID: r.UID, Content: r.Content, CreatedAt: r.CreatedAt})
	}
	return list, nil
}

// Command runs a superuser bot command and returns the reply text:
//
//	apikey list [-s] [-p <page>]
//	apikey add <provider> <model> <key> [notice...]
//	apikey del <id>
func (s *Service) Command(ctx context.Context, line string) string {
	args := strings.Fields(line)
	if len(args) < 2 || args[0] != "apikey" {
		return text.UnknownCommand()
	}

	switch args[1] {
	case "list":
		show, page, ok := parseListFlags(args[2:])
		if !ok {
			return text.UnknownCommand()
		}
		list, err := s.ListKeys(ctx, show, page)
		if err != nil {
			return s.failed("apikey list", err)
		}
		return list.Text

	case "add":
		if len(args) < 5 {
			return text.UnknownCommand()
		}
		req := &api.APIKeyRequest{
			ProviderType: args[2],
			ModelName:    args[3],
			Key:          args[4],
			Notice:       strings.Join(args[5:], " "),
		}
		if apiErr := api.Validate(req); apiErr != nil {
			return text.InvalidArgument(apiErr.Message)
		}
		key, err := s.AddKey(ctx, req)
		if errors.Is(err, storage.ErrConflict) {
			return text.KeyExists()
		}
		if err != nil {
			return s.failed("apikey add", err)
		}
		return text.KeyAdded(key.ID, key.ProviderType, key.ModelName)

	case "del":
		if len(args) != 3 {
			return text.UnknownCommand()
		}
		id, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return text.InvalidArgument("id must be a number")
		}
		err = s.DeleteKey(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return text.NoResult()
		}
		if err != nil {
			return s.failed("apikey del", err)
		}
		return text.KeyDeleted(id)
	}
	return text.UnknownCommand()
}

func (s *Service) failed(command string, err error) string {
	s.logger.Error("command failed", "command", command, "error", err)
	return text.GlobalException()
}

func parseListFlags(args []string) (show bool, page int, ok bool) {
	page = 1
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-s":
			show = true
		case "-p":
			if i+1 >= len(args) {
				return false, 0, false
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return false, 0, false
			}
			page = n
			i++
		default:
			return false, 0, false
		}
	}
	return show, page, true
}
