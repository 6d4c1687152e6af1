package core

import (
	"context"
	"fmt"

	"engagement/internal/docstore"
	"engagement/pkg/domain"
)

// PushOperation reports what PushUpdate did.
type PushOperation string

const (
	PushAdded   PushOperation = "added"
	PushUpdated PushOperation = "updated"
)

// PushResult is the outcome of one push.
type PushResult struct {
	Operation PushOperation `json:"operation"`
	ID        string        `json:"id"`
}

// PushUpdate creates or edits one update under projectID from payload.
//
// Unless alwaysCreate is set, an existing sibling is looked up by the variant's
// update key: an explicit id must resolve, while a semantic key such as a flow
// update's team picks the newest sibling with that value and falls through to a
// create when there is none. The lookup and the write are separate store calls,
// so concurrent pushes for the same semantic key may both create.
func (s *Service) PushUpdate(ctx context.Context, projectID string, payload map[string]any, alwaysCreate bool) (PushResult, error) {
	var res PushResult
	err := s.run(ctx, "PushUpdate", func(ctx context.Context) error {
		project, ok, err := s.loadProject(ctx, projectID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError{Entity: "project", ID: projectID}
		}

		kind, _ := payload["type"].(string)
		if kind == "" {
			return domain.NewValidationError("update", "type", "is required")
		}
		t := domain.UpdateType(kind)
		if !project.UpdateTypeEnabled(t) {
			return domain.NewValidationError("update", "type",
				fmt.Sprintf("update type %q is not enabled for project %s", kind, projectID))
		}
		variant, ok := s.registry.Lookup(t)
		if !ok {
			s.logger.Error("enabled update type has no implementation", "project", projectID, "type", kind)
			return domain.NewValidationError("update", "type", fmt.Sprintf("update type %q is not supported", kind))
		}

		if !alwaysCreate {
			existing, err := s.findExisting(ctx, project, variant, payload)
			if err != nil {
				return err
			}
			if existing != nil {
				if err := existing.Update(payload); err != nil {
					return err
				}
				record, err := existing.ToStorageRecord()
				if err != nil {
					return err
				}
				path, err := existing.Path()
				if err != nil {
					return err
				}
				if err := s.store.Set(ctx, path, record); err != nil {
					return fmt.Errorf("replace update: %w", err)
				}
				res = PushResult{Operation: PushUpdated, ID: existing.ID()}
				return nil
			}
		}

		u, err := s.registry.New(t, "", payload)
		if err != nil {
			return err
		}
		u.SetParent(project)
		record, err := u.ToStorageRecord()
		if err != nil {
			return err
		}
		collection, err := u.CollectionPath()
		if err != nil {
			return err
		}
		doc, err := s.store.Create(ctx, collection, record)
		if err != nil {
			return fmt.Errorf("create update: %w", err)
		}
		u.SetID(doc.ID)
		res = PushResult{Operation: PushAdded, ID: doc.ID}
		return nil
	})
	return res, err
}

// findExisting resolves the sibling an upsert should edit, nil when the push
// should create.
func (s *Service) findExisting(ctx context.Context, project *domain.Project, variant domain.UpdateVariant, payload map[string]any) (*domain.Update, error) {
	key := variant.Key
	if key == "" {
		key = domain.KeyID
	}
	if key != domain.KeyID && !variant.Schema.Has(key) {
		return nil, nil
	}
	value, present := payload[key]
	if !present || value == nil {
		return nil, nil
	}
	collection := updatesCollection(project.ID())

	if key == domain.KeyID {
		id, ok := value.(string)
		if !ok || !docstore.ValidID(id) {
			return nil, domain.NewValidationError("update", domain.KeyID, "must be a non-empty document id")
		}
		doc, found, err := s.store.Get(ctx, domain.JoinPath(collection, id))
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, domain.NewValidationError("update", domain.KeyID, fmt.Sprintf("no update with id %q in project %s", id, project.ID()))
		}
		return s.loadUpdate(doc, project), nil
	}

	docs, err := s.store.Query(ctx, domain.Query{
		Collection: collection,
		OrderBy:    "date",
		Descending: true,
		Limit:      1,
	}.Where("type", string(variant.Type)).Where(key, value))
	if err != nil {
		return nil, fmt.Errorf("find update by %s: %w", key, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return s.loadUpdate(docs[0], project), nil
}
