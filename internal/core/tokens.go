package core

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"engagement/internal/docstore"
	"engagement/pkg/domain"
)

const (
	tokenSecretBytes = 32
	// tokenQueryChunk caps the values in one "in" filter.
	tokenQueryChunk = 30
)

// TokenRecord is the secret record stored at _api_tokens/{token}.
type TokenRecord struct {
	Token        string      `json:"-"`
	ProjectID    string      `json:"projectId"`
	Role         domain.Role `json:"role"`
	UID          string      `json:"uid"`
	Name         string      `json:"name"`
	CreationDate time.Time   `json:"creationDate"`
}

func (r TokenRecord) data() map[string]any {
	return map[string]any{
		"projectId":    r.ProjectID,
		"role":         string(r.Role),
		"uid":          r.UID,
		"name":         r.Name,
		"creationDate": r.CreationDate,
	}
}

func tokenRecordFrom(doc domain.Document) TokenRecord {
	rec := TokenRecord{Token: doc.ID}
	rec.ProjectID, _ = doc.Data["projectId"].(string)
	role, _ := doc.Data["role"].(string)
	rec.Role = domain.Role(role)
	rec.UID, _ = doc.Data["uid"].(string)
	rec.Name, _ = doc.Data["name"].(string)
	if s, ok := doc.Data["creationDate"].(string); ok {
		rec.CreationDate, _ = time.Parse(time.RFC3339Nano, s)
	}
	return rec
}

// IssuedToken is returned once to the caller; the secret is not retrievable later.
type IssuedToken struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

// IssueToken creates a bearer token for project with the given role. The secret
// record is written first; project gains the uid only after that write succeeds.
// The two writes are not atomic: a failure saving the project leaves a secret
// record that never validates because its uid is absent from the project.
func (s *Service) IssueToken(ctx context.Context, project *domain.Project, role domain.Role, name string) (IssuedToken, error) {
	var issued IssuedToken
	err := s.run(ctx, "IssueToken", func(ctx context.Context) error {
		if project == nil || project.ID() == "" {
			return domain.NewValidationError("token", "projectId", "project must be persisted")
		}
		if !domain.ValidRole(role) {
			return domain.NewValidationError("token", "role", fmt.Sprintf("unknown role %q", role))
		}
		secret, err := s.newSecret()
		if err != nil {
			return err
		}
		rec := TokenRecord{
			Token:        secret,
			ProjectID:    project.ID(),
			Role:         role,
			UID:          uuid.NewString(),
			Name:         name,
			CreationDate: s.clock.Now().UTC(),
		}
		secretPath := domain.JoinPath(CollectionTokens, secret)
		if err := s.store.Set(ctx, secretPath, rec.data()); err != nil {
			return fmt.Errorf("write token record: %w", err)
		}
		if err := project.AddToken(domain.TokenInfo{
			UID:          rec.UID,
			Role:         rec.Role,
			Name:         rec.Name,
			CreationDate: rec.CreationDate,
		}); err != nil {
			_ = s.store.Delete(ctx, secretPath)
			return err
		}
		if err := s.saveProject(ctx, project); err != nil {
			return fmt.Errorf("append project token: %w", err)
		}
		issued = IssuedToken{UID: rec.UID, Token: secret}
		return nil
	})
	return issued, err
}

func (s *Service) newSecret() (string, error) {
	buf := make([]byte, tokenSecretBytes)
	if _, err := io.ReadFull(s.entropy, buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidateToken returns the token record when token exists, carries one of
// accepted roles, its project exists and the project still lists its uid. Every
// other case returns nil; an error is returned only when the store fails.
func (s *Service) ValidateToken(ctx context.Context, token string, accepted ...domain.Role) (*TokenRecord, error) {
	var out *TokenRecord
	err := s.run(ctx, "ValidateToken", func(ctx context.Context) error {
		if !docstore.ValidID(token) {
			return nil
		}
		doc, ok, err := s.store.Get(ctx, domain.JoinPath(CollectionTokens, token))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		rec := tokenRecordFrom(doc)
		if !roleAccepted(rec.Role, accepted) {
			return nil
		}
		project, ok, err := s.loadProject(ctx, rec.ProjectID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		for _, t := range project.Tokens() {
			if t.UID == rec.UID {
				out = &rec
				return nil
			}
		}
		return nil
	})
	return out, err
}

func roleAccepted(role domain.Role, accepted []domain.Role) bool {
	for _, r := range accepted {
		if r == role {
			return true
		}
	}
	return false
}

// RevokeTokens deletes every secret record whose uid is in uids and returns how
// many were removed. Unknown or already revoked uids are ignored.
func (s *Service) RevokeTokens(ctx context.Context, uids []string) (int, error) {
	var revoked int
	err := s.run(ctx, "RevokeTokens", func(ctx context.Context) error {
		var paths []string
		for start := 0; start < len(uids); start += tokenQueryChunk {
			end := start + tokenQueryChunk
			if end > len(uids) {
				end = len(uids)
			}
			values := make([]any, 0, end-start)
			for _, uid := range uids[start:end] {
				values = append(values, uid)
			}
			docs, err := s.store.Query(ctx, domain.Query{Collection: CollectionTokens}.WhereIn("uid", values))
			if err != nil {
				return fmt.Errorf("find tokens: %w", err)
			}
			for _, d := range docs {
				paths = append(paths, d.Path)
			}
		}
		if err := s.deletePaths(ctx, paths); err != nil {
			return fmt.Errorf("revoke tokens: %w", err)
		}
		revoked = len(paths)
		return nil
	})
	return revoked, err
}

// RevokeProjectTokens deletes every secret record issued for projectID.
func (s *Service) RevokeProjectTokens(ctx context.Context, projectID string) (int, error) {
	var revoked int
	err := s.run(ctx, "RevokeProjectTokens", func(ctx context.Context) error {
		docs, err := s.store.Query(ctx, domain.Query{Collection: CollectionTokens}.Where("projectId", projectID))
		if err != nil {
			return fmt.Errorf("find project tokens: %w", err)
		}
		paths := make([]string, len(docs))
		for i, d := range docs {
			paths[i] = d.Path
		}
		if err := s.deletePaths(ctx, paths); err != nil {
			return fmt.Errorf("revoke project tokens: %w", err)
		}
		revoked = len(paths)
		return nil
	})
	return revoked, err
}

// FindRemovedTokens returns the sorted uids present in before but absent from after.
func FindRemovedTokens(before, after []domain.TokenInfo) []string {
	kept := make(map[string]struct{}, len(after))
	for _, t := range after {
		kept[t.UID] = struct{}{}
	}
	removed := make(map[string]struct{})
	for _, t := range before {
		if _, ok := kept[t.UID]; !ok {
			removed[t.UID] = struct{}{}
		}
	}
	out := make([]string, 0, len(removed))
	for uid := range removed {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

// VerifyAndGetProject loads projectID and checks that email holds one of
// accepted roles on it, owner when none are given.
func (s *Service) VerifyAndGetProject(ctx context.Context, projectID, email string, accepted ...domain.Role) (*domain.Project, error) {
	if len(accepted) == 0 {
		accepted = []domain.Role{domain.RoleOwner}
	}
	var project *domain.Project
	err := s.run(ctx, "VerifyAndGetProject", func(ctx context.Context) error {
		p, ok, err := s.loadProject(ctx, projectID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError{Entity: "project", ID: projectID}
		}
		if !p.HasRole(email, accepted...) {
			return &domain.PermissionError{Reason: fmt.Sprintf("%s lacks a required role on project %s", email, projectID)}
		}
		project = p
		return nil
	})
	return project, err
}
