package domain

import (
	"strings"
	"time"
)

// Role governs what a user may do on a project and its updates.
type Role string

// Project roles.
const (
	RoleOwner         Role = "owner"
	RoleAdministrator Role = "administrator"
	RoleAuthor        Role = "author"
	RoleMember        Role = "member"
)

// AllRoles lists every role in descending privilege order.
var AllRoles = []Role{RoleOwner, RoleAdministrator, RoleAuthor, RoleMember}

// EditorRoles may create, change and delete updates.
var EditorRoles = []Role{RoleOwner, RoleAdministrator, RoleAuthor}

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

func roleNames() []string {
	out := make([]string, len(AllRoles))
	for i, r := range AllRoles {
		out[i] = string(r)
	}
	return out
}

// CollectionProjects is the top-level collection holding projects.
const CollectionProjects = "projects"

var tokenInfoSchema = NewSchema("token",
	Field{Name: "uid", Kind: KindString, Required: true},
	Field{Name: "role", Kind: KindString, Required: true, Enum: roleNames()},
	Field{Name: "name", Kind: KindString},
	Field{Name: "creationDate", Kind: KindTimestamp, Required: true},
)

// ProjectSchema validates project records.
var ProjectSchema = NewSchema("project",
	Field{Name: "name", Kind: KindString, Required: true},
	Field{Name: "description", Kind: KindString},
	Field{
		Name:    "updateTypes",
		Kind:    KindEnumSet,
		Enum:    updateTypeNames(),
		Default: func() any { return updateTypeNames() },
	},
	Field{Name: "teams", Kind: KindStringList},
	Field{Name: "roles", Kind: KindRoleMap, Required: true, Enum: roleNames(), Check: requireOwner},
	Field{Name: "tokens", Kind: KindObjectList, Elem: tokenInfoSchema},
)

func requireOwner(v any) string {
	roles, _ := v.(map[string]string)
	for _, role := range roles {
		if Role(role) == RoleOwner {
			return ""
		}
	}
	return "must contain at least one owner"
}

// TokenInfo is the non-secret description of an API token kept on the project.
type TokenInfo struct {
	UID          string    `json:"uid"`
	Role         Role      `json:"role"`
	Name         string    `json:"name"`
	CreationDate time.Time `json:"creationDate"`
}

func (t TokenInfo) toValue() map[string]any {
	return map[string]any{
		"uid":          t.UID,
		"role":         string(t.Role),
		"name":         t.Name,
		"creationDate": t.CreationDate.UTC(),
	}
}

// Project groups updates and carries the role table guarding them.
type Project struct {
	Model
}

// NewProject constructs a project, validating raw when it is non-nil.
func NewProject(id string, raw map[string]any) (*Project, error) {
	p := &Project{}
	if err := p.init(ProjectSchema, CollectionProjects, id, raw); err != nil {
		return nil, err
	}
	return p, nil
}

// ProjectFromStorageRecord decodes the role keys and loads the project. Invalid
// records come back degraded rather than failing.
func ProjectFromStorageRecord(id string, raw map[string]any) *Project {
	p := &Project{}
	p.load(ProjectSchema, CollectionProjects, id, DecodeRoleKeys(raw))
	return p
}

// ToStorageRecord validates the project and encodes role keys for storage.
func (p *Project) ToStorageRecord() (map[string]any, error) {
	record, err := p.Model.ToStorageRecord()
	if err != nil {
		return nil, err
	}
	return EncodeRoleKeys(record), nil
}

// Name returns the project name.
func (p *Project) Name() string { return stringValue(p.values["name"]) }

// Description returns the project description.
func (p *Project) Description() string { return stringValue(p.values["description"]) }

// Teams returns the ordered team list.
func (p *Project) Teams() []string { return stringSlice(p.values["teams"]) }

// UpdateTypes returns the update types enabled on the project.
func (p *Project) UpdateTypes() []UpdateType {
	names := stringSlice(p.values["updateTypes"])
	out := make([]UpdateType, len(names))
	for i, n := range names {
		out[i] = UpdateType(n)
	}
	return out
}

// UpdateTypeEnabled reports whether t is in the project's allow-list.
func (p *Project) UpdateTypeEnabled(t UpdateType) bool {
	for _, enabled := range p.UpdateTypes() {
		if enabled == t {
			return true
		}
	}
	return false
}

// Roles returns a copy of the email to role table.
func (p *Project) Roles() map[string]Role {
	raw, _ := p.values["roles"].(map[string]string)
	out := make(map[string]Role, len(raw))
	for email, role := range raw {
		out[email] = Role(role)
	}
	return out
}

// HasRole reports whether email holds any of roles on the project.
func (p *Project) HasRole(email string, roles ...Role) bool {
	raw, _ := p.values["roles"].(map[string]string)
	held, ok := raw[email]
	if !ok {
		return false
	}
	for _, r := range roles {
		if Role(held) == r {
			return true
		}
	}
	return false
}

// Tokens returns the token metadata list.
func (p *Project) Tokens() []TokenInfo {
	raw, _ := p.values["tokens"].([]map[string]any)
	out := make([]TokenInfo, 0, len(raw))
	for _, entry := range raw {
		info := TokenInfo{
			UID:  stringValue(entry["uid"]),
			Role: Role(stringValue(entry["role"])),
			Name: stringValue(entry["name"]),
		}
		if t, ok := entry["creationDate"].(time.Time); ok {
			info.CreationDate = t
		}
		out = append(out, info)
	}
	return out
}

// AddToken appends token metadata through a validated partial update.
func (p *Project) AddToken(info TokenInfo) error {
	tokens := make([]map[string]any, 0, len(p.Tokens())+1)
	for _, t := range p.Tokens() {
		tokens = append(tokens, t.toValue())
	}
	tokens = append(tokens, info.toValue())
	return p.Update(map[string]any{"tokens": tokens})
}

const (
	emailDot        = "."
	encodedEmailDot = "@@"
)

// EncodeEmailKey makes an email usable as a document-store map key.
func EncodeEmailKey(email string) string {
	return strings.ReplaceAll(email, emailDot, encodedEmailDot)
}

// DecodeEmailKey reverses EncodeEmailKey.
func DecodeEmailKey(key string) string {
	return strings.ReplaceAll(key, encodedEmailDot, emailDot)
}

// EncodeRoleKeys returns a shallow copy of record with the role keys encoded.
func EncodeRoleKeys(record map[string]any) map[string]any {
	return mapRoleKeys(record, EncodeEmailKey)
}

// DecodeRoleKeys returns a shallow copy of record with the role keys decoded.
func DecodeRoleKeys(record map[string]any) map[string]any {
	return mapRoleKeys(record, DecodeEmailKey)
}

func mapRoleKeys(record map[string]any, fn func(string) string) map[string]any {
	if record == nil {
		return nil
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	switch roles := record["roles"].(type) {
	case map[string]string:
		mapped := make(map[string]string, len(roles))
		for email, role := range roles {
			mapped[fn(email)] = role
		}
		out["roles"] = mapped
	case map[string]any:
		mapped := make(map[string]any, len(roles))
		for email, role := range roles {
			mapped[fn(email)] = role
		}
		out["roles"] = mapped
	}
	return out
}
