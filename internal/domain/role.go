package domain

// Wildcard grants every command or field when used as a rule key.
const Wildcard = "*"

// Role is a node in the role tree. Permissions are additive along the parent chain.
type Role struct {
	Name       string                 `gorm:"primaryKey;size:64" yaml:"name" json:"name"`
	Parent     string                 `gorm:"size:64;index" yaml:"parent,omitempty" json:"parent,omitempty"`
	IsAdmin    bool                   `gorm:"not null;default:false" yaml:"admin,omitempty" json:"admin,omitempty"`
	TrustFloor *int                   `yaml:"trust_floor,omitempty" json:"trust_floor,omitempty"`
	Commands   map[string]CommandRule `gorm:"serializer:json" yaml:"commands,omitempty" json:"commands,omitempty"`
	Fields     map[string]FieldRule   `gorm:"serializer:json" yaml:"fields,omitempty" json:"fields,omitempty"`
}

type CommandRule struct {
	MinTrust int `yaml:"min_trust,omitempty" json:"min_trust,omitempty"`
}

type FieldRule struct {
	Read     bool `yaml:"read,omitempty" json:"read,omitempty"`
	Write    bool `yaml:"write,omitempty" json:"write,omitempty"`
	MinTrust int  `yaml:"min_trust,omitempty" json:"min_trust,omitempty"`
}

type FieldAccess string

const (
	FieldRead  FieldAccess = "read"
	FieldWrite FieldAccess = "write"
)

func (r FieldRule) Grants(access FieldAccess) bool {
	switch access {
	case FieldRead:
		return r.Read || r.Write
	case FieldWrite:
		return r.Write
	default:
		return false
	}
}
