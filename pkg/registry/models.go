package registry

import (
	"time"

	"gorm.io/datatypes"
)

// Registrant is a person or a group in the registry. Groups reference their
// member individuals through GroupMembership rows.
type Registrant struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"index"`
	GivenName    string
	FamilyName   string
	AddlName     string
	IsRegistrant bool `gorm:"index"`
	IsGroup      bool `gorm:"index"`
	Birthdate    string
	Gender       string
	ProfileImage string            `gorm:"type:text"` // base64 payload
	Extra        datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Registrant) TableName() string {
	return "registrants"
}

type PhoneNumber struct {
	ID            int64 `gorm:"primaryKey;autoIncrement"`
	RegistrantID  int64 `gorm:"index"`
	PhoneNo       string
	DateCollected string
	Disabled      bool
	CreatedAt     time.Time
}

func (PhoneNumber) TableName() string {
	return "registrant_phone_numbers"
}

// RegistrantID is an identity document tied to a registrant. IDTypeID is
// nil when the document's declared type had no match in the lookup table.
type RegistrantID struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	RegistrantID int64  `gorm:"index"`
	IDTypeID     *int64 `gorm:"index"`
	Value        string
	ExpiryDate   string
	CreatedAt    time.Time
}

func (RegistrantID) TableName() string {
	return "registrant_ids"
}

type GroupMembership struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	GroupID      int64  `gorm:"index"`
	IndividualID int64  `gorm:"index"`
	KindID       *int64 `gorm:"index"`
	CreatedAt    time.Time
}

func (GroupMembership) TableName() string {
	return "group_memberships"
}

// Relationship links a member individual to the group head.
type Relationship struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	RegistrantID int64 `gorm:"index"` // owning group
	SourceID     int64 `gorm:"index"` // member individual
	RelationID   int64 `gorm:"index"` // relationship kind
	StartDate    time.Time
	CreatedAt    time.Time
}

func (Relationship) TableName() string {
	return "registrant_relationships"
}

type SupportingDocument struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	RegistrantID int64 `gorm:"index"`
	BackendID    int64
	Name         string
	Data         string `gorm:"type:text"` // base64 payload
	CreatedAt    time.Time
}

func (SupportingDocument) TableName() string {
	return "registrant_supporting_documents"
}

// Lookup tables, seeded from the YAML catalog.

type IDType struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"uniqueIndex"`
}

func (IDType) TableName() string {
	return "id_types"
}

type GenderType struct {
	ID    int64  `gorm:"primaryKey;autoIncrement"`
	Value string `gorm:"uniqueIndex"`
	Code  string
}

func (GenderType) TableName() string {
	return "gender_types"
}

type MembershipKind struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"uniqueIndex"`
}

func (MembershipKind) TableName() string {
	return "group_membership_kinds"
}

type RelationshipKind struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"uniqueIndex"`
}

func (RelationshipKind) TableName() string {
	return "relationship_kinds"
}
